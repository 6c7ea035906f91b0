package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LoggerTestSuite logger 测试套件.
type LoggerTestSuite struct {
	suite.Suite
	buf *bytes.Buffer
	log Logger
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTestSuite))
}

func (s *LoggerTestSuite) SetupTest() {
	s.buf = &bytes.Buffer{}
	log, err := NewWithWriter(&Config{Level: LevelDebug, ServiceName: "test"}, s.buf)
	s.Require().NoError(err)
	s.log = log
}

func (s *LoggerTestSuite) lastEntry() map[string]any {
	lines := strings.Split(strings.TrimSpace(s.buf.String()), "\n")
	s.Require().NotEmpty(lines)
	var entry map[string]any
	s.Require().NoError(json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func (s *LoggerTestSuite) TestNewLogger_NilConfig() {
	log, err := NewLogger(nil)
	s.Error(err)
	s.Nil(log)
}

func (s *LoggerTestSuite) TestNewLogger_DefaultConfig() {
	log, err := NewLogger(&Config{})
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_DevConfig() {
	log, err := NewLogger(NewDevConfig())
	s.NoError(err)
	s.NotNil(log)
	defer log.Close()
}

func (s *LoggerTestSuite) TestNewLogger_InvalidConfig() {
	cases := []*Config{
		{Level: "invalid"},
		{Format: "invalid"},
		{Output: "invalid"},
		{Output: OutputFile},
		{Type: "unsupported"},
	}
	for _, cfg := range cases {
		log, err := NewLogger(cfg)
		s.Error(err)
		s.Nil(log)

		s.ErrorIs(err, ErrInvalidConfig)
	}
}

func (s *LoggerTestSuite) TestNewLogger_Nop() {
	log, err := NewLogger(&Config{Type: TypeNop})
	s.NoError(err)
	s.NotPanics(func() {
		log.With(String("k", "v")).WithContext(context.Background()).Info("ignored")
	})
}

func (s *LoggerTestSuite) TestFileOutput() {
	path := filepath.Join(s.T().TempDir(), "logs", "questline.log")
	log, err := NewLogger(&Config{Output: OutputFile, LogFile: path})
	s.Require().NoError(err)

	log.Info("写入文件")
	s.NoError(log.Close())

	data, err := os.ReadFile(path)
	s.Require().NoError(err)
	s.Contains(string(data), "写入文件")
}

func (s *LoggerTestSuite) TestWith_Fields() {
	s.log.With(
		SagaID("saga-1"),
		SagaType("MISSION_COMPLETION"),
		Step("grant-reward"),
		Attempt(2),
		Duration("elapsed", 1500*time.Millisecond),
		Err(errors.New("boom")),
	).Error("[Saga] 步骤执行失败")

	entry := s.lastEntry()
	s.Equal("[Saga] 步骤执行失败", entry["msg"])
	s.Equal("ERROR", entry["level"])
	s.Equal("test", entry["service"])
	s.Equal("saga-1", entry["sagaId"])
	s.Equal("MISSION_COMPLETION", entry["sagaType"])
	s.Equal("grant-reward", entry["step"])
	s.EqualValues(2, entry["attempt"])
	s.Equal("1.5s", entry["elapsed"])
	s.Equal("boom", entry["error"])
}

func (s *LoggerTestSuite) TestInlineFields() {
	s.log.Warn("[Saga] 可选步骤失败，继续执行", Step("notify-user"), Int("attempt", 3))

	entry := s.lastEntry()
	s.Equal("[Saga] 可选步骤失败，继续执行", entry["msg"])
	s.Equal("notify-user", entry["step"])
	s.EqualValues(3, entry["attempt"])
}

func (s *LoggerTestSuite) TestWithContext_Fields() {
	ctx := ContextWithFields(context.Background(), SagaID("saga-7"))
	ctx = ContextWithFields(ctx, SagaType("MISSION_COMPLETION"))
	s.Len(FieldsFromContext(ctx), 2)
	s.Equal(ctx, ContextWithFields(ctx))

	s.log.WithContext(ctx).Info("[Redis] 保存记录")

	entry := s.lastEntry()
	s.Equal("saga-7", entry["sagaId"])
	s.Equal("MISSION_COMPLETION", entry["sagaType"])
	s.NotContains(entry, "traceId")
}

func (s *LoggerTestSuite) TestWithContext_FieldsAreNotShared() {
	parent := ContextWithFields(context.Background(), SagaID("a"), Step("one"))
	left := ContextWithFields(parent, String("branch", "left"))
	right := ContextWithFields(parent, String("branch", "right"))

	s.Equal("left", FieldsFromContext(left)[2].Value)
	s.Equal("right", FieldsFromContext(right)[2].Value)
	s.Len(FieldsFromContext(parent), 2)
}

func (s *LoggerTestSuite) TestWithContext_OtelSpan() {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	s.log.WithContext(ctx).Info("带 span")

	entry := s.lastEntry()
	s.Equal(span.SpanContext().TraceID().String(), entry["traceId"])
	s.Equal(span.SpanContext().SpanID().String(), entry["spanId"])
}

func (s *LoggerTestSuite) TestWithContext_Empty() {
	s.log.WithContext(context.Background()).Info("无 trace")

	entry := s.lastEntry()
	s.NotContains(entry, "traceId")
}

func (s *LoggerTestSuite) TestLevelHandler() {
	buf := &bytes.Buffer{}
	log, err := NewWithWriter(&Config{Level: LevelInfo}, buf)
	s.Require().NoError(err)

	h, ok := LevelHandler(log.With(String("k", "v")))
	s.Require().True(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/loglevel", strings.NewReader(`{"level":"debug"}`)))
	s.Equal(http.StatusOK, rec.Code)

	log.Debug("动态开启")
	s.Contains(buf.String(), "动态开启")

	_, ok = LevelHandler(NewNop())
	s.False(ok)
}

func (s *LoggerTestSuite) TestStringerField() {
	s.log.Info("连接状态", Any("state", http.StateActive))
	s.Equal("active", s.lastEntry()["state"])
}

func (s *LoggerTestSuite) TestLevelFilter() {
	buf := &bytes.Buffer{}
	log, err := NewWithWriter(&Config{Level: LevelWarn}, buf)
	s.Require().NoError(err)

	log.Info("丢弃")
	log.Warnf("保留 %d", 1)

	s.NotContains(buf.String(), "丢弃")
	s.Contains(buf.String(), "保留 1")
}
