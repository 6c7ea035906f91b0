package saga

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseContext(t *testing.T) {
	a := NewBaseContext("MISSION_COMPLETION", "user-42")
	b := NewBaseContext("MISSION_COMPLETION", "")

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "MISSION_COMPLETION", a.Type())
	assert.Equal(t, "user-42", a.ExecutorID())
	assert.Empty(t, b.ExecutorID())
	assert.Equal(t, StatusStarted, a.Status())
	assert.False(t, a.StartedAt().IsZero())

	_, ok := a.CompletedAt()
	assert.False(t, ok)
}

func TestStatusTransitions(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		c := NewBaseContext("T", "")
		require.NoError(t, c.MarkProcessing())
		require.NoError(t, c.Complete())
		assert.Equal(t, StatusCompleted, c.Status())
		assert.True(t, c.Status().IsTerminal())
	})

	t.Run("compensated keeps first completion time", func(t *testing.T) {
		c := NewBaseContext("T", "")
		require.NoError(t, c.MarkProcessing())
		require.NoError(t, c.Fail("charge failed", errors.New("card declined")))

		failedAt, ok := c.CompletedAt()
		require.True(t, ok)

		require.NoError(t, c.StartCompensation())
		_, ok = c.CompletedAt()
		assert.False(t, ok, "COMPENSATING is not terminal")

		time.Sleep(time.Millisecond)
		require.NoError(t, c.MarkCompensated())

		compensatedAt, ok := c.CompletedAt()
		require.True(t, ok)
		assert.Equal(t, failedAt, compensatedAt)
		assert.Equal(t, "charge failed", c.FailureReason())
		assert.EqualError(t, c.FailureError(), "card declined")
	})

	t.Run("compensation failed returns to FAILED", func(t *testing.T) {
		c := NewBaseContext("T", "")
		require.NoError(t, c.MarkProcessing())
		require.NoError(t, c.Fail("", nil))
		require.NoError(t, c.StartCompensation())
		require.NoError(t, c.MarkCompensationFailed())
		assert.Equal(t, StatusFailed, c.Status())
	})

	t.Run("illegal transitions", func(t *testing.T) {
		c := NewBaseContext("T", "")
		assert.ErrorIs(t, c.Complete(), ErrInvalidTransition)
		assert.ErrorIs(t, c.StartCompensation(), ErrInvalidTransition)

		require.NoError(t, c.MarkProcessing())
		assert.ErrorIs(t, c.MarkProcessing(), ErrInvalidTransition)
		require.NoError(t, c.Complete())
		assert.ErrorIs(t, c.Fail("late", nil), ErrInvalidTransition)
		assert.Empty(t, c.FailureReason())
	})
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus(" compensated ")
	require.NoError(t, err)
	assert.Equal(t, StatusCompensated, st)
	assert.True(t, st.IsTerminal())

	st, err = ParseStatus("PROCESSING")
	require.NoError(t, err)
	assert.False(t, st.IsTerminal())

	_, err = ParseStatus("ROLLED_BACK")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestCompensationValue(t *testing.T) {
	c := NewBaseContext("T", "")
	c.PutCompensationData("post_id", "P-1")
	c.PutCompensationData("points", 50)

	id, ok := CompensationValue[string](c, "post_id")
	assert.True(t, ok)
	assert.Equal(t, "P-1", id)

	points, ok := CompensationValue[int](c, "points")
	assert.True(t, ok)
	assert.Equal(t, 50, points)

	// 类型不匹配视为不存在
	wrong, ok := CompensationValue[string](c, "points")
	assert.False(t, ok)
	assert.Empty(t, wrong)

	_, ok = CompensationValue[string](c, "missing")
	assert.False(t, ok)
}

func TestStepResultsLastWriteWins(t *testing.T) {
	c := NewBaseContext("T", "")
	c.RecordStepResult("a", Failure("first"))
	c.RecordStepResult("b", Success(""))
	c.RecordStepResult("a", Success("second"))

	assert.Equal(t, []string{"a", "b"}, c.StepNames())
	r, ok := c.StepResult("a")
	require.True(t, ok)
	assert.Equal(t, "second", r.Message())

	copied := c.StepResults()
	delete(copied, "a")
	_, ok = c.StepResult("a")
	assert.True(t, ok, "StepResults must return a copy")
}

func TestStepResultConstructors(t *testing.T) {
	s := SuccessWithData("done", 7)
	assert.True(t, s.IsSuccess())
	assert.False(t, s.IsSkipped())
	assert.Equal(t, 7, s.Data())
	assert.Nil(t, s.Err())

	sk := Skipped("no guild")
	assert.True(t, sk.IsSuccess())
	assert.True(t, sk.IsSkipped())

	f := FailureWithError("扣减失败", errors.New("insufficient"))
	assert.False(t, f.IsSuccess())
	assert.Equal(t, "扣减失败", f.Message())
	assert.EqualError(t, f.Err(), "insufficient")

	fe := FailureFromError(errors.New("SMTP down"))
	assert.Equal(t, "SMTP down", fe.Message())
	assert.True(t, fe.HasMessage())
}

func TestFailureFromErrorWithoutMessage(t *testing.T) {
	empty := errors.New("")
	r := FailureFromError(empty)
	assert.False(t, r.IsSuccess())
	assert.False(t, r.HasMessage())
	assert.Empty(t, r.Message())
	assert.Same(t, empty, r.Err())

	r = FailureFromError(nil)
	assert.False(t, r.IsSuccess())
	assert.False(t, r.HasMessage())
	assert.Nil(t, r.Err())
}

func TestResultMessageFallsBackToStepName(t *testing.T) {
	orch := New[*BaseContext]("silent").
		Step("silent", func(context.Context, *BaseContext) StepResult {
			return FailureFromError(errors.New(""))
		}, nil).
		Build()
	sc := NewBaseContext("T", "")

	result, err := orch.Execute(context.Background(), sc)
	require.NoError(t, err)
	assert.Equal(t, "步骤 silent 执行失败", result.Message())
	assert.Empty(t, sc.FailureReason())
}

func TestSnapshot(t *testing.T) {
	c := NewBaseContext("T", "u")
	require.NoError(t, c.MarkProcessing())
	c.RecordStepResult("a", Success("ok"))
	c.RecordStepResult("b", FailureWithError("bad", errors.New("boom")))
	c.log.append(LogEntry{Kind: StepFailed, Step: "b", Duration: 1500 * time.Millisecond, Err: errors.New("boom")})
	require.NoError(t, c.Fail("bad", errors.New("boom")))

	rec := c.Snapshot()
	assert.Equal(t, c.ID(), rec.ID)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Equal(t, "boom", rec.FailureError)
	require.Len(t, rec.Steps, 2)
	assert.Equal(t, StepRecord{Name: "b", Message: "bad", Error: "boom"}, rec.Steps[1])
	require.Len(t, rec.Log, 1)
	assert.Equal(t, int64(1500), rec.Log[0].DurationMs)
	require.NotNil(t, rec.CompletedAt)

	clone := rec.Clone()
	clone.Steps[0].Name = "changed"
	assert.Equal(t, "a", rec.Steps[0].Name)
}
