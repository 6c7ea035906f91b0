package eventbus

import (
	"maps"
	"slices"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/Tsukikage7/questline/logger"
)

// watermillLogger watermill 日志适配器.
//
// Router 和 gochannel 的 Info 日志只在调试级别输出，Trace 日志丢弃.
type watermillLogger struct {
	log logger.Logger
}

var _ watermill.LoggerAdapter = (*watermillLogger)(nil)

func newWatermillLogger(log logger.Logger) watermill.LoggerAdapter {
	return &watermillLogger{log: log}
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.log.With(toFields(fields)...).Error("[EventBus] "+msg, logger.Err(err))
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.log.With(toFields(fields)...).Debug("[EventBus] " + msg)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.log.With(toFields(fields)...).Debug("[EventBus] " + msg)
}

func (l *watermillLogger) Trace(string, watermill.LogFields) {}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{log: l.log.With(toFields(fields)...)}
}

func toFields(fields watermill.LogFields) []logger.Field {
	out := make([]logger.Field, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		out = append(out, logger.Any(k, fields[k]))
	}
	return out
}
