package logger

import "time"

// Field 结构化日志字段，作为 Debug/Info 等方法的参数传入.
//
//	log.Info("[Saga] 步骤完成", logger.SagaID(id), logger.Step("grant-reward"))
type Field struct {
	Key   string
	Value any
}

func String(key, v string) Field { return Field{key, v} }
func Int(key string, v int) Field { return Field{key, v} }
func Int64(key string, v int64) Field { return Field{key, v} }
func Bool(key string, v bool) Field { return Field{key, v} }
func Time(key string, v time.Time) Field { return Field{key, v} }
func Duration(key string, v time.Duration) Field { return Field{key, v} }
func Any(key string, v any) Field { return Field{key, v} }

// Err 固定使用 error 作为键，nil 也会输出.
func Err(err error) Field { return Field{"error", err} }

// 以下字段的键与 Saga 审计记录的 JSON 字段保持一致，便于按 sagaId 检索日志.

func SagaID(id string) Field { return Field{"sagaId", id} }
func SagaType(t string) Field { return Field{"sagaType", t} }
func Step(name string) Field { return Field{"step", name} }

// Attempt 第几次尝试，从 1 开始.
func Attempt(n int) Field { return Field{"attempt", n} }
