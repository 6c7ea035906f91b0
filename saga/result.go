package saga

// Result Saga 执行结果.
type Result[C Context] struct {
	context     C
	success     bool
	compensated bool
	message     string
	err         error
	failedStep  string
}

// Context 返回执行后的上下文.
func (r *Result[C]) Context() C { return r.context }

// IsSuccess 是否执行成功，可选步骤的失败不影响该值.
func (r *Result[C]) IsSuccess() bool { return r.success }

// IsCompensated 失败后补偿是否全部成功.
//
// 为 false 且 IsSuccess 也为 false 时需要人工介入.
func (r *Result[C]) IsCompensated() bool { return r.compensated }

// Message 面向用户的提示信息.
func (r *Result[C]) Message() string { return r.message }

// Err 导致失败的错误，可能为 nil.
func (r *Result[C]) Err() error { return r.err }

// FailedStep 导致失败的必需步骤名.
func (r *Result[C]) FailedStep() string { return r.failedStep }

// ExecutionLog 返回本次运行的执行日志.
func (r *Result[C]) ExecutionLog() *ExecutionLog {
	return r.context.Base().ExecutionLog()
}
