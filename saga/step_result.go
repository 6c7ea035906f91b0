package saga

// StepResult 步骤执行或补偿的结果，创建后不可修改.
type StepResult struct {
	success bool
	skipped bool
	message string
	data    any
	err     error
}

// Success 创建成功结果.
func Success(message string) StepResult {
	return StepResult{success: true, message: message}
}

// SuccessWithData 创建携带数据的成功结果.
func SuccessWithData(message string, data any) StepResult {
	return StepResult{success: true, message: message, data: data}
}

// Skipped 创建跳过结果，跳过视为成功.
func Skipped(reason string) StepResult {
	return StepResult{success: true, skipped: true, message: reason}
}

// Failure 创建失败结果.
func Failure(message string) StepResult {
	return StepResult{message: message}
}

// FailureWithError 创建携带错误的失败结果.
func FailureWithError(message string, err error) StepResult {
	return StepResult{message: message, err: err}
}

// FailureFromError 创建失败结果，消息取自 err.Error().
//
// err 为 nil 或错误文本为空时结果没有消息，不做默认值替换.
func FailureFromError(err error) StepResult {
	r := StepResult{err: err}
	if err != nil {
		r.message = err.Error()
	}
	return r
}

// IsSuccess 是否成功，跳过的步骤也视为成功.
func (r StepResult) IsSuccess() bool { return r.success }

// IsSkipped 是否因前置条件不满足而跳过.
func (r StepResult) IsSkipped() bool { return r.skipped }

// Message 返回消息，没有消息时为空字符串.
func (r StepResult) Message() string { return r.message }

// HasMessage 是否携带消息.
func (r StepResult) HasMessage() bool { return r.message != "" }

// Data 返回附带数据.
func (r StepResult) Data() any { return r.data }

// Err 返回导致失败的错误.
func (r StepResult) Err() error { return r.err }

// cause 返回失败原因，没有错误时返回 ErrStepFailed.
func (r StepResult) cause() error {
	if r.err != nil {
		return r.err
	}
	return ErrStepFailed
}

// empty 步骤返回了零值结果.
func (r StepResult) empty() bool {
	return !r.success && !r.skipped && r.message == "" && r.data == nil && r.err == nil
}

func (r StepResult) String() string {
	switch {
	case r.skipped:
		return "skipped(" + r.message + ")"
	case r.success:
		return "success(" + r.message + ")"
	default:
		return "failure(" + r.message + ")"
	}
}
