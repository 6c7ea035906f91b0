package saga

import "time"

// Record Saga 运行的审计快照.
type Record struct {
	// ID Saga 实例 ID
	ID string `json:"id" bson:"_id"`

	// Type 业务流程类型
	Type string `json:"type" bson:"type"`

	ExecutorID string `json:"executor_id,omitempty" bson:"executor_id,omitempty"`

	Status Status `json:"status" bson:"status"`

	FailureReason string `json:"failure_reason,omitempty" bson:"failure_reason,omitempty"`
	FailureError  string `json:"failure_error,omitempty" bson:"failure_error,omitempty"`

	// Steps 按首次记录顺序排列的步骤结果
	Steps []StepRecord `json:"steps" bson:"steps"`

	// Log 执行日志
	Log []LogRecord `json:"log" bson:"log"`

	StartedAt   time.Time  `json:"started_at" bson:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
}

// StepRecord 步骤结果快照.
type StepRecord struct {
	Name    string `json:"name" bson:"name"`
	Success bool   `json:"success" bson:"success"`
	Skipped bool   `json:"skipped,omitempty" bson:"skipped,omitempty"`
	Message string `json:"message,omitempty" bson:"message,omitempty"`
	Error   string `json:"error,omitempty" bson:"error,omitempty"`
}

// LogRecord 执行日志条目快照.
type LogRecord struct {
	Kind       EntryKind `json:"kind" bson:"kind"`
	Step       string    `json:"step" bson:"step"`
	Attempt    int       `json:"attempt,omitempty" bson:"attempt,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty" bson:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty" bson:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// Snapshot 生成当前状态的审计快照.
func (c *BaseContext) Snapshot() *Record {
	rec := &Record{
		ID:            c.id,
		Type:          c.sagaType,
		ExecutorID:    c.executorID,
		Status:        c.status,
		FailureReason: c.failureReason,
		FailureError:  errString(c.failureErr),
		Steps:         make([]StepRecord, 0, len(c.stepOrder)),
		Log:           make([]LogRecord, 0, c.log.Len()),
		StartedAt:     c.startedAt,
		UpdatedAt:     time.Now(),
	}
	if t, ok := c.CompletedAt(); ok {
		rec.CompletedAt = &t
	}

	for _, name := range c.stepOrder {
		r := c.stepResults[name]
		rec.Steps = append(rec.Steps, StepRecord{
			Name:    name,
			Success: r.IsSuccess(),
			Skipped: r.IsSkipped(),
			Message: r.Message(),
			Error:   errString(r.Err()),
		})
	}

	for _, e := range c.log.entries {
		rec.Log = append(rec.Log, LogRecord{
			Kind:       e.Kind,
			Step:       e.Step,
			Attempt:    e.Attempt,
			DurationMs: e.Duration.Milliseconds(),
			Error:      errString(e.Err),
			Timestamp:  e.Timestamp,
		})
	}

	return rec
}

// Clone 深拷贝.
func (r *Record) Clone() *Record {
	copied := *r
	copied.Steps = append([]StepRecord(nil), r.Steps...)
	copied.Log = append([]LogRecord(nil), r.Log...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		copied.CompletedAt = &t
	}
	return &copied
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
