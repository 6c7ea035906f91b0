package saga

import "time"

// EntryKind 执行日志条目类型.
type EntryKind string

// 执行日志条目类型常量.
const (
	StepStarted           EntryKind = "STEP_STARTED"
	StepCompleted         EntryKind = "STEP_COMPLETED"
	StepFailed            EntryKind = "STEP_FAILED"
	StepRetrying          EntryKind = "STEP_RETRYING"
	StepSkipped           EntryKind = "STEP_SKIPPED"
	CompensationStarted   EntryKind = "COMPENSATION_STARTED"
	CompensationCompleted EntryKind = "COMPENSATION_COMPLETED"
	CompensationFailed    EntryKind = "COMPENSATION_FAILED"
)

// LogEntry 一条执行日志.
//
// Duration 只在 *_COMPLETED、*_FAILED 和 STEP_RETRYING 条目上设置，Err 只在失败类条目上设置.
type LogEntry struct {
	Kind      EntryKind
	SagaID    string
	SagaType  string
	Step      string
	Attempt   int
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// ExecutionLog 单次 Saga 运行的执行日志，只追加，保持写入顺序.
//
// 与 BaseContext 一样不是并发安全的，应在 Execute 返回后读取.
type ExecutionLog struct {
	entries []LogEntry
}

func (l *ExecutionLog) append(e LogEntry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)
}

// Entries 返回全部条目的副本.
func (l *ExecutionLog) Entries() []LogEntry {
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len 返回条目数量.
func (l *ExecutionLog) Len() int {
	return len(l.entries)
}

// Filter 返回指定类型的条目.
func (l *ExecutionLog) Filter(kind EntryKind) []LogEntry {
	var out []LogEntry
	for _, e := range l.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Steps 返回指定类型条目的步骤名，保持顺序.
func (l *ExecutionLog) Steps(kind EntryKind) []string {
	entries := l.Filter(kind)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Step
	}
	return names
}
