package domain

import "time"

// EventLevel grades a structured event.
type EventLevel string

// Event levels.
const (
	LevelDebug EventLevel = "debug"
	LevelInfo  EventLevel = "info"
	LevelWarn  EventLevel = "warn"
	LevelError EventLevel = "error"
)

// Event is a structured occurrence emitted to an event sink.
type Event struct {
	Name      string         `json:"name"`
	Level     EventLevel     `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent builds an Event stamped with the current time.
func NewEvent(name string, level EventLevel, message string, fields map[string]any) Event {
	return Event{
		Name:      name,
		Level:     level,
		Message:   message,
		Fields:    fields,
		Timestamp: time.Now(),
	}
}

// Event names emitted by the engine.
const (
	EventJudgeRetry         = "judge.retry"
	EventJudgeFailed        = "judge.failed"
	EventPanelCompleted     = "panel.completed"
	EventPanelSlow          = "panel.slow"
	EventPanelDegraded      = "panel.degraded"
	EventDisagreement       = "disagreement.detected"
	EventDiscussionDone     = "discussion.completed"
	EventDiscussionSlow     = "discussion.slow"
	EventDiscussionClipped  = "discussion.revision_clipped"
	EventTiebreakDone       = "tiebreak.completed"
	EventScoreAggregated    = "score.aggregated"
	EventRefinementAttempt  = "refinement.attempt"
	EventRefinementFinished = "refinement.finished"
	EventFixerFailed        = "fixer.failed"
)

// JudgeAttempt records one oracle call made by a judge runner.
type JudgeAttempt struct {
	Attempt  int           `json:"attempt"`
	Strict   bool          `json:"strict"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// JudgeTiming summarizes one judge's contribution to a round.
type JudgeTiming struct {
	Role      JudgeRole      `json:"role"`
	Duration  time.Duration  `json:"duration"`
	Attempts  []JudgeAttempt `json:"attempts"`
	Succeeded bool           `json:"succeeded"`
	Error     string         `json:"error,omitempty"`
}

// ExecutionLog is the diagnostic record of one fan-out round.
type ExecutionLog struct {
	RunID     string        `json:"run_id"`
	Phase     Phase         `json:"phase"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Judges    []JudgeTiming `json:"judges"`
}

// ExecutionRecord is a fire-and-forget telemetry record.
type ExecutionRecord struct {
	RunID     string        `json:"run_id"`
	Operation string        `json:"operation"`
	Phase     Phase         `json:"phase,omitempty"`
	Role      JudgeRole     `json:"role,omitempty"`
	Attempts  int           `json:"attempts,omitempty"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Score     float64       `json:"score,omitempty"`
	Error     string        `json:"error,omitempty"`
}
