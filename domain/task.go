package domain

import "time"

// TaskStatus is the lifecycle state of a coaching task.
type TaskStatus string

const (
	StatusPending TaskStatus = "Pending"
	StatusDone    TaskStatus = "Done"
)

// Task is a single actionable item handed to an assignee. The completion
// token is minted once at creation and never regenerated; the shareable
// completion link is derived from it.
type Task struct {
	ID              string     `json:"id"`
	Title           string     `json:"title"`
	Assignee        string     `json:"assignee,omitempty"`
	DueDate         string     `json:"dueDate,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IncludeInReport bool       `json:"includeInReport"`
	Status          TaskStatus `json:"status"`
	CompletionToken string     `json:"completionToken"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Done reports whether the task has reached its terminal state.
func (t *Task) Done() bool {
	return t.Status == StatusDone
}
