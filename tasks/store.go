// Package tasks implements the task collection owned by a business
// profile: creation with minted completion tokens, token-driven
// completion and operator delete. The profile is always passed in
// explicitly; the store itself holds no profile state.
package tasks

import (
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"

	"tracking-api/domain"
	"tracking-api/token"
)

// CompletionStatus classifies the result of a completion-link visit.
type CompletionStatus string

const (
	// Completed means the task transitioned Pending -> Done on this call.
	Completed CompletionStatus = "completed"
	// AlreadyDone means the token was valid but the task was done before;
	// the visit is an idempotent no-op.
	AlreadyDone CompletionStatus = "already_done"
	// NotFound means the token is invalid, stale, or belongs elsewhere.
	NotFound CompletionStatus = "not_found"
)

// CompletionResult is what a completion-link visit produced. Task is set
// for Completed and AlreadyDone.
type CompletionResult struct {
	Status CompletionStatus
	Task   *domain.Task
}

// CreateInput carries the operator-supplied task fields.
type CreateInput struct {
	Title           string `json:"title"`
	Assignee        string `json:"assignee"`
	DueDate         string `json:"dueDate"`
	Notes           string `json:"notes"`
	IncludeInReport bool   `json:"includeInReport"`
}

// Store creates and completes tasks on behalf of a profile.
type Store struct {
	codec *token.Codec
}

// NewStore creates a Store backed by the given token codec.
func NewStore(codec *token.Codec) *Store {
	if codec == nil {
		panic("tasks.NewStore: codec is nil")
	}
	return &Store{codec: codec}
}

// Create appends a new Pending task to the profile and returns it. The
// completion token is minted here, exactly once for the task's lifetime.
func (s *Store) Create(p *domain.BusinessProfile, in CreateInput) (domain.Task, error) {
	if in.Title == "" {
		return domain.Task{}, errors.New("tasks: title is required")
	}
	id := uuid.NewString()
	tok, err := s.codec.Mint(id, p.Name)
	if err != nil {
		return domain.Task{}, err
	}
	t := domain.Task{
		ID:              id,
		Title:           in.Title,
		Assignee:        in.Assignee,
		DueDate:         in.DueDate,
		Notes:           in.Notes,
		IncludeInReport: in.IncludeInReport,
		Status:          domain.StatusPending,
		CompletionToken: tok,
	}
	p.Tasks = append(p.Tasks, t)
	return t, nil
}

// CompleteByToken resolves a completion token against the profile and,
// for a Pending task, performs the single Pending -> Done transition and
// stamps CompletedAt. A second visit with the same token observes
// AlreadyDone and mutates nothing; tokens of deleted tasks resolve to
// NotFound even though their signature still verifies.
func (s *Store) CompleteByToken(p *domain.BusinessProfile, tok string) CompletionResult {
	profileName, taskID, err := s.codec.Resolve(tok)
	if err != nil || profileName != p.Name {
		return CompletionResult{Status: NotFound}
	}
	t := p.TaskByID(taskID)
	if t == nil || t.CompletionToken != tok {
		return CompletionResult{Status: NotFound}
	}
	if t.Done() {
		return CompletionResult{Status: AlreadyDone, Task: t}
	}
	now := time.Now().UTC()
	t.Status = domain.StatusDone
	t.CompletedAt = &now
	return CompletionResult{Status: Completed, Task: t}
}

// ResolveProfile returns the profile a completion token was minted for
// without touching any task state. It lets a caller work out which
// profile to load before running the completion itself.
func (s *Store) ResolveProfile(tok string) (string, error) {
	profileName, _, err := s.codec.Resolve(tok)
	return profileName, err
}

// Delete removes a task by id and reports whether it existed. The task's
// token dies with it; it is never reissued because tokens carry a random
// nonce per mint.
func (s *Store) Delete(p *domain.BusinessProfile, id string) bool {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			p.Tasks = append(p.Tasks[:i], p.Tasks[i+1:]...)
			return true
		}
	}
	return false
}

// CompletionURL builds the shareable link for a token. An empty base URL
// yields an empty link; the operator has to configure the app base URL
// first.
func CompletionURL(baseURL, tok string) string {
	if baseURL == "" {
		return ""
	}
	return baseURL + "?complete_task=" + url.QueryEscape(tok)
}
