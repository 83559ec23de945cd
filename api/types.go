package api

import (
	"context"

	"tracking-api/domain"
)

// ProfileStore abstracts profile persistence for handlers. Profiles are
// loaded and saved wholesale; implementations must preserve completion
// tokens exactly across round trips.
type ProfileStore interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (*domain.BusinessProfile, error)
	Save(ctx context.Context, p *domain.BusinessProfile) error
	// Update runs fn on the current profile and persists the result as
	// one atomic unit when fn reports its changes should be saved. Two
	// racing updates never both observe the pre-update state.
	Update(ctx context.Context, name string, fn func(*domain.BusinessProfile) (bool, error)) (*domain.BusinessProfile, error)
	Delete(ctx context.Context, name string) error
}

// NotFoundError is returned by stores when no profile exists under the
// requested name.
type NotFoundError interface {
	error
	ProfileNotFound()
}

// ConflictError is returned by stores when a save lost a race against a
// concurrent writer; the caller may reload and retry.
type ConflictError interface {
	error
	Conflict()
}

// Deduper guards the task.completed webhook against racing completion
// link visits across instances.
type Deduper interface {
	// Add records the completion key and returns true if it was newly added.
	Add(ctx context.Context, profileName, key string) (bool, error)
}
