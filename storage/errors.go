package storage

// NotFoundError reports that no profile exists under the requested name.
type NotFoundError struct {
	Name string
}

func (e NotFoundError) Error() string {
	return "profile not found: " + e.Name
}

// ProfileNotFound marks the error for interface-based detection by callers.
func (e NotFoundError) ProfileNotFound() {}

// ConflictError reports that a save lost a race against a concurrent
// writer. The caller still holds its in-memory profile and may reload
// and retry.
type ConflictError struct {
	Name string
}

func (e ConflictError) Error() string {
	return "profile modified concurrently: " + e.Name
}

// Conflict marks the error for interface-based detection by callers.
func (e ConflictError) Conflict() {}
