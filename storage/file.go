// Package storage persists business profiles wholesale: one document
// per profile, loaded and saved as a unit so completion tokens survive
// round trips exactly. Two gateways are provided, a local filesystem
// store and an Azure Table store, plus a Redis read-through cache.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"tracking-api/domain"
)

var slugPattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Slugify maps a business name to its storage key.
func Slugify(name string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(name, "_"), "_")
	if slug == "" {
		return "business"
	}
	return slug
}

// FileStore keeps each profile as <slug>.json under a data directory.
// Saves go through write-to-temp-then-rename so a crash can never leave
// a half-written profile, and a per-slug mutex serializes writers.
type FileStore struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: profiles dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *FileStore) lock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	return l
}

func (s *FileStore) path(slug string) string {
	return filepath.Join(s.dir, slug+".json")
}

// List returns the stored profile slugs, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list profiles: %w", err)
	}
	names := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads a whole profile.
func (s *FileStore) Load(ctx context.Context, name string) (*domain.BusinessProfile, error) {
	return s.load(name, Slugify(name))
}

func (s *FileStore) load(name, slug string) (*domain.BusinessProfile, error) {
	data, err := os.ReadFile(s.path(slug))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("storage: read profile %s: %w", slug, err)
	}
	var p domain.BusinessProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("storage: decode profile %s: %w", slug, err)
	}
	return &p, nil
}

// Save writes the whole profile atomically.
func (s *FileStore) Save(ctx context.Context, p *domain.BusinessProfile) error {
	slug := Slugify(p.Name)
	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()
	return s.save(p, slug)
}

func (s *FileStore) save(p *domain.BusinessProfile, slug string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode profile %s: %w", slug, err)
	}
	tmp, err := os.CreateTemp(s.dir, slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: temp file for %s: %w", slug, err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: write profile %s: %w", slug, err)
	}
	if err := os.Rename(tmpName, s.path(slug)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("storage: replace profile %s: %w", slug, err)
	}
	return nil
}

// Update runs a read-modify-write as one unit under the per-slug lock,
// so a concurrent visitor cannot observe and persist a stale copy. fn
// reports whether its changes should be saved; returning an error
// aborts the save. The possibly-modified profile is returned either way.
func (s *FileStore) Update(ctx context.Context, name string, fn func(*domain.BusinessProfile) (bool, error)) (*domain.BusinessProfile, error) {
	slug := Slugify(name)
	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()

	p, err := s.load(name, slug)
	if err != nil {
		return nil, err
	}
	save, err := fn(p)
	if err != nil {
		return nil, err
	}
	if !save {
		return p, nil
	}
	if err := s.save(p, slug); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a profile. Deleting an unknown profile is NotFound.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	slug := Slugify(name)
	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()

	if err := os.Remove(s.path(slug)); err != nil {
		if os.IsNotExist(err) {
			return NotFoundError{Name: name}
		}
		return fmt.Errorf("storage: delete profile %s: %w", slug, err)
	}
	return nil
}
