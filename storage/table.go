package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"tracking-api/domain"
)

const profilePartition = "profile"

// TableStore keeps each profile as a single Azure Table entity holding
// the whole profile JSON. Saves are conditional on the ETag observed at
// load time, so a racing writer gets a ConflictError instead of silently
// overwriting the other write.
type TableStore struct {
	table *aztables.Client

	mu    sync.Mutex
	etags map[string]azcore.ETag
	locks map[string]*sync.Mutex
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, tableName string) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{
		table: svc.NewClient(tableName),
		etags: make(map[string]azcore.ETag),
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *TableStore) lock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	return l
}

type profileEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Payload      string `json:"Payload"`
}

func decodeProfileEntity(data []byte) (*domain.BusinessProfile, azcore.ETag, error) {
	var raw struct {
		ETag    string `json:"odata.etag"`
		Payload string `json:"Payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, "", err
	}
	var p domain.BusinessProfile
	if err := json.Unmarshal([]byte(raw.Payload), &p); err != nil {
		return nil, "", err
	}
	return &p, azcore.ETag(raw.ETag), nil
}

// List returns the stored profile slugs.
func (s *TableStore) List(ctx context.Context) ([]string, error) {
	filter := "PartitionKey eq '" + profilePartition + "'"
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	names := []string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent aztables.Entity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			names = append(names, ent.RowKey)
		}
	}
	return names, nil
}

// Load reads a whole profile and remembers its ETag for the next save.
func (s *TableStore) Load(ctx context.Context, name string) (*domain.BusinessProfile, error) {
	slug := Slugify(name)
	resp, err := s.table.GetEntity(ctx, profilePartition, slug, nil)
	if err != nil {
		if hasStatus(err, 404) {
			return nil, NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("storage: load profile %s: %w", slug, err)
	}
	p, etag, err := decodeProfileEntity(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("storage: decode profile %s: %w", slug, err)
	}
	s.mu.Lock()
	s.etags[slug] = etag
	s.mu.Unlock()
	return p, nil
}

// Save writes the whole profile. A profile loaded earlier is updated
// with If-Match on its ETag; an unseen profile is added, which fails if
// someone else created it first.
func (s *TableStore) Save(ctx context.Context, p *domain.BusinessProfile) error {
	slug := Slugify(p.Name)
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("storage: encode profile %s: %w", slug, err)
	}
	raw, err := json.Marshal(profileEntity{
		PartitionKey: profilePartition,
		RowKey:       slug,
		Payload:      string(payload),
	})
	if err != nil {
		return fmt.Errorf("storage: encode entity %s: %w", slug, err)
	}

	s.mu.Lock()
	etag, seen := s.etags[slug]
	s.mu.Unlock()

	if seen {
		_, err = s.table.UpdateEntity(ctx, raw, &aztables.UpdateEntityOptions{
			IfMatch:    &etag,
			UpdateMode: aztables.UpdateModeReplace,
		})
		if err != nil {
			if hasStatus(err, 412) {
				return ConflictError{Name: p.Name}
			}
			return fmt.Errorf("storage: update profile %s: %w", slug, err)
		}
	} else {
		if _, err = s.table.AddEntity(ctx, raw, nil); err != nil {
			if hasStatus(err, 409) {
				return ConflictError{Name: p.Name}
			}
			return fmt.Errorf("storage: add profile %s: %w", slug, err)
		}
	}
	return s.refreshETag(ctx, slug)
}

// Update runs a read-modify-write as one unit: the per-slug lock
// serializes writers in this process, and the ETag-conditional Save
// turns a cross-process race into a ConflictError instead of a lost
// update. fn reports whether its changes should be saved.
func (s *TableStore) Update(ctx context.Context, name string, fn func(*domain.BusinessProfile) (bool, error)) (*domain.BusinessProfile, error) {
	slug := Slugify(name)
	l := s.lock(slug)
	l.Lock()
	defer l.Unlock()

	p, err := s.Load(ctx, name)
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
	if err := s.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a profile entity.
func (s *TableStore) Delete(ctx context.Context, name string) error {
	slug := Slugify(name)
	if _, err := s.table.DeleteEntity(ctx, profilePartition, slug, nil); err != nil {
		if hasStatus(err, 404) {
			return NotFoundError{Name: name}
		}
		return fmt.Errorf("storage: delete profile %s: %w", slug, err)
	}
	s.mu.Lock()
	delete(s.etags, slug)
	s.mu.Unlock()
	return nil
}

func (s *TableStore) refreshETag(ctx context.Context, slug string) error {
	resp, err := s.table.GetEntity(ctx, profilePartition, slug, nil)
	if err != nil {
		return fmt.Errorf("storage: refresh etag %s: %w", slug, err)
	}
	_, etag, err := decodeProfileEntity(resp.Value)
	if err != nil {
		return fmt.Errorf("storage: refresh etag %s: %w", slug, err)
	}
	s.mu.Lock()
	s.etags[slug] = etag
	s.mu.Unlock()
	return nil
}

func hasStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
