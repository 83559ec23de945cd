package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tracking-api/domain"
	"tracking-api/tasks"
	"tracking-api/token"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Acme Plumbing":  "Acme_Plumbing",
		"a/b\\c":         "a_b_c",
		"  ":             "business",
		"":               "business",
		"ok-name.v2":     "ok-name.v2",
		"__trimmed__":    "trimmed",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFileStoreRoundTripPreservesTokens(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	p := &domain.BusinessProfile{
		Name: "Acme Plumbing",
		Year: 2026,
		Tasks: []domain.Task{
			{ID: "t1", Title: "Call vendor", Status: domain.StatusPending, CompletionToken: "header.payload.signature"},
		},
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "Acme Plumbing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Tasks[0].CompletionToken != "header.payload.signature" {
		t.Fatalf("completion token corrupted across round trip: %q", loaded.Tasks[0].CompletionToken)
	}
	if loaded.Name != p.Name || loaded.Year != p.Year {
		t.Fatalf("profile corrupted: %+v", loaded)
	}
}

func TestFileStoreSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(context.Background(), &domain.BusinessProfile{Name: "Acme"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "Acme.json")); err != nil {
		t.Fatalf("expected Acme.json: %v", err)
	}
}

func TestFileStoreLoadMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Load(context.Background(), "nobody")
	var nf NotFoundError
	if err == nil {
		t.Fatal("expected NotFoundError")
	}
	if !asNotFound(err, &nf) || nf.Name != "nobody" {
		t.Fatalf("expected NotFoundError for nobody, got %v", err)
	}
}

func TestFileStoreListAndDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	for _, name := range []string{"Zeta", "Acme"} {
		if err := store.Save(ctx, &domain.BusinessProfile{Name: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	names, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 2 || names[0] != "Acme" || names[1] != "Zeta" {
		t.Fatalf("expected sorted [Acme Zeta], got %v", names)
	}

	if err := store.Delete(ctx, "Acme"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "Acme"); err == nil {
		t.Fatal("expected NotFound for second delete")
	}
}

func TestFileStoreUpdatePersistsChanges(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if err := store.Save(ctx, &domain.BusinessProfile{Name: "Acme", Year: 2026}); err != nil {
		t.Fatalf("save: %v", err)
	}

	updated, err := store.Update(ctx, "Acme", func(p *domain.BusinessProfile) (bool, error) {
		p.Year = 2027
		return true, nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Year != 2027 {
		t.Fatalf("expected updated copy, got %+v", updated)
	}
	loaded, err := store.Load(ctx, "Acme")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Year != 2027 {
		t.Fatalf("update not persisted: %+v", loaded)
	}

	// A declined save leaves the file untouched.
	if _, err := store.Update(ctx, "Acme", func(p *domain.BusinessProfile) (bool, error) {
		p.Year = 1999
		return false, nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	loaded, err = store.Load(ctx, "Acme")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Year != 2027 {
		t.Fatalf("declined save still persisted: %+v", loaded)
	}

	if _, err := store.Update(ctx, "nobody", func(p *domain.BusinessProfile) (bool, error) {
		return false, nil
	}); err == nil {
		t.Fatal("expected NotFound for unknown profile")
	}
}

func TestFileStoreUpdateSerializesRacingCompletions(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	codec, err := token.New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	ts := tasks.NewStore(codec)
	ctx := context.Background()

	p := &domain.BusinessProfile{Name: "Acme"}
	created, err := ts.Create(p, tasks.CreateInput{Title: "Call vendor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Two concurrent completion-link visits: each runs its check and
	// save as one unit, so exactly one may observe Pending. The loser
	// must see AlreadyDone, never a second Completed.
	results := make(chan tasks.CompletionStatus, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "Acme", func(p *domain.BusinessProfile) (bool, error) {
				res := ts.CompleteByToken(p, created.CompletionToken)
				results <- res.Status
				return res.Status == tasks.Completed, nil
			})
			if err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()
	close(results)

	completed, alreadyDone := 0, 0
	for status := range results {
		switch status {
		case tasks.Completed:
			completed++
		case tasks.AlreadyDone:
			alreadyDone++
		}
	}
	if completed != 1 || alreadyDone != 1 {
		t.Fatalf("expected one Completed and one AlreadyDone, got completed=%d alreadyDone=%d", completed, alreadyDone)
	}
}

func asNotFound(err error, target *NotFoundError) bool {
	nf, ok := err.(NotFoundError)
	if ok {
		*target = nf
	}
	return ok
}
