package tasks

import (
	"strings"
	"testing"

	"tracking-api/domain"
	"tracking-api/token"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	codec, err := token.New([]byte("test-secret"))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return NewStore(codec)
}

func TestCreateMintsResolvableToken(t *testing.T) {
	s := newTestStore(t)
	p := &domain.BusinessProfile{Name: "Acme", Year: 2026}

	created, err := s.Create(p, CreateInput{Title: "Call vendor", Assignee: "Sam", IncludeInReport: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Status != domain.StatusPending {
		t.Fatalf("expected Pending, got %s", created.Status)
	}
	if created.CompletionToken == "" {
		t.Fatal("expected a completion token")
	}
	if len(p.Tasks) != 1 || p.Tasks[0].ID != created.ID {
		t.Fatalf("expected task appended to profile, got %+v", p.Tasks)
	}

	res := s.CompleteByToken(p, created.CompletionToken)
	if res.Status != Completed || res.Task.ID != created.ID {
		t.Fatalf("expected token to resolve to the created task, got %+v", res)
	}
}

func TestCreateRequiresTitle(t *testing.T) {
	s := newTestStore(t)
	p := &domain.BusinessProfile{Name: "Acme"}
	if _, err := s.Create(p, CreateInput{}); err == nil {
		t.Fatal("expected error for empty title")
	}
}

func TestCompleteByTokenIdempotent(t *testing.T) {
	s := newTestStore(t)
	p := &domain.BusinessProfile{Name: "Acme"}
	created, err := s.Create(p, CreateInput{Title: "Call vendor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first := s.CompleteByToken(p, created.CompletionToken)
	if first.Status != Completed {
		t.Fatalf("expected Completed, got %s", first.Status)
	}
	if first.Task.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be stamped")
	}
	stamped := *first.Task.CompletedAt

	second := s.CompleteByToken(p, created.CompletionToken)
	if second.Status != AlreadyDone {
		t.Fatalf("expected AlreadyDone, got %s", second.Status)
	}
	if !second.Task.CompletedAt.Equal(stamped) {
		t.Fatal("expected CompletedAt to be unchanged on the second visit")
	}
}

func TestCompleteByTokenWrongProfile(t *testing.T) {
	s := newTestStore(t)
	acme := &domain.BusinessProfile{Name: "Acme"}
	other := &domain.BusinessProfile{Name: "Other"}
	created, err := s.Create(acme, CreateInput{Title: "Call vendor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if res := s.CompleteByToken(other, created.CompletionToken); res.Status != NotFound {
		t.Fatalf("expected NotFound for foreign profile, got %s", res.Status)
	}
	if acme.Tasks[0].Done() {
		t.Fatal("foreign resolution must not complete the original task")
	}
}

func TestCompleteByTokenNeverMinted(t *testing.T) {
	s := newTestStore(t)
	p := &domain.BusinessProfile{Name: "Acme"}
	if res := s.CompleteByToken(p, "bogus"); res.Status != NotFound {
		t.Fatalf("expected NotFound, got %s", res.Status)
	}
}

func TestDeletedTokenIsNeverReissued(t *testing.T) {
	s := newTestStore(t)
	p := &domain.BusinessProfile{Name: "Acme"}

	first, err := s.Create(p, CreateInput{Title: "Call vendor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !s.Delete(p, first.ID) {
		t.Fatal("expected delete to succeed")
	}

	second, err := s.Create(p, CreateInput{Title: "Call vendor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if second.CompletionToken == first.CompletionToken {
		t.Fatal("recreated task must not reuse the deleted task's token")
	}
	// The stale link degrades to a no-op instead of completing the new task.
	if res := s.CompleteByToken(p, first.CompletionToken); res.Status != NotFound {
		t.Fatalf("expected stale token to be NotFound, got %s", res.Status)
	}
}

func TestCompletionURL(t *testing.T) {
	url := CompletionURL("https://app.example/", "tok en")
	if url != "https://app.example/?complete_task=tok+en" {
		t.Fatalf("unexpected url %q", url)
	}
	if CompletionURL("", "tok") != "" {
		t.Fatal("expected empty url without a base")
	}
	if !strings.HasPrefix(url, "https://app.example/?complete_task=") {
		t.Fatalf("unexpected url shape %q", url)
	}
}
