package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

type fakeStore struct {
	entries []model.AuditEntry
	err     error
	ctxErr  error
}

func (f *fakeStore) Append(ctx context.Context, e model.AuditEntry) error {
	f.ctxErr = ctx.Err()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) ListByMessage(_ context.Context, messageID string) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for _, e := range f.entries {
		if e.MessageID == messageID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestWriteFillsDefaults(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.Write(context.Background(), model.AuditEntry{MessageID: "m1", Stage: enums.AuditStageFilter, Outcome: "clean"})

	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	got := store.entries[0]
	if got.Actor != enums.AuditActorSystem || !got.CreatedAt.Equal(now) {
		t.Fatalf("defaults not applied: %+v", got)
	}
}

func TestWriteSurvivesCancelledContext(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Write(ctx, model.AuditEntry{MessageID: "m1", Stage: enums.AuditStageSubmit, Outcome: "submitted"})

	if store.ctxErr != nil {
		t.Fatalf("store saw cancelled context: %v", store.ctxErr)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected write despite cancellation")
	}
}

func TestWriteSwallowsStoreErrors(t *testing.T) {
	svc := NewService(&fakeStore{err: errors.New("db down")}, nil)
	svc.Write(context.Background(), model.AuditEntry{Stage: enums.AuditStageSweeper, Outcome: "forced"})

	var nilSvc *Service
	nilSvc.Write(context.Background(), model.AuditEntry{})
}

func TestTrailRequiresMessageID(t *testing.T) {
	svc := NewService(&fakeStore{}, nil)
	if _, err := svc.Trail(context.Background(), ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestDetails(t *testing.T) {
	raw := Details(map[string]any{"rule": "pii.ssn", "attempt": 2})
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["rule"] != "pii.ssn" || decoded["attempt"].(float64) != 2 {
		t.Fatalf("unexpected details %v", decoded)
	}
	if Details(nil) != nil {
		t.Fatalf("expected nil details for empty fields")
	}
}
