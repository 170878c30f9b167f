package review

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*model.ReviewItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{items: map[int64]*model.ReviewItem{}}
}

func (f *fakeStore) Enqueue(_ context.Context, item model.ReviewItem) (model.ReviewItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.MessageID == item.MessageID {
			return *existing, false, nil
		}
	}
	f.nextID++
	item.ID = f.nextID
	f.items[item.ID] = &item
	return item, true, nil
}

func (f *fakeStore) Get(_ context.Context, id int64) (model.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return model.ReviewItem{}, pgrepo.ErrReviewItemNotFound
	}
	return *item, nil
}

func (f *fakeStore) ListPending(_ context.Context, limit, offset int) ([]model.ReviewItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ReviewItem
	for _, item := range f.items {
		if !item.Resolved() {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CountPending(ctx context.Context) (int64, error) {
	items, _ := f.ListPending(ctx, 1<<30, 0)
	return int64(len(items)), nil
}

func (f *fakeStore) Resolve(_ context.Context, p pgrepo.ResolveParams) (model.ReviewItem, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[p.ItemID]
	if !ok {
		return model.ReviewItem{}, false, pgrepo.ErrReviewItemNotFound
	}
	if item.Resolved() {
		return *item, false, nil
	}
	decision := p.Decision
	at := p.At
	item.Decision = &decision
	item.ReviewerID = p.ReviewerID
	item.Note = p.Note
	item.ResolvedAt = &at
	return *item, true, nil
}

type fakeAlerts struct {
	raised []model.Alert
}

func (f *fakeAlerts) Raise(_ context.Context, a model.Alert) {
	f.raised = append(f.raised, a)
}

func msg(id string) model.Message {
	return model.Message{ID: id, SenderID: 7, RecipientID: 8, Body: "Can we meet at hotel tomorrow?"}
}

func TestEnqueueIsIdempotentOnMessage(t *testing.T) {
	store := newFakeStore()
	alerts := &fakeAlerts{}
	svc := NewService(store, nil)
	svc.AttachAlerts(alerts)
	ctx := context.Background()

	first, err := svc.Enqueue(ctx, msg("m1"), enums.EscalationAdapterFailure, "classifier unavailable")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	second, err := svc.Enqueue(ctx, msg("m1"), enums.EscalationStale, "stale")
	if err != nil {
		t.Fatalf("enqueue again: %v", err)
	}
	if first.ID != second.ID || second.Source != enums.EscalationAdapterFailure {
		t.Fatalf("expected original item, got %+v", second)
	}
	if len(alerts.raised) != 1 || alerts.raised[0].Attributes["review_item_id"] != "1" {
		t.Fatalf("expected a single review alert, got %+v", alerts.raised)
	}
}

func TestListPendingIsFIFO(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	base := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	ctx := context.Background()

	for i, id := range []string{"m3", "m1", "m2"} {
		at := base.Add(time.Duration(2-i) * time.Minute)
		svc.now = func() time.Time { return at }
		if _, err := svc.Enqueue(ctx, msg(id), enums.EscalationClassifierFlag, "ambiguous"); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	page, err := svc.ListPending(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	got := []string{page.Items[0].MessageID, page.Items[1].MessageID, page.Items[2].MessageID}
	if strings.Join(got, ",") != "m2,m1,m3" {
		t.Fatalf("expected oldest first, got %v", got)
	}
	if page.Pending != 3 || page.ETABucket != "up_to_10" {
		t.Fatalf("unexpected page meta %+v", page)
	}

	next, pending, err := svc.Next(ctx)
	if err != nil || next.MessageID != "m2" || pending != 3 {
		t.Fatalf("unexpected next %+v pending=%d err=%v", next, pending, err)
	}
}

func TestResolveTwiceKeepsFirstDecision(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, msg("m1"), enums.EscalationClassifierFlag, "ambiguous")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, applied, err := svc.Resolve(ctx, ResolveParams{ItemID: item.ID, Decision: enums.ReviewDecisionApprove, ReviewerID: "42"})
	if err != nil || !applied {
		t.Fatalf("first resolve applied=%v err=%v", applied, err)
	}
	second, applied, err := svc.Resolve(ctx, ResolveParams{ItemID: item.ID, Decision: enums.ReviewDecisionReject, ReviewerID: "43"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if applied {
		t.Fatalf("second resolve should not apply")
	}
	if *first.Decision != enums.ReviewDecisionApprove || *second.Decision != enums.ReviewDecisionApprove || second.ReviewerID != "42" {
		t.Fatalf("expected first decision both times, got %+v / %+v", first, second)
	}
}

func TestConcurrentResolveHasOneWinner(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, nil)
	ctx := context.Background()
	item, _ := svc.Enqueue(ctx, msg("m1"), enums.EscalationClassifierFlag, "ambiguous")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			decision := enums.ReviewDecisionApprove
			if n%2 == 1 {
				decision = enums.ReviewDecisionReject
			}
			_, applied, err := svc.Resolve(ctx, ResolveParams{ItemID: item.ID, Decision: decision, ReviewerID: "1"})
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			if applied {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected one winner, got %d", winners)
	}
}

func TestResolveValidation(t *testing.T) {
	svc := NewService(newFakeStore(), nil)
	ctx := context.Background()

	if _, _, err := svc.Resolve(ctx, ResolveParams{ItemID: 1, Decision: "maybe", ReviewerID: "1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad decision, got %v", err)
	}
	if _, _, err := svc.Resolve(ctx, ResolveParams{ItemID: 1, Decision: enums.ReviewDecisionApprove}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing reviewer, got %v", err)
	}
	if _, _, err := svc.Resolve(ctx, ResolveParams{ItemID: 99, Decision: enums.ReviewDecisionApprove, ReviewerID: "1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := Preview(long)
	if !strings.HasSuffix(got, "…") || len([]rune(got)) != 101 {
		t.Fatalf("unexpected preview %q", got)
	}
	if Preview("  short ") != "short" {
		t.Fatalf("expected trimmed short preview")
	}
}

func TestETABucketFromQueueSize(t *testing.T) {
	cases := map[int64]string{0: "up_to_10", 15: "up_to_20", 45: "up_to_50", 80: "more_than_hour"}
	for size, want := range cases {
		if got := ETABucketFromQueueSize(size); got != want {
			t.Fatalf("size %d: got %s want %s", size, got, want)
		}
	}
}
