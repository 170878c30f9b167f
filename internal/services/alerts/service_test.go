package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

type recordingSink struct {
	mu   sync.Mutex
	name string
	got  []model.Alert
	err  error
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Send(_ context.Context, a model.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, a)
	return r.err
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func TestRunFansOutToEverySink(t *testing.T) {
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	ok := &recordingSink{name: "ok"}
	svc := NewService(Config{}, nil, failing, ok)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()

	svc.Raise(ctx, model.Alert{Kind: enums.AlertProviderFailed, Summary: "send failed"})

	deadline := time.Now().Add(2 * time.Second)
	for ok.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if ok.count() != 1 || failing.count() != 1 {
		t.Fatalf("expected both sinks to receive the alert, got ok=%d failing=%d", ok.count(), failing.count())
	}
	if ok.got[0].RaisedAt.IsZero() {
		t.Fatalf("expected raised_at to be filled")
	}
}

func TestRaiseDropsWhenQueueFull(t *testing.T) {
	svc := NewService(Config{QueueSize: 1}, nil)
	defer svc.Close()

	svc.Raise(context.Background(), model.Alert{Kind: enums.AlertHighCost})
	svc.Raise(context.Background(), model.Alert{Kind: enums.AlertHighCost})

	if len(svc.queue) != 1 {
		t.Fatalf("expected one queued alert, got %d", len(svc.queue))
	}
}

func TestRunDrainsOnShutdown(t *testing.T) {
	sink := &recordingSink{name: "ok"}
	svc := NewService(Config{}, nil, sink)
	defer svc.Close()

	svc.Raise(context.Background(), model.Alert{Kind: enums.AlertAutoBlock})
	svc.Raise(context.Background(), model.Alert{Kind: enums.AlertAutoBlock})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if sink.count() == 0 {
		t.Fatalf("expected queued alerts to be drained")
	}
}

func TestViolationRateAlertsOncePerWindow(t *testing.T) {
	svc := NewService(Config{ViolationsPerHour: 3, RateWindow: time.Hour}, nil)
	defer svc.Close()
	base := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		svc.ObserveViolation(context.Background(), model.Violation{SenderID: int64(i + 1), RecordedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	if len(svc.queue) != 0 {
		t.Fatalf("expected no alert below threshold")
	}

	svc.ObserveViolation(context.Background(), model.Violation{SenderID: 3, RecordedAt: base.Add(3 * time.Minute)})
	svc.ObserveViolation(context.Background(), model.Violation{SenderID: 4, RecordedAt: base.Add(4 * time.Minute)})
	if len(svc.queue) != 1 {
		t.Fatalf("expected exactly one rate alert, got %d", len(svc.queue))
	}

	a := <-svc.queue
	if a.Kind != enums.AlertViolationRate || a.Attributes["threshold"] != "3" {
		t.Fatalf("unexpected alert %+v", a)
	}
}

type fakeTelegram struct {
	texts   []string
	reviews []int64
}

func (f *fakeTelegram) SendText(_ context.Context, _ int64, text string) (string, error) {
	f.texts = append(f.texts, text)
	return "1", nil
}

func (f *fakeTelegram) SendReviewItem(_ context.Context, _ int64, text string, itemID int64) error {
	f.texts = append(f.texts, text)
	f.reviews = append(f.reviews, itemID)
	return nil
}

func TestTelegramSinkAttachesReviewButtons(t *testing.T) {
	bot := &fakeTelegram{}
	sink := NewTelegramSink(bot, 555)

	if err := sink.Send(context.Background(), model.Alert{
		Kind:       enums.AlertReviewNeeded,
		Severity:   enums.SeverityMedium,
		Summary:    "needs review",
		Attributes: map[string]string{"review_item_id": "12"},
	}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sink.Send(context.Background(), model.Alert{Kind: enums.AlertAutoBlock, Severity: enums.SeverityHigh, Summary: "blocked"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if len(bot.reviews) != 1 || bot.reviews[0] != 12 {
		t.Fatalf("expected review buttons for item 12, got %v", bot.reviews)
	}
	if len(bot.texts) != 2 || !strings.HasPrefix(bot.texts[1], "[HIGH] auto_block") {
		t.Fatalf("unexpected texts %q", bot.texts)
	}
}

func TestTelegramSinkRequiresChat(t *testing.T) {
	if err := NewTelegramSink(&fakeTelegram{}, 0).Send(context.Background(), model.Alert{}); err == nil {
		t.Fatalf("expected error without chat id")
	}
}

type fakePublisher struct {
	key   string
	value []byte
}

func (f *fakePublisher) Publish(_ context.Context, key string, value []byte) error {
	f.key = key
	f.value = value
	return nil
}

func TestKafkaSinkKeysBySender(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub)

	if err := sink.Send(context.Background(), model.Alert{Kind: enums.AlertAutoBlock, SenderID: 77, Summary: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.key != "77" {
		t.Fatalf("expected sender key, got %q", pub.key)
	}
	var decoded model.Alert
	if err := json.Unmarshal(pub.value, &decoded); err != nil || decoded.Kind != enums.AlertAutoBlock {
		t.Fatalf("unexpected payload %s err=%v", pub.value, err)
	}

	if err := sink.Send(context.Background(), model.Alert{Kind: enums.AlertViolationRate}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if pub.key != string(enums.AlertViolationRate) {
		t.Fatalf("expected kind key, got %q", pub.key)
	}
}

func TestFormatTextSortsAttributes(t *testing.T) {
	got := FormatText(model.Alert{
		Kind:       enums.AlertHighCost,
		Severity:   enums.SeverityMedium,
		Summary:    "cost",
		MessageID:  "m1",
		Attributes: map[string]string{"total": "101.00", "period": "2026-08"},
	})
	want := "[MEDIUM] high_cost\ncost\nmessage: m1\nperiod: 2026-08\ntotal: 101.00"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
