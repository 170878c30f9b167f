package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

type fakeProvider struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Address(contact pgrepo.ContactRecord) (string, bool) {
	if contact.TelegramChatID == 0 {
		return "", false
	}
	return "chat", true
}

func (f *fakeProvider) Send(_ context.Context, _ string, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	return "ref-1", nil
}

type fakeContacts struct {
	contacts map[int64]pgrepo.ContactRecord
}

func (f fakeContacts) GetContact(_ context.Context, userID int64) (pgrepo.ContactRecord, error) {
	c, ok := f.contacts[userID]
	if !ok {
		return pgrepo.ContactRecord{}, pgrepo.ErrUserNotFound
	}
	return c, nil
}

type fakeAlerts struct {
	raised []model.Alert
}

func (f *fakeAlerts) Raise(_ context.Context, a model.Alert) {
	f.raised = append(f.raised, a)
}

func newTestDispatcher(p Provider) (*Dispatcher, *fakeAlerts) {
	contacts := fakeContacts{contacts: map[int64]pgrepo.ContactRecord{
		8: {UserID: 8, TelegramChatID: 800},
		9: {UserID: 9},
	}}
	d := NewDispatcher(p, contacts, Config{Attempts: 3, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Timeout: time.Second}, nil)
	alerts := &fakeAlerts{}
	d.AttachAlerts(alerts)
	return d, alerts
}

func message(recipient int64) model.Message {
	return model.Message{ID: "m1", SenderID: 7, RecipientID: recipient, Body: "hello"}
}

func TestDispatchSucceedsAfterRetry(t *testing.T) {
	p := &fakeProvider{errs: []error{errors.New("timeout")}}
	d, alerts := newTestDispatcher(p)

	res := d.Dispatch(context.Background(), message(8))
	if !res.Sent || res.ProviderRef != "ref-1" || res.Attempts != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(alerts.raised) != 0 {
		t.Fatalf("expected no alerts on success")
	}
}

func TestDispatchGivesUpAfterAttempts(t *testing.T) {
	boom := errors.New("503")
	p := &fakeProvider{errs: []error{boom, boom, boom, boom}}
	d, alerts := newTestDispatcher(p)

	res := d.Dispatch(context.Background(), message(8))
	if res.Sent || res.Attempts != 3 || p.calls != 3 {
		t.Fatalf("expected three failed attempts, got %+v calls=%d", res, p.calls)
	}
	if res.Reason != ReasonProviderFailed || !errors.Is(res.Err, boom) {
		t.Fatalf("unexpected failure %+v", res)
	}
	if len(alerts.raised) != 1 || alerts.raised[0].Kind != enums.AlertProviderFailed {
		t.Fatalf("expected provider failure alert, got %+v", alerts.raised)
	}
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	p := &fakeProvider{errs: []error{backoff.Permanent(ErrRejected)}}
	d, _ := newTestDispatcher(p)

	res := d.Dispatch(context.Background(), message(8))
	if res.Sent || res.Attempts != 1 || !errors.Is(res.Err, ErrRejected) {
		t.Fatalf("expected single permanent failure, got %+v", res)
	}
}

func TestMissingContactIsUnreachable(t *testing.T) {
	for _, recipient := range []int64{9, 404} {
		p := &fakeProvider{}
		d, _ := newTestDispatcher(p)

		res := d.Dispatch(context.Background(), message(recipient))
		if res.Sent || res.Reason != ReasonRecipientUnreachable || !errors.Is(res.Err, ErrRecipientUnreachable) {
			t.Fatalf("recipient %d: unexpected result %+v", recipient, res)
		}
		if p.calls != 0 || res.Attempts != 0 {
			t.Fatalf("recipient %d: provider should not be called", recipient)
		}
	}
}

func TestConsecutiveFailuresRaiseOutageOnce(t *testing.T) {
	boom := errors.New("down")
	errs := make([]error, 0, 15)
	for i := 0; i < 15; i++ {
		errs = append(errs, boom)
	}
	p := &fakeProvider{errs: errs}
	d, alerts := newTestDispatcher(p)

	for i := 0; i < 4; i++ {
		d.Dispatch(context.Background(), message(8))
	}

	outages := 0
	for _, a := range alerts.raised {
		if a.Kind == enums.AlertProviderOutage {
			outages++
		}
	}
	if outages != 1 {
		t.Fatalf("expected one outage alert, got %d", outages)
	}
}

func TestCancelledContextStopsRetries(t *testing.T) {
	boom := errors.New("slow")
	p := &fakeProvider{errs: []error{boom, boom, boom}}
	d := NewDispatcher(p, fakeContacts{contacts: map[int64]pgrepo.ContactRecord{8: {TelegramChatID: 1}}}, Config{Attempts: 3, BaseBackoff: time.Hour, MaxBackoff: time.Hour}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res := d.Dispatch(ctx, message(8))
	if res.Sent || res.Attempts != 1 {
		t.Fatalf("expected one attempt before cancellation, got %+v", res)
	}
}
