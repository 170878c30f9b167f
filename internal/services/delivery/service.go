package delivery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	pgrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/postgres"
)

const (
	ReasonRecipientUnreachable = "recipient_unreachable"
	ReasonProviderFailed       = "provider_failed"

	outageThreshold = 3
)

var (
	ErrRecipientUnreachable = errors.New("recipient unreachable")
	ErrRejected             = errors.New("provider rejected message")
)

// Provider sends text to one external channel. Errors wrapped with
// backoff.Permanent are not retried.
type Provider interface {
	Name() string
	Address(contact pgrepo.ContactRecord) (string, bool)
	Send(ctx context.Context, address, text string) (string, error)
}

type ContactDirectory interface {
	GetContact(ctx context.Context, userID int64) (pgrepo.ContactRecord, error)
}

type AlertSink interface {
	Raise(ctx context.Context, a model.Alert)
}

type Config struct {
	Attempts    int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Timeout     time.Duration
}

type Result struct {
	Sent        bool
	Provider    string
	ProviderRef string
	Attempts    int
	Reason      string
	Err         error
}

type Dispatcher struct {
	provider Provider
	contacts ContactDirectory
	alerts   AlertSink
	cfg      Config
	logger   *zap.Logger

	mu          sync.Mutex
	failures    int
	outageRaise bool
}

func NewDispatcher(provider Provider, contacts ContactDirectory, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		cfg.MaxBackoff = 10 * cfg.BaseBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		provider: provider,
		contacts: contacts,
		cfg:      cfg,
		logger:   logger,
	}
}

func (d *Dispatcher) AttachAlerts(alerts AlertSink) {
	d.alerts = alerts
}

// Dispatch resolves the recipient and sends with bounded exponential backoff.
// It never returns an error; the Result tells the caller which terminal
// state the message reached.
func (d *Dispatcher) Dispatch(ctx context.Context, msg model.Message) Result {
	if d.provider == nil {
		return Result{Reason: ReasonProviderFailed, Err: fmt.Errorf("delivery provider is nil")}
	}
	res := Result{Provider: d.provider.Name()}

	address, err := d.resolve(ctx, msg.RecipientID)
	if err != nil {
		res.Reason = ReasonRecipientUnreachable
		res.Err = err
		d.logger.Warn("recipient unreachable",
			zap.String("message_id", msg.ID),
			zap.Int64("recipient_id", msg.RecipientID),
			zap.Error(err),
		)
		return res
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.BaseBackoff
	policy.MaxInterval = d.cfg.MaxBackoff
	policy.MaxElapsedTime = 0

	operation := func() error {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()

		ref, sendErr := d.provider.Send(attemptCtx, address, msg.Body)
		if sendErr != nil {
			d.logger.Warn("provider send failed",
				zap.String("message_id", msg.ID),
				zap.String("provider", res.Provider),
				zap.Int("attempt", res.Attempts),
				zap.Error(sendErr),
			)
			return sendErr
		}
		res.ProviderRef = ref
		return nil
	}

	err = backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(d.cfg.Attempts-1)),
		ctx,
	))
	if err != nil {
		res.Reason = ReasonProviderFailed
		res.Err = err
		d.onFailure(ctx, msg, res)
		return res
	}

	res.Sent = true
	d.onSuccess()
	return res
}

func (d *Dispatcher) resolve(ctx context.Context, recipientID int64) (string, error) {
	if d.contacts == nil {
		return "", fmt.Errorf("%w: contact directory is nil", ErrRecipientUnreachable)
	}
	contact, err := d.contacts.GetContact(ctx, recipientID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return "", fmt.Errorf("%w: unknown recipient", ErrRecipientUnreachable)
		}
		return "", fmt.Errorf("%w: %v", ErrRecipientUnreachable, err)
	}
	address, ok := d.provider.Address(contact)
	if !ok {
		return "", fmt.Errorf("%w: no %s contact", ErrRecipientUnreachable, d.provider.Name())
	}
	return address, nil
}

func (d *Dispatcher) onSuccess() {
	d.mu.Lock()
	d.failures = 0
	d.outageRaise = false
	d.mu.Unlock()
}

// onFailure alerts per failed message and once more when consecutive
// failures suggest the provider itself is down.
func (d *Dispatcher) onFailure(ctx context.Context, msg model.Message, res Result) {
	d.mu.Lock()
	d.failures++
	outage := d.failures >= outageThreshold && !d.outageRaise
	if outage {
		d.outageRaise = true
	}
	failures := d.failures
	d.mu.Unlock()

	if d.alerts == nil {
		return
	}
	d.alerts.Raise(ctx, model.Alert{
		Kind:      enums.AlertProviderFailed,
		Severity:  enums.SeverityHigh,
		SenderID:  msg.SenderID,
		MessageID: msg.ID,
		Summary:   fmt.Sprintf("%s delivery failed after %d attempts", res.Provider, res.Attempts),
		Attributes: map[string]string{
			"provider": res.Provider,
			"error":    res.Err.Error(),
		},
	})
	if outage {
		d.alerts.Raise(ctx, model.Alert{
			Kind:     enums.AlertProviderOutage,
			Severity: enums.SeverityHigh,
			Summary:  fmt.Sprintf("%s failed %d consecutive messages", res.Provider, failures),
			Attributes: map[string]string{
				"provider":             res.Provider,
				"consecutive_failures": strconv.Itoa(failures),
			},
		})
	}
}
