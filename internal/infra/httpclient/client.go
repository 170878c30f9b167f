package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

func New(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type RetryOptions struct {
	// AttemptTimeout bounds every single attempt, not the whole call.
	AttemptTimeout time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	Logger         *zap.Logger
}

// NewRetrying returns a client that retries connection errors, 5xx and 429.
func NewRetrying(opts RetryOptions) *retryablehttp.Client {
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 5 * time.Second
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	if opts.RetryWaitMin <= 0 {
		opts.RetryWaitMin = 100 * time.Millisecond
	}
	if opts.RetryWaitMax <= 0 {
		opts.RetryWaitMax = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: opts.AttemptTimeout}
	client.RetryMax = opts.RetryMax
	client.RetryWaitMin = opts.RetryWaitMin
	client.RetryWaitMax = opts.RetryWaitMax
	client.Logger = retryablehttp.LeveledLogger(leveledZap{inner: opts.Logger.Sugar()})
	return client
}

// leveledZap demotes retry errors to warnings since a retry follows them.
type leveledZap struct {
	inner *zap.SugaredLogger
}

func (l leveledZap) Error(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Warn(msg string, keysAndValues ...interface{}) {
	l.inner.Warnw(msg, keysAndValues...)
}

func (l leveledZap) Info(msg string, keysAndValues ...interface{}) {
	l.inner.Infow(msg, keysAndValues...)
}

func (l leveledZap) Debug(msg string, keysAndValues ...interface{}) {
	l.inner.Debugw(msg, keysAndValues...)
}
