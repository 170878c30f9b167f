package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

const (
	pageSize    = 1000
	contentType = "application/x-ndjson"
)

type entrySource interface {
	ListBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]model.AuditEntry, error)
}

type objectStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Job exports the previous UTC day of audit entries as one JSONL object.
type Job struct {
	entries entrySource
	store   objectStore
	prefix  string
	now     func() time.Time
	logger  *zap.Logger
}

type Result struct {
	Key     string
	Entries int
	Skipped bool
}

func New(entries entrySource, store objectStore, prefix string, logger *zap.Logger) *Job {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		prefix = "audit"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		entries: entries,
		store:   store,
		prefix:  prefix,
		now:     time.Now,
		logger:  logger,
	}
}

func (j *Job) Run(ctx context.Context) (Result, error) {
	if j.entries == nil || j.store == nil {
		return Result{}, nil
	}

	day := j.now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -1)
	key := ObjectKey(j.prefix, day)

	exists, err := j.store.Exists(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Key: key, Skipped: true}, nil
	}

	var (
		buf     bytes.Buffer
		afterID int64
		total   int
	)
	enc := json.NewEncoder(&buf)
	for {
		page, err := j.entries.ListBetween(ctx, day, day.AddDate(0, 0, 1), afterID, pageSize)
		if err != nil {
			return Result{}, fmt.Errorf("list audit entries for %s: %w", day.Format(time.DateOnly), err)
		}
		for _, e := range page {
			if err := enc.Encode(e); err != nil {
				return Result{}, fmt.Errorf("encode audit entry %d: %w", e.ID, err)
			}
			afterID = e.ID
		}
		total += len(page)
		if len(page) < pageSize {
			break
		}
	}

	if err := j.store.Put(ctx, key, buf.Bytes(), contentType); err != nil {
		return Result{}, err
	}

	j.logger.Info("audit archive uploaded", zap.String("key", key), zap.Int("entries", total))
	return Result{Key: key, Entries: total}, nil
}

func ObjectKey(prefix string, day time.Time) string {
	return path.Join(prefix, day.Format("2006/01/02")+".jsonl")
}
