package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"
)

var blockCols = []string{"id", "sender_id", "reason", "created_by", "violation_count", "starts_at", "ends_at", "indefinite", "lifted_at", "lifted_by"}

func TestBlockRepoUpsertClosesExpiredThenInserts(t *testing.T) {
	mock := newMock(t)
	repo := NewBlockRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ends := now.Add(7 * 24 * time.Hour)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE block_entries\s+SET lifted_at = ends_at`).
		WithArgs(int64(4), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO block_entries`).
		WithArgs(int64(4), "auto_violations", "system", 3, now, &ends, false).
		WillReturnRows(pgxmock.NewRows(append(blockCols, "inserted")).
			AddRow(int64(11), int64(4), "auto_violations", "system", 3, now, &ends, false, nil, nil, true))
	mock.ExpectCommit()

	entry, inserted, err := repo.Upsert(context.Background(), UpsertBlockParams{
		SenderID:  4,
		Reason:    "auto_violations",
		CreatedBy: "system",
		Count:     3,
		EndsAt:    &ends,
		At:        now,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !inserted || entry.ID != 11 || !entry.ActiveAt(now) {
		t.Fatalf("unexpected entry: %+v inserted=%v", entry, inserted)
	}
}

func TestBlockRepoUpsertRequiresEnd(t *testing.T) {
	mock := newMock(t)
	repo := NewBlockRepo(mock)
	if _, _, err := repo.Upsert(context.Background(), UpsertBlockParams{SenderID: 4}); err == nil {
		t.Fatalf("expected error for finite block without end")
	}
}

func TestBlockRepoLiftWithoutActive(t *testing.T) {
	mock := newMock(t)
	repo := NewBlockRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE block_entries\s+SET lifted_at = \$2`).
		WithArgs(int64(4), now, "admin-1").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Lift(context.Background(), 4, "admin-1", now); !errors.Is(err, ErrNoActiveBlock) {
		t.Fatalf("expected ErrNoActiveBlock, got %v", err)
	}
}
