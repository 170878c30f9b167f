package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

var messageCols = []string{"id", "sender_id", "recipient_id", "body", "status", "reason", "provider", "provider_ref", "created_at", "updated_at"}

func TestMessageRepoCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO messages`).
		WithArgs("m-1", int64(1), int64(2), "hi", "submitted", now).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-1", int64(1), int64(2), "hi", "submitted", nil, nil, nil, now, now))

	msg, err := repo.Create(context.Background(), model.Message{
		ID: "m-1", SenderID: 1, RecipientID: 2, Body: "hi", Status: enums.MessageStatusSubmitted, CreatedAt: now,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.Status != enums.MessageStatusSubmitted || msg.Reason != "" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessageRepoCreateValidates(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)
	if _, err := repo.Create(context.Background(), model.Message{ID: "m-1"}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestMessageRepoTransitionApplies(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE messages`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-1", int64(1), int64(2), "hi", "sent", nil, strPtr("telegram"), strPtr("77"), now, now))

	msg, err := repo.Transition(context.Background(), TransitionParams{
		ID:          "m-1",
		From:        []enums.MessageStatus{enums.MessageStatusApproved},
		To:          enums.MessageStatusSent,
		Provider:    "telegram",
		ProviderRef: "77",
		At:          now,
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if msg.Status != enums.MessageStatusSent || msg.ProviderRef != "77" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestMessageRepoTransitionReportsConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`UPDATE messages`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`SELECT .+ FROM messages WHERE id`).
		WithArgs("m-1").
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-1", int64(1), int64(2), "hi", "review_rejected", nil, nil, nil, now, now))

	current, err := repo.Transition(context.Background(), TransitionParams{
		ID:   "m-1",
		From: []enums.MessageStatus{enums.MessageStatusPendingReview},
		To:   enums.MessageStatusApproved,
		At:   now,
	})
	if !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}
	if current.Status != enums.MessageStatusReviewRejected {
		t.Fatalf("expected current status to be returned, got %s", current.Status)
	}
}

func TestMessageRepoGetNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)

	mock.ExpectQuery(`SELECT .+ FROM messages WHERE id`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMessageRepoListStale(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM messages m\s+WHERE m.updated_at < \$2(.|\n)*ri.decision IS NOT NULL`).
		WithArgs([]string{"submitted", "approved"}, now, 10, "pending_review").
		WillReturnRows(pgxmock.NewRows(messageCols).
			AddRow("m-1", int64(1), int64(2), "a", "submitted", nil, nil, nil, now, now).
			AddRow("m-2", int64(3), int64(4), "b", "approved", nil, nil, nil, now, now).
			AddRow("m-3", int64(5), int64(6), "c", "pending_review", nil, nil, nil, now, now))

	items, err := repo.ListStale(context.Background(),
		[]enums.MessageStatus{enums.MessageStatusSubmitted, enums.MessageStatusApproved}, now, 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(items) != 3 || items[1].Status != enums.MessageStatusApproved || items[2].Status != enums.MessageStatusPendingReview {
		t.Fatalf("unexpected stale messages: %+v", items)
	}
}
