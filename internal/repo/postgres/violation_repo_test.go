package postgres

import (
	"context"
	"strings"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

func TestBuildViolationQueryAppliesFilters(t *testing.T) {
	sender := int64(8)
	severity := enums.SeverityHarmful
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	query, args, err := buildViolationQuery(model.ViolationFilter{
		SenderID: &sender,
		Severity: &severity,
		Since:    &since,
		Limit:    1000,
	})
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	for _, fragment := range []string{"sender_id = $1", "severity = $2", "recorded_at >= $3", "ORDER BY recorded_at DESC, id DESC", "LIMIT 500"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected %q in query %q", fragment, query)
		}
	}
	if len(args) != 3 || args[1] != "harmful" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildViolationQueryDefaults(t *testing.T) {
	query, args, err := buildViolationQuery(model.ViolationFilter{})
	if err != nil {
		t.Fatalf("build query: %v", err)
	}
	if strings.Contains(query, "WHERE") || !strings.Contains(query, "LIMIT 50") || len(args) != 0 {
		t.Fatalf("unexpected default query %q args %v", query, args)
	}
}

func TestViolationRepoInsert(t *testing.T) {
	mock := newMock(t)
	repo := NewViolationRepo(mock)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO violations`).
		WithArgs(int64(8), "m-1", "harmful", "fraud", "send money", now).
		WillReturnRows(pgxmock.NewRows([]string{"id", "sender_id", "message_id", "severity", "rule", "excerpt", "recorded_at"}).
			AddRow(int64(3), int64(8), "m-1", "harmful", "fraud", "send money", now))

	v, err := repo.Insert(context.Background(), model.Violation{
		SenderID: 8, MessageID: "m-1", Severity: enums.SeverityHarmful, Rule: "fraud", Excerpt: "send money", RecordedAt: now,
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if v.ID != 3 || v.Severity != enums.SeverityHarmful {
		t.Fatalf("unexpected violation: %+v", v)
	}
}
