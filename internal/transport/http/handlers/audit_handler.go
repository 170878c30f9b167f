package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	auditsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/audit"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type AuditReader interface {
	Trail(ctx context.Context, messageID string) ([]model.AuditEntry, error)
}

type AuditHandler struct {
	audit AuditReader
}

func NewAuditHandler(audit AuditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// Trail returns every pipeline decision recorded for a message, oldest first.
func (h *AuditHandler) Trail(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.audit == nil {
		writeInternal(w, r, "AUDIT_UNAVAILABLE", "audit log is unavailable")
		return
	}

	messageID := strings.TrimSpace(chi.URLParam(r, "id"))
	entries, err := h.audit.Trail(r.Context(), messageID)
	if err != nil {
		if errors.Is(err, auditsvc.ErrValidation) {
			writeBadRequest(w, r, "invalid message id")
			return
		}
		writeInternal(w, r, httperrors.CodeInternal, "failed to load audit trail")
		return
	}
	if len(entries) == 0 {
		writeNotFound(w, r, "no audit entries for message")
		return
	}

	out := make([]dto.AuditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntry{
			ID:        e.ID,
			Stage:     string(e.Stage),
			Outcome:   e.Outcome,
			Actor:     e.Actor,
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.AuditTrailResponse{MessageID: messageID, Entries: out})
}
