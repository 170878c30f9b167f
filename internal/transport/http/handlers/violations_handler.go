package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	redrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/redis"
	violationsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/violations"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type ViolationAdmin interface {
	List(ctx context.Context, f model.ViolationFilter) ([]model.Violation, error)
	Flagged(ctx context.Context, limit int) ([]model.FlaggedSender, error)
	Summary(ctx context.Context) (redrepo.DashboardSummary, error)
	Block(ctx context.Context, p violationsvc.BlockParams) (model.BlockEntry, error)
	Unblock(ctx context.Context, senderID int64, adminID string) (model.BlockEntry, error)
}

type ViolationsHandler struct {
	service ViolationAdmin
}

func NewViolationsHandler(service ViolationAdmin) *ViolationsHandler {
	return &ViolationsHandler{service: service}
}

// List accepts sender_id, severity, since and until (RFC 3339), limit and offset.
func (h *ViolationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, r, "VIOLATIONS_SERVICE_UNAVAILABLE", "violations service is unavailable")
		return
	}

	filter, msg := violationFilterFromQuery(r)
	if msg != "" {
		writeBadRequest(w, r, msg)
		return
	}

	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, violationsvc.ErrValidation) {
			writeBadRequest(w, r, "invalid violation filter")
			return
		}
		writeInternal(w, r, httperrors.CodeInternal, "failed to list violations")
		return
	}

	out := make([]dto.Violation, 0, len(items))
	for _, v := range items {
		out = append(out, dto.Violation{
			ID:         v.ID,
			SenderID:   v.SenderID,
			MessageID:  v.MessageID,
			Severity:   string(v.Severity),
			Rule:       v.Rule,
			Excerpt:    v.Excerpt,
			RecordedAt: v.RecordedAt,
		})
	}
	httperrors.Write(w, http.StatusOK, dto.ViolationListResponse{Items: out})
}

func (h *ViolationsHandler) Flagged(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, r, "VIOLATIONS_SERVICE_UNAVAILABLE", "violations service is unavailable")
		return
	}

	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		writeBadRequest(w, r, "limit must be a non-negative integer")
		return
	}

	items, err := h.service.Flagged(r.Context(), limit)
	if err != nil {
		writeInternal(w, r, httperrors.CodeInternal, "failed to load flagged senders")
		return
	}

	out := make([]dto.FlaggedSender, 0, len(items))
	for _, item := range items {
		out = append(out, dto.FlaggedSender{SenderID: item.SenderID, FlaggedAt: item.FlaggedAt})
	}
	httperrors.Write(w, http.StatusOK, dto.FlaggedSendersResponse{Items: out})
}

func (h *ViolationsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, r, "VIOLATIONS_SERVICE_UNAVAILABLE", "violations service is unavailable")
		return
	}

	summary, err := h.service.Summary(r.Context())
	if err != nil {
		writeInternal(w, r, httperrors.CodeInternal, "failed to load violation summary")
		return
	}
	httperrors.Write(w, http.StatusOK, dto.ViolationSummaryResponse{
		Violations1h:  summary.Violations1h,
		AutoBlocks24h: summary.AutoBlocks24h,
		Escalations1h: summary.Escalations1h,
		FlaggedTotal:  summary.FlaggedTotal,
	})
}

func (h *ViolationsHandler) Block(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, r, "VIOLATIONS_SERVICE_UNAVAILABLE", "violations service is unavailable")
		return
	}

	senderID, ok := int64PathParam(r, "id")
	if !ok {
		writeBadRequest(w, r, "invalid user id")
		return
	}

	var req dto.BlockUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	var duration time.Duration
	if raw := strings.TrimSpace(req.Duration); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, r, "duration must be a positive duration such as 72h")
			return
		}
		duration = parsed
	}

	entry, err := h.service.Block(r.Context(), violationsvc.BlockParams{
		SenderID:   senderID,
		Duration:   duration,
		Indefinite: req.Indefinite,
		Reason:     strings.TrimSpace(req.Reason),
		AdminID:    identity.Actor(),
	})
	if err != nil {
		if errors.Is(err, violationsvc.ErrValidation) {
			writeBadRequest(w, r, "invalid block request")
			return
		}
		writeInternal(w, r, httperrors.CodeInternal, "failed to block user")
		return
	}
	httperrors.Write(w, http.StatusOK, blockEntryDTO(entry))
}

func (h *ViolationsHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.service == nil {
		writeInternal(w, r, "VIOLATIONS_SERVICE_UNAVAILABLE", "violations service is unavailable")
		return
	}

	senderID, ok := int64PathParam(r, "id")
	if !ok {
		writeBadRequest(w, r, "invalid user id")
		return
	}

	entry, err := h.service.Unblock(r.Context(), senderID, identity.Actor())
	if err != nil {
		switch {
		case errors.Is(err, violationsvc.ErrNotFound):
			writeNotFound(w, r, "user has no active block")
		case errors.Is(err, violationsvc.ErrValidation):
			writeBadRequest(w, r, "invalid unblock request")
		default:
			writeInternal(w, r, httperrors.CodeInternal, "failed to unblock user")
		}
		return
	}
	httperrors.Write(w, http.StatusOK, blockEntryDTO(entry))
}

func violationFilterFromQuery(r *http.Request) (model.ViolationFilter, string) {
	q := r.URL.Query()
	var f model.ViolationFilter

	if raw := strings.TrimSpace(q.Get("sender_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return f, "sender_id must be a positive integer"
		}
		f.SenderID = &id
	}
	if raw := strings.TrimSpace(q.Get("severity")); raw != "" {
		sev, ok := enums.ParseSeverity(strings.ToLower(raw))
		if !ok {
			return f, "unknown severity"
		}
		f.Severity = &sev
	}
	for _, p := range []struct {
		name   string
		target **time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, p.name + " must be an RFC 3339 timestamp"
		}
		t = t.UTC()
		*p.target = &t
	}

	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		return f, "limit must be a non-negative integer"
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		return f, "offset must be a non-negative integer"
	}
	f.Limit = limit
	f.Offset = offset
	return f, ""
}

func blockEntryDTO(e model.BlockEntry) dto.BlockEntry {
	return dto.BlockEntry{
		ID:         e.ID,
		SenderID:   e.SenderID,
		Reason:     e.Reason,
		CreatedBy:  e.CreatedBy,
		Count:      e.Count,
		StartsAt:   e.StartsAt,
		EndsAt:     e.EndsAt,
		Indefinite: e.Indefinite,
		LiftedAt:   e.LiftedAt,
		LiftedBy:   e.LiftedBy,
	}
}
