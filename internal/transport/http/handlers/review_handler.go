package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	reviewsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/review"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type ReviewLister interface {
	ListPending(ctx context.Context, limit, offset int) (reviewsvc.Page, error)
}

type ReviewResolver interface {
	Resolve(ctx context.Context, p gatewaysvc.ResolveParams) (model.ReviewResolution, error)
}

type ReviewHandler struct {
	queue    ReviewLister
	resolver ReviewResolver
}

func NewReviewHandler(queue ReviewLister, resolver ReviewResolver) *ReviewHandler {
	return &ReviewHandler{queue: queue, resolver: resolver}
}

func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.queue == nil {
		writeInternal(w, r, "REVIEW_SERVICE_UNAVAILABLE", "review service is unavailable")
		return
	}

	limit, ok := queryInt(r, "limit", 50)
	if !ok {
		writeBadRequest(w, r, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset", 0)
	if !ok {
		writeBadRequest(w, r, "offset must be a non-negative integer")
		return
	}

	page, err := h.queue.ListPending(r.Context(), limit, offset)
	if err != nil {
		writeInternal(w, r, httperrors.CodeInternal, "failed to list review queue")
		return
	}

	items := make([]dto.ReviewItem, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, reviewItemDTO(item))
	}
	httperrors.Write(w, http.StatusOK, dto.ReviewListResponse{
		Items:     items,
		Pending:   page.Pending,
		ETABucket: page.ETABucket,
	})
}

// Resolve treats a repeated decision on the same item as success and
// reports the first decision.
func (h *ReviewHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.resolver == nil {
		writeInternal(w, r, "REVIEW_SERVICE_UNAVAILABLE", "review service is unavailable")
		return
	}

	itemID, ok := int64PathParam(r, "id")
	if !ok {
		writeBadRequest(w, r, "invalid review item id")
		return
	}

	var req dto.ResolveReviewRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}
	decision, ok := enums.ParseReviewDecision(req.Decision)
	if !ok {
		writeBadRequest(w, r, "decision must be approve or reject")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), gatewaysvc.ResolveParams{
		ItemID:   itemID,
		Decision: decision,
		AdminID:  identity.Actor(),
		Note:     req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, gatewaysvc.ErrValidation):
			writeBadRequest(w, r, "invalid review decision")
		case errors.Is(err, gatewaysvc.ErrNotFound):
			writeNotFound(w, r, "review item not found")
		default:
			writeInternal(w, r, httperrors.CodeInternal, "failed to resolve review item")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ResolveReviewResponse{
		Item:            reviewItemDTO(res.Item),
		MessageStatus:   string(res.MessageStatus),
		AlreadyResolved: res.AlreadyResolved,
	})
}

func reviewItemDTO(item model.ReviewItem) dto.ReviewItem {
	out := dto.ReviewItem{
		ID:         item.ID,
		MessageID:  item.MessageID,
		SenderID:   item.SenderID,
		Preview:    reviewsvc.Preview(item.Body),
		Reason:     item.Reason,
		Source:     string(item.Source),
		EnqueuedAt: item.EnqueuedAt,
		ReviewerID: item.ReviewerID,
		Note:       item.Note,
		ResolvedAt: item.ResolvedAt,
	}
	if item.Decision != nil {
		v := string(*item.Decision)
		out.Decision = &v
	}
	return out
}
