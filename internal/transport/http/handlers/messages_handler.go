package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type MessageGateway interface {
	Submit(ctx context.Context, senderID, recipientID int64, text string) (model.SubmitResult, error)
	GetMessage(ctx context.Context, id string, senderID int64) (model.SubmitResult, error)
}

type MessagesHandler struct {
	gateway MessageGateway
}

func NewMessagesHandler(gateway MessageGateway) *MessagesHandler {
	return &MessagesHandler{gateway: gateway}
}

// Submit always answers 200 once the message is recorded; the outcome is in
// the status field. Policy rejections carry no rule detail.
func (h *MessagesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.gateway == nil {
		writeInternal(w, r, "GATEWAY_UNAVAILABLE", "message gateway is unavailable")
		return
	}

	var req dto.SubmitMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, r, "invalid request body")
		return
	}

	res, err := h.gateway.Submit(r.Context(), identity.UserID, req.RecipientID, req.Text)
	if err != nil {
		if errors.Is(err, gatewaysvc.ErrValidation) {
			writeBadRequest(w, r, "recipient_id and non-empty text are required")
			return
		}
		writeInternal(w, r, httperrors.CodeInternal, "failed to submit message")
		return
	}

	httperrors.Write(w, http.StatusOK, messageResponse(res))
}

func (h *MessagesHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFromRequest(w, r)
	if !ok {
		return
	}
	if h.gateway == nil {
		writeInternal(w, r, "GATEWAY_UNAVAILABLE", "message gateway is unavailable")
		return
	}

	id := strings.TrimSpace(chi.URLParam(r, "id"))
	res, err := h.gateway.GetMessage(r.Context(), id, identity.UserID)
	if err != nil {
		switch {
		case errors.Is(err, gatewaysvc.ErrValidation):
			writeBadRequest(w, r, "invalid message id")
		case errors.Is(err, gatewaysvc.ErrNotFound):
			writeNotFound(w, r, "message not found")
		default:
			writeInternal(w, r, httperrors.CodeInternal, "failed to load message")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, messageResponse(res))
}

func messageResponse(res model.SubmitResult) dto.MessageResponse {
	return dto.MessageResponse{
		MessageID:     res.MessageID,
		Status:        string(res.Status),
		Reason:        res.Reason,
		RetryAfterSec: res.RetryAfterSec,
	}
}
