package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	authsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/auth"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
)

type gatewayStub struct {
	submitRes  model.SubmitResult
	submitErr  error
	getRes     model.SubmitResult
	getErr     error
	lastSender int64
	lastText   string
}

func (s *gatewayStub) Submit(_ context.Context, senderID, _ int64, text string) (model.SubmitResult, error) {
	s.lastSender = senderID
	s.lastText = text
	return s.submitRes, s.submitErr
}

func (s *gatewayStub) GetMessage(_ context.Context, _ string, senderID int64) (model.SubmitResult, error) {
	s.lastSender = senderID
	return s.getRes, s.getErr
}

func withIdentity(req *http.Request, userID int64, role string) *http.Request {
	return req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{
		UserID: userID,
		Role:   role,
	}))
}

func withURLParam(ctx context.Context, key, value string) context.Context {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, routeCtx)
}

func TestSubmitUsesCallerAsSender(t *testing.T) {
	stub := &gatewayStub{submitRes: model.SubmitResult{
		MessageID: "m-1",
		Status:    enums.MessageStatusRejectedPolicy,
		Reason:    gatewaysvc.ReasonNotSent,
	}}
	handler := NewMessagesHandler(stub)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"recipient_id":9,"text":"hello"}`))
	req = withIdentity(req, 42, authsvc.RoleSender)
	rr := httptest.NewRecorder()

	handler.Submit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if stub.lastSender != 42 || stub.lastText != "hello" {
		t.Fatalf("unexpected submit args: sender=%d text=%q", stub.lastSender, stub.lastText)
	}

	var resp dto.MessageResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(enums.MessageStatusRejectedPolicy) || resp.Reason != gatewaysvc.ReasonNotSent {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitRequiresIdentity(t *testing.T) {
	handler := NewMessagesHandler(&gatewayStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"recipient_id":9,"text":"hello"}`))
	rr := httptest.NewRecorder()

	handler.Submit(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestSubmitRejectsUnknownFields(t *testing.T) {
	handler := NewMessagesHandler(&gatewayStub{})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"recipient_id":9,"text":"hi","sender_id":1}`))
	req = withIdentity(req, 42, authsvc.RoleSender)
	rr := httptest.NewRecorder()

	handler.Submit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSubmitMapsValidationError(t *testing.T) {
	handler := NewMessagesHandler(&gatewayStub{submitErr: gatewaysvc.ErrValidation})

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"recipient_id":9,"text":""}`))
	req = withIdentity(req, 42, authsvc.RoleSender)
	rr := httptest.NewRecorder()

	handler.Submit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	handler := NewMessagesHandler(&gatewayStub{getErr: gatewaysvc.ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/v1/messages/m-1", nil)
	req = withIdentity(req, 42, authsvc.RoleSender)
	req = req.WithContext(withURLParam(req.Context(), "id", "m-1"))
	rr := httptest.NewRecorder()

	handler.Get(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}
