package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	redrepo "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/repo/redis"
	authsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/auth"
	gatewaysvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/gateway"
	ledgersvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/ledger"
	reviewsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/review"
	violationsvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/violations"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
)

type reviewListerStub struct {
	page          reviewsvc.Page
	limit, offset int
}

func (s *reviewListerStub) ListPending(_ context.Context, limit, offset int) (reviewsvc.Page, error) {
	s.limit, s.offset = limit, offset
	return s.page, nil
}

type reviewResolverStub struct {
	res  model.ReviewResolution
	err  error
	last gatewaysvc.ResolveParams
}

func (s *reviewResolverStub) Resolve(_ context.Context, p gatewaysvc.ResolveParams) (model.ReviewResolution, error) {
	s.last = p
	return s.res, s.err
}

type violationAdminStub struct {
	filter     model.ViolationFilter
	block      violationsvc.BlockParams
	unblockErr error
}

func (s *violationAdminStub) List(_ context.Context, f model.ViolationFilter) ([]model.Violation, error) {
	s.filter = f
	return []model.Violation{{ID: 1, SenderID: 5, Severity: enums.SeverityHigh, Rule: "scam"}}, nil
}

func (s *violationAdminStub) Flagged(context.Context, int) ([]model.FlaggedSender, error) {
	return []model.FlaggedSender{{SenderID: 5}}, nil
}

func (s *violationAdminStub) Summary(context.Context) (redrepo.DashboardSummary, error) {
	return redrepo.DashboardSummary{Violations1h: 3, AutoBlocks24h: 1}, nil
}

func (s *violationAdminStub) Block(_ context.Context, p violationsvc.BlockParams) (model.BlockEntry, error) {
	s.block = p
	return model.BlockEntry{ID: 11, SenderID: p.SenderID, CreatedBy: "admin:" + p.AdminID}, nil
}

func (s *violationAdminStub) Unblock(_ context.Context, senderID int64, _ string) (model.BlockEntry, error) {
	if s.unblockErr != nil {
		return model.BlockEntry{}, s.unblockErr
	}
	return model.BlockEntry{ID: 11, SenderID: senderID}, nil
}

type costReporterStub struct {
	err error
}

func (s costReporterStub) Report(_ context.Context, period string) (model.CostReport, error) {
	if s.err != nil {
		return model.CostReport{}, s.err
	}
	return model.CostReport{
		Period:     period,
		Total:      1.5,
		Messages:   3,
		TopSenders: []model.SenderCost{{SenderID: 5, Total: 1.5, Messages: 3}},
	}, nil
}

func TestReviewListPassesPaging(t *testing.T) {
	lister := &reviewListerStub{page: reviewsvc.Page{
		Items:     []model.ReviewItem{{ID: 1, MessageID: "m-1", Body: "hello there", Source: enums.EscalationAdapterFailure}},
		Pending:   1,
		ETABucket: "under_10m",
	}}
	handler := NewReviewHandler(lister, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/reviews?limit=10&offset=20", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if lister.limit != 10 || lister.offset != 20 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", lister.limit, lister.offset)
	}

	var resp dto.ReviewListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Preview != "hello there" || resp.Items[0].Source != "adapter_failure" {
		t.Fatalf("unexpected items: %+v", resp.Items)
	}
}

func TestReviewListRejectsBadLimit(t *testing.T) {
	handler := NewReviewHandler(&reviewListerStub{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/reviews?limit=-1", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestReviewResolveReportsFirstDecision(t *testing.T) {
	first := enums.ReviewDecisionReject
	resolver := &reviewResolverStub{res: model.ReviewResolution{
		Item:            model.ReviewItem{ID: 7, Decision: &first, ReviewerID: "2"},
		MessageStatus:   enums.MessageStatusReviewRejected,
		AlreadyResolved: true,
	}}
	handler := NewReviewHandler(nil, resolver)

	req := httptest.NewRequest(http.MethodPost, "/admin/reviews/7/resolve", strings.NewReader(`{"decision":"approve","note":"ok"}`))
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()

	handler.Resolve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if resolver.last.ItemID != 7 || resolver.last.AdminID != "1" || resolver.last.Decision != enums.ReviewDecisionApprove {
		t.Fatalf("unexpected resolve params: %+v", resolver.last)
	}

	var resp dto.ResolveReviewResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.AlreadyResolved || resp.Item.Decision == nil || *resp.Item.Decision != "reject" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestReviewResolveRejectsUnknownDecision(t *testing.T) {
	resolver := &reviewResolverStub{}
	handler := NewReviewHandler(nil, resolver)

	req := httptest.NewRequest(http.MethodPost, "/admin/reviews/7/resolve", strings.NewReader(`{"decision":"maybe"}`))
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()

	handler.Resolve(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
	if resolver.last.ItemID != 0 {
		t.Fatalf("resolver should not be called")
	}
}

func TestReviewResolveUnknownItem(t *testing.T) {
	handler := NewReviewHandler(nil, &reviewResolverStub{err: gatewaysvc.ErrNotFound})

	req := httptest.NewRequest(http.MethodPost, "/admin/reviews/7/resolve", strings.NewReader(`{"decision":"reject"}`))
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()

	handler.Resolve(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestViolationsListParsesFilter(t *testing.T) {
	service := &violationAdminStub{}
	handler := NewViolationsHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/admin/violations?sender_id=5&severity=HIGH&since=2026-03-01T00:00:00Z&limit=5", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	f := service.filter
	if f.SenderID == nil || *f.SenderID != 5 {
		t.Fatalf("unexpected sender filter: %+v", f.SenderID)
	}
	if f.Severity == nil || *f.Severity != enums.SeverityHigh {
		t.Fatalf("unexpected severity filter: %+v", f.Severity)
	}
	if f.Since == nil || !f.Since.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected since filter: %+v", f.Since)
	}
	if f.Until != nil || f.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", f)
	}
}

func TestViolationsListRejectsBadTimestamp(t *testing.T) {
	handler := NewViolationsHandler(&violationAdminStub{})

	req := httptest.NewRequest(http.MethodGet, "/admin/violations?until=yesterday", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.List(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestViolationsSummary(t *testing.T) {
	handler := NewViolationsHandler(&violationAdminStub{})

	req := httptest.NewRequest(http.MethodGet, "/admin/violations/summary", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.Summary(rr, req)

	var resp dto.ViolationSummaryResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Violations1h != 3 || resp.AutoBlocks24h != 1 {
		t.Fatalf("unexpected summary: %+v", resp)
	}
}

func TestBlockParsesDuration(t *testing.T) {
	service := &violationAdminStub{}
	handler := NewViolationsHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/admin/users/5/block", strings.NewReader(`{"duration":"72h","reason":" spam "}`))
	req = withIdentity(req, 9, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "5"))
	rr := httptest.NewRecorder()

	handler.Block(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	p := service.block
	if p.SenderID != 5 || p.Duration != 72*time.Hour || p.Reason != "spam" || p.AdminID != "9" {
		t.Fatalf("unexpected block params: %+v", p)
	}
}

func TestBlockRejectsBadDuration(t *testing.T) {
	handler := NewViolationsHandler(&violationAdminStub{})

	req := httptest.NewRequest(http.MethodPost, "/admin/users/5/block", strings.NewReader(`{"duration":"-1h"}`))
	req = withIdentity(req, 9, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "5"))
	rr := httptest.NewRecorder()

	handler.Block(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestUnblockWithoutActiveBlock(t *testing.T) {
	handler := NewViolationsHandler(&violationAdminStub{unblockErr: violationsvc.ErrNotFound})

	req := httptest.NewRequest(http.MethodDelete, "/admin/users/5/block", nil)
	req = withIdentity(req, 9, authsvc.RoleAdmin)
	req = req.WithContext(withURLParam(req.Context(), "id", "5"))
	rr := httptest.NewRecorder()

	handler.Unblock(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusNotFound)
	}
}

func TestCostReport(t *testing.T) {
	handler := NewCostsHandler(costReporterStub{})

	req := httptest.NewRequest(http.MethodGet, "/admin/costs?period=2026-03", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.Report(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	var resp dto.CostReportResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Period != "2026-03" || len(resp.TopSenders) != 1 || resp.TopSenders[0].SenderID != 5 {
		t.Fatalf("unexpected report: %+v", resp)
	}
}

func TestCostReportBadPeriod(t *testing.T) {
	handler := NewCostsHandler(costReporterStub{err: ledgersvc.ErrValidation})

	req := httptest.NewRequest(http.MethodGet, "/admin/costs?period=March", nil)
	req = withIdentity(req, 1, authsvc.RoleAdmin)
	rr := httptest.NewRecorder()

	handler.Report(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestReviewResolveAuditsReviewerHandle(t *testing.T) {
	resolver := &reviewResolverStub{}
	handler := NewReviewHandler(nil, resolver)

	req := httptest.NewRequest(http.MethodPost, "/admin/reviews/7/resolve", strings.NewReader(`{"decision":"reject"}`))
	req = req.WithContext(authsvc.WithIdentity(req.Context(), authsvc.Identity{UserID: 1, Role: authsvc.RoleAdmin, Reviewer: "alice"}))
	req = req.WithContext(withURLParam(req.Context(), "id", "7"))
	rr := httptest.NewRecorder()

	handler.Resolve(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d want %d", rr.Code, http.StatusOK)
	}
	if resolver.last.AdminID != "alice" {
		t.Fatalf("expected reviewer handle as admin id, got %q", resolver.last.AdminID)
	}
}
