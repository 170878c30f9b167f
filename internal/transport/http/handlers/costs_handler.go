package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
	ledgersvc "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/services/ledger"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/dto"
	httperrors "github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/transport/http/errors"
)

type CostReporter interface {
	Report(ctx context.Context, period string) (model.CostReport, error)
}

type CostsHandler struct {
	ledger CostReporter
}

func NewCostsHandler(ledger CostReporter) *CostsHandler {
	return &CostsHandler{ledger: ledger}
}

func (h *CostsHandler) Report(w http.ResponseWriter, r *http.Request) {
	if _, ok := identityFromRequest(w, r); !ok {
		return
	}
	if h.ledger == nil {
		writeInternal(w, r, "LEDGER_UNAVAILABLE", "cost ledger is unavailable")
		return
	}

	report, err := h.ledger.Report(r.Context(), strings.TrimSpace(r.URL.Query().Get("period")))
	if err != nil {
		if errors.Is(err, ledgersvc.ErrValidation) {
			writeBadRequest(w, r, "period must be YYYY-MM")
			return
		}
		writeInternal(w, r, httperrors.CodeInternal, "failed to build cost report")
		return
	}

	top := make([]dto.SenderCost, 0, len(report.TopSenders))
	for _, s := range report.TopSenders {
		top = append(top, dto.SenderCost{SenderID: s.SenderID, Total: s.Total, Messages: s.Messages})
	}
	httperrors.Write(w, http.StatusOK, dto.CostReportResponse{
		Period:     report.Period,
		Total:      report.Total,
		Messages:   report.Messages,
		TopSenders: top,
	})
}
