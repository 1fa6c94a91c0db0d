package api

import (
	"net/http"
	"time"

	"github.com/example/gas-agency/internal/domain/stock"
)

type ProvisionAgencyRequest struct {
	AgencyID  string `json:"agency_id" validate:"required,max=64"`
	Name      string `json:"name" validate:"required,max=200"`
	Capacity  int    `json:"capacity"`
	Available int    `json:"available"`
}

type RestockRequest struct {
	Quantity int `json:"quantity"`
}

// StockResponse is the public view of an agency's stock.
type StockResponse struct {
	AgencyID  string `json:"agency_id"`
	Name      string `json:"name"`
	Available int    `json:"available"`
	Capacity  int    `json:"capacity"`
}

func (h *Handlers) ListAgencies(w http.ResponseWriter, r *http.Request) {
	records, err := h.ledger.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Handlers) ProvisionAgency(w http.ResponseWriter, r *http.Request) {
	var req ProvisionAgencyRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.ledger.Provision(r.Context(), stock.ProvisionInput(req))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

// GetStock reads through the stock cache when one is configured.
func (h *Handlers) GetStock(w http.ResponseWriter, r *http.Request) {
	agencyID := r.PathValue("id")

	if h.stockCache != nil {
		rec, hit, err := h.stockCache.Get(r.Context(), agencyID)
		if err != nil {
			h.logger.WarnContext(r.Context(), "stock cache read failed", "agency_id", agencyID, "error", err)
		}
		if hit {
			respondJSON(w, http.StatusOK, stockResponse(rec))
			return
		}
	}

	rec, err := h.ledger.Get(r.Context(), agencyID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if h.stockCache != nil {
		if err := h.stockCache.Set(r.Context(), rec); err != nil {
			h.logger.WarnContext(r.Context(), "stock cache write failed", "agency_id", agencyID, "error", err)
		}
	}
	respondJSON(w, http.StatusOK, stockResponse(rec))
}

func (h *Handlers) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.ledger.Restock(r.Context(), r.PathValue("id"), req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.invalidateStock(r, rec.AgencyID)
	respondJSON(w, http.StatusOK, rec)
}

// StockMovements reports one agency's opening stock, movements and closing
// stock for ?date=YYYY-MM-DD (UTC), defaulting to today.
func (h *Handlers) StockMovements(w http.ResponseWriter, r *http.Request) {
	var day time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(stock.DateLayout, raw, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidDate, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	report, err := h.ledger.DailyMovements(r.Context(), r.PathValue("id"), day)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *Handlers) invalidateStock(r *http.Request, agencyID string) {
	if h.stockCache == nil {
		return
	}
	if err := h.stockCache.Invalidate(r.Context(), agencyID); err != nil {
		h.logger.WarnContext(r.Context(), "stock cache invalidation failed", "agency_id", agencyID, "error", err)
	}
}

func stockResponse(rec *stock.Record) StockResponse {
	return StockResponse{
		AgencyID:  rec.AgencyID,
		Name:      rec.Name,
		Available: rec.Available,
		Capacity:  rec.Capacity,
	}
}
