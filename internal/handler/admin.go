package handler

import (
	"net/http"
	"runtime"
	"time"

	"storefront-api/internal/service"
	"storefront-api/pkg/apierror"
	"storefront-api/pkg/response"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// AdminHandler serves operator routes.
type AdminHandler struct {
	svc       *service.Storefront
	startTime time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(svc *service.Storefront) *AdminHandler {
	return &AdminHandler{svc: svc, startTime: time.Now()}
}

// GetStats handles GET /admin/stats
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	stats := map[string]interface{}{
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"uptime_human":   time.Since(h.startTime).Round(time.Second).String(),
		"server_time":    time.Now().Format(time.RFC3339),
		"store_type":     h.svc.StoreType(),
		"fulfillment":    h.svc.Stats(),
		"memory": map[string]interface{}{
			"alloc_mb":      float64(memStats.Alloc) / 1024 / 1024,
			"sys_mb":        float64(memStats.Sys) / 1024 / 1024,
			"heap_inuse_mb": float64(memStats.HeapInuse) / 1024 / 1024,
			"num_gc":        memStats.NumGC,
			"goroutines":    runtime.NumGoroutine(),
		},
		"runtime": map[string]interface{}{
			"go_version": runtime.Version(),
			"os":         runtime.GOOS,
			"arch":       runtime.GOARCH,
			"cpus":       runtime.NumCPU(),
		},
	}

	response.OK(w, stats)
}

// Reconcile handles POST /admin/reconcile
func (h *AdminHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, sum)
}

// CreditRequest is the body of POST /admin/users/{userId}/credit.
type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Credit handles POST /admin/users/{userId}/credit
func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, r, apierror.ValidationError("Invalid amount", apierror.FieldError{
			Field:   "amount",
			Message: "must be a positive decimal",
		}))
		return
	}

	userID := chi.URLParam(r, "userId")
	balance, err := h.svc.Credit(r.Context(), userID, req.Amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]interface{}{
		"userId":  userID,
		"balance": balance,
	})
}
