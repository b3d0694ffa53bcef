package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"svcmarket/internal/ledger"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

// CallerHeader carries the authenticated account identity set by the
// fronting gateway.
const CallerHeader = "X-Account-ID"

type Handler struct {
	svc      service.MarketService
	gatherer prometheus.Gatherer
}

// NewHandler builds the API handler. gatherer may be nil, in which case
// /metrics is not served.
func NewHandler(svc service.MarketService, gatherer prometheus.Gatherer) *Handler {
	return &Handler{svc: svc, gatherer: gatherer}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	if h.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /config", h.GetConfig)
	mux.HandleFunc("PUT /config/{field}", h.UpdateConfig)
	mux.HandleFunc("GET /accounts/{id}", h.GetAccount)
	mux.HandleFunc("POST /listings", h.AddListing)
	mux.HandleFunc("POST /listings/withdraw", h.RemoveListing)
	mux.HandleFunc("POST /purchases", h.Purchase)
	mux.HandleFunc("POST /refunds", h.RequestRefund)
	mux.HandleFunc("POST /issue/{asset}", h.Issue)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.GetConfig(r.Context())
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cfg)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	acc, err := h.svc.GetAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, acc)
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value int64 `json:"value"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.svc.UpdateConfig(r.Context(), model.ConfigUpdateRequest{
		Caller: r.Header.Get(CallerHeader),
		Field:  model.ConfigField(r.PathValue("field")),
		Value:  req.Value,
	})
	h.respondResult(w, res, err)
}

func (h *Handler) AddListing(w http.ResponseWriter, r *http.Request) {
	var req model.AddListingRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Caller = r.Header.Get(CallerHeader)
	res, err := h.svc.AddListing(r.Context(), req)
	h.respondResult(w, res, err)
}

func (h *Handler) RemoveListing(w http.ResponseWriter, r *http.Request) {
	var req model.RemoveListingRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Caller = r.Header.Get(CallerHeader)
	res, err := h.svc.RemoveListing(r.Context(), req)
	h.respondResult(w, res, err)
}

func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req model.PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Caller = r.Header.Get(CallerHeader)
	res, err := h.svc.Purchase(r.Context(), req)
	h.respondResult(w, res, err)
}

func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req model.RefundRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Caller = r.Header.Get(CallerHeader)
	res, err := h.svc.RequestRefund(r.Context(), req)
	h.respondResult(w, res, err)
}

func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	var req model.IssueRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Caller = r.Header.Get(CallerHeader)
	req.Asset = model.Asset(r.PathValue("asset"))
	res, err := h.svc.Issue(r.Context(), req)
	h.respondResult(w, res, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_json", "INVALID_REQUEST")
		return false
	}
	return true
}

func (h *Handler) respondResult(w http.ResponseWriter, res *model.Result, err error) {
	if err != nil {
		h.respondErr(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidRequest) {
		h.respondError(w, http.StatusBadRequest, err.Error(), "INVALID_REQUEST")
		return
	}
	code := ledger.Code(err)
	h.respondError(w, statusFor(code), err.Error(), code)
}

func statusFor(code string) int {
	switch code {
	case ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodeInvalidCost, ledger.CodeInvalidQuantity, ledger.CodeInvalidLimit, ledger.CodeInvalidAccount:
		return http.StatusBadRequest
	case ledger.CodeInsufficientFunds, ledger.CodeSelfTransaction, ledger.CodeLimitExceeded, ledger.CodeRefundFailure:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message, code string) {
	h.respondJSON(w, status, map[string]string{"error": message, "code": code})
}
