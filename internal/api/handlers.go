package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"github.com/pranavch/cashdesk/internal/domain"
	"github.com/pranavch/cashdesk/internal/service"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashdesk_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cashdesk_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	assignments *service.AssignmentService
	returns     *service.ReturnService
	queries     *service.QueryService
}

func NewHandler(assignments *service.AssignmentService, returns *service.ReturnService, queries *service.QueryService) *Handler {
	return &Handler{assignments: assignments, returns: returns, queries: queries}
}

type assignPayload struct {
	CustodianID string          `json:"custodian_id"`
	RecipientID string          `json:"recipient_id"`
	Amount      decimal.Decimal `json:"amount"`
}

type createReturnPayload struct {
	RequesterID string          `json:"requester_id"`
	Amount      decimal.Decimal `json:"amount"`
}

type decisionPayload struct {
	ApproverID string  `json:"approver_id"`
	Reason     *string `json:"reason,omitempty"`
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/assignments"))
	defer timer.ObserveDuration()

	var req assignPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/assignments")
		return
	}
	if req.CustodianID == "" || req.RecipientID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "custodian_id and recipient_id are required", "POST", "/assignments")
		return
	}

	a, err := h.assignments.Assign(r.Context(), req.CustodianID, req.RecipientID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/assignments")
		return
	}
	h.respondJSON(w, http.StatusCreated, a, "POST", "/assignments")
}

func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/returns"))
	defer timer.ObserveDuration()

	var req createReturnPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/returns")
		return
	}
	if req.RequesterID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "requester_id is required", "POST", "/returns")
		return
	}

	request, err := h.returns.CreateRequest(r.Context(), req.RequesterID, req.Amount)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/returns")
		return
	}
	h.respondJSON(w, http.StatusCreated, request, "POST", "/returns")
}

func (h *Handler) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/returns/{id}/approve"))
	defer timer.ObserveDuration()

	requestID, ok := h.parseID(w, r, "POST", "/returns/{id}/approve")
	if !ok {
		return
	}

	var req decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/returns/{id}/approve")
		return
	}
	if req.ApproverID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "approver_id is required", "POST", "/returns/{id}/approve")
		return
	}

	result, err := h.returns.Approve(r.Context(), requestID, req.ApproverID)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/returns/{id}/approve")
		return
	}
	h.respondJSON(w, http.StatusOK, result, "POST", "/returns/{id}/approve")
}

func (h *Handler) RejectReturn(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/returns/{id}/reject"))
	defer timer.ObserveDuration()

	requestID, ok := h.parseID(w, r, "POST", "/returns/{id}/reject")
	if !ok {
		return
	}

	var req decisionPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/returns/{id}/reject")
		return
	}
	if req.ApproverID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "approver_id is required", "POST", "/returns/{id}/reject")
		return
	}

	request, err := h.returns.Reject(r.Context(), requestID, req.ApproverID, req.Reason)
	if err != nil {
		h.respondDomainError(w, err, "POST", "/returns/{id}/reject")
		return
	}
	h.respondJSON(w, http.StatusOK, request, "POST", "/returns/{id}/reject")
}

func (h *Handler) GetReturn(w http.ResponseWriter, r *http.Request) {
	requestID, ok := h.parseID(w, r, "GET", "/returns/{id}")
	if !ok {
		return
	}
	request, err := h.queries.GetRequest(r.Context(), requestID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/returns/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, request, "GET", "/returns/{id}")
}

func (h *Handler) GetHolder(w http.ResponseWriter, r *http.Request) {
	holderID := mux.Vars(r)["id"]
	name, err := h.queries.HolderName(r.Context(), holderID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/holders/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"holder_id": holderID, "display_name": name}, "GET", "/holders/{id}")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	holderID := mux.Vars(r)["id"]
	balance, err := h.queries.GetAccountBalance(r.Context(), holderID)
	if err != nil {
		h.respondDomainError(w, err, "GET", "/accounts/{id}/balance")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"holder_id": holderID, "balance": balance}, "GET", "/accounts/{id}/balance")
}

// ListAssignments serves GET /assignments?custodian=... or ?recipient=...
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	custodian := r.URL.Query().Get("custodian")
	recipient := r.URL.Query().Get("recipient")

	var (
		out []domain.Assignment
		err error
	)
	switch {
	case custodian != "":
		out, err = h.queries.AssignmentsForCustodian(r.Context(), custodian)
	case recipient != "":
		out, err = h.queries.AssignmentsForRecipient(r.Context(), recipient)
	default:
		h.respondError(w, http.StatusBadRequest, "custodian or recipient query parameter required", "GET", "/assignments")
		return
	}
	if err != nil {
		h.respondDomainError(w, err, "GET", "/assignments")
		return
	}
	h.respondJSON(w, http.StatusOK, out, "GET", "/assignments")
}

// ListReturns serves GET /returns?custodian=|requester= with an optional
// status filter.
func (h *Handler) ListReturns(w http.ResponseWriter, r *http.Request) {
	custodian := r.URL.Query().Get("custodian")
	requester := r.URL.Query().Get("requester")

	var status *domain.RequestStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.RequestStatus(raw)
		if s != domain.StatusPending && !s.Terminal() {
			h.respondError(w, http.StatusBadRequest, "invalid status filter", "GET", "/returns")
			return
		}
		status = &s
	}

	var (
		out []domain.ReturnRequest
		err error
	)
	switch {
	case custodian != "":
		out, err = h.queries.RequestsForCustodian(r.Context(), custodian, status)
	case requester != "":
		out, err = h.queries.RequestsForRequester(r.Context(), requester, status)
	default:
		h.respondError(w, http.StatusBadRequest, "custodian or requester query parameter required", "GET", "/returns")
		return
	}
	if err != nil {
		h.respondDomainError(w, err, "GET", "/returns")
		return
	}
	h.respondJSON(w, http.StatusOK, out, "GET", "/returns")
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, method, endpoint string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request id", method, endpoint)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	h.respondError(w, statusForError(err), err.Error(), method, endpoint)
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrAlreadyReturned):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrNoCustodianAssigned):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
