package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all HTTP routes, including metrics and the
// notification websocket.
func NewRouter(h *Handler, wsh *WSHandler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/ws", wsh.HandleWS).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/assignments", h.CreateAssignment).Methods("POST")
	apiV1.HandleFunc("/assignments", h.ListAssignments).Methods("GET")
	apiV1.HandleFunc("/returns", h.CreateReturn).Methods("POST")
	apiV1.HandleFunc("/returns", h.ListReturns).Methods("GET")
	apiV1.HandleFunc("/returns/{id}", h.GetReturn).Methods("GET")
	apiV1.HandleFunc("/returns/{id}/approve", h.ApproveReturn).Methods("POST")
	apiV1.HandleFunc("/returns/{id}/reject", h.RejectReturn).Methods("POST")
	apiV1.HandleFunc("/accounts/{id}/balance", h.GetBalance).Methods("GET")
	apiV1.HandleFunc("/holders/{id}", h.GetHolder).Methods("GET")

	return r
}
