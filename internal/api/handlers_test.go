package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranavch/cashdesk/internal/domain"
	"github.com/pranavch/cashdesk/internal/notify"
	"github.com/pranavch/cashdesk/internal/service"
	"github.com/pranavch/cashdesk/internal/store/memory"
)

const (
	testCashier = "cashier-01"
	testHolder  = "holder-01"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := memory.NewStore()
	store.SetCustodian(testHolder, testCashier)
	store.SetDisplayName(testHolder, "Holder 01")

	hub := notify.NewHub()
	settler := service.NewSettlementCoordinator(store, hub)
	returns := service.NewReturnService(store, store, store, settler, hub)
	assignments := service.NewAssignmentService(store, store, hub)
	queries := service.NewQueryService(store, store, store, store)

	handler := NewHandler(assignments, returns, queries)
	wsHandler := NewWSHandler(hub, nil)
	srv := httptest.NewServer(NewRouter(handler, wsHandler))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func mustAssign(t *testing.T, srv *httptest.Server, amount int) domain.Assignment {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/assignments", map[string]any{
		"custodian_id": testCashier,
		"recipient_id": testHolder,
		"amount":       amount,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[domain.Assignment](t, resp)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReturnLifecycle(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 500)

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
		"requester_id": testHolder,
		"amount":       200,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	request := decode[domain.ReturnRequest](t, resp)
	assert.Equal(t, domain.StatusPending, request.Status)

	resp = postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/approve", map[string]any{
		"approver_id": testCashier,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[domain.SettlementResult](t, resp)
	assert.Equal(t, request.ID, result.RequestID)
	require.NotNil(t, result.AssignmentID)

	// Balances reflect the settlement.
	get, err := http.Get(srv.URL + "/api/v1/accounts/" + testHolder + "/balance")
	require.NoError(t, err)
	balance := decode[map[string]any](t, get)
	assert.Equal(t, "300", fmt.Sprint(balance["balance"]))

	get, err = http.Get(srv.URL + "/api/v1/accounts/" + testCashier + "/balance")
	require.NoError(t, err)
	balance = decode[map[string]any](t, get)
	assert.Equal(t, "200", fmt.Sprint(balance["balance"]))
}

func TestCreateReturnInsufficientFunds(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 100)

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
		"requester_id": testHolder,
		"amount":       150,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestCreateReturnNoCustodian(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
		"requester_id": "holder-99",
		"amount":       10,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestApproveErrors(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 500)

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
		"requester_id": testHolder,
		"amount":       100,
	})
	request := decode[domain.ReturnRequest](t, resp)

	t.Run("unknown id", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/returns/"+uuid.NewString()+"/approve", map[string]any{
			"approver_id": testCashier,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("wrong approver", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/approve", map[string]any{
			"approver_id": "cashier-02",
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("double decision conflicts", func(t *testing.T) {
		resp := postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/approve", map[string]any{
			"approver_id": testCashier,
		})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp = postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/reject", map[string]any{
			"approver_id": testCashier,
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRejectReturn(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 500)

	resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
		"requester_id": testHolder,
		"amount":       100,
	})
	request := decode[domain.ReturnRequest](t, resp)

	resp = postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/reject", map[string]any{
		"approver_id": testCashier,
		"reason":      "count mismatch",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rejected := decode[domain.ReturnRequest](t, resp)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "count mismatch", *rejected.RejectionReason)
}

func TestListReturnsStatusFilter(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 500)

	for i := 0; i < 3; i++ {
		resp := postJSON(t, srv.URL+"/api/v1/returns", map[string]any{
			"requester_id": testHolder,
			"amount":       50,
		})
		request := decode[domain.ReturnRequest](t, resp)
		if i == 0 {
			resp = postJSON(t, srv.URL+"/api/v1/returns/"+request.ID.String()+"/approve", map[string]any{
				"approver_id": testCashier,
			})
			resp.Body.Close()
		}
	}

	get, err := http.Get(srv.URL + "/api/v1/returns?custodian=" + testCashier + "&status=pending")
	require.NoError(t, err)
	pending := decode[[]domain.ReturnRequest](t, get)
	assert.Len(t, pending, 2)

	get, err = http.Get(srv.URL + "/api/v1/returns?custodian=" + testCashier)
	require.NoError(t, err)
	all := decode[[]domain.ReturnRequest](t, get)
	assert.Len(t, all, 3)

	get, err = http.Get(srv.URL + "/api/v1/returns?custodian=" + testCashier + "&status=bogus")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusBadRequest, get.StatusCode)
}

func TestGetHolder(t *testing.T) {
	srv := newTestServer(t)

	get, err := http.Get(srv.URL + "/api/v1/holders/" + testHolder)
	require.NoError(t, err)
	holder := decode[map[string]string](t, get)
	assert.Equal(t, "Holder 01", holder["display_name"])

	// Unprovisioned holders render as their raw id.
	get, err = http.Get(srv.URL + "/api/v1/holders/holder-77")
	require.NoError(t, err)
	holder = decode[map[string]string](t, get)
	assert.Equal(t, "holder-77", holder["display_name"])
}

func TestListAssignments(t *testing.T) {
	srv := newTestServer(t)
	mustAssign(t, srv, 100)
	mustAssign(t, srv, 200)

	get, err := http.Get(srv.URL + "/api/v1/assignments?recipient=" + testHolder)
	require.NoError(t, err)
	listed := decode[[]domain.Assignment](t, get)
	assert.Len(t, listed, 2)

	get, err = http.Get(srv.URL + "/api/v1/assignments")
	require.NoError(t, err)
	get.Body.Close()
	assert.Equal(t, http.StatusBadRequest, get.StatusCode)
}
