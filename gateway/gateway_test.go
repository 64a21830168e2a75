package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

type fakeEnclave struct {
	mu   sync.Mutex
	reqs []enclaveapi.EnclaveRequest
	resp *enclaveapi.EnclaveResponse
	err  error
}

func (f *fakeEnclave) Do(_ context.Context, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &enclaveapi.EnclaveResponse{Type: enclaveapi.ResponseType(req.Type), Success: true}, nil
}

func (f *fakeEnclave) last() enclaveapi.EnclaveRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reqs[len(f.reqs)-1]
}

func serve(t *testing.T, f *fakeEnclave, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	New(f).Router().ServeHTTP(w, req)
	return w
}

func TestRoutes_Queries(t *testing.T) {
	tests := []struct {
		target  string
		typ     string
		account core.Identity
		offset  int
		limit   int
	}{
		{"/v1/ping", enclaveapi.TypePing, "", 0, 0},
		{"/v1/auction", enclaveapi.TypeAuctionInfo, "", 0, 0},
		{"/v1/status", enclaveapi.TypeStatus, "", 0, 0},
		{"/v1/bids?offset=5&limit=10", enclaveapi.TypeBidHistory, "", 5, 10},
		{"/v1/bids/count", enclaveapi.TypeBidCount, "", 0, 0},
		{"/v1/winner", enclaveapi.TypeWinner, "", 0, 0},
		{"/v1/events?account=bob&limit=3", enclaveapi.TypeEvents, "bob", 0, 3},
		{"/v1/receipt", enclaveapi.TypeReceipt, "", 0, 0},
		{"/v1/accounts/carol", enclaveapi.TypeBalance, "carol", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			f := &fakeEnclave{}
			w := serve(t, f, http.MethodGet, tt.target, "")
			check.Equal(t, http.StatusOK, w.Code)
			check.Equal(t, "application/json", w.Header().Get("Content-Type"))

			req := f.last()
			check.Equal(t, tt.typ, req.Type)
			check.Equal(t, tt.account, req.Account)
			check.Equal(t, tt.offset, req.Offset)
			check.Equal(t, tt.limit, req.Limit)
		})
	}
}

func TestRoutes_Mutations(t *testing.T) {
	for path, typ := range mutations {
		t.Run(path, func(t *testing.T) {
			f := &fakeEnclave{}
			body := `{"caller":"bob","amount":"105","request_id":"0b6c1c4e-8f0e-4d33-a5b8-1f3f1c0de001","limit":7}`
			w := serve(t, f, http.MethodPost, "/v1"+path, body)
			check.Equal(t, http.StatusOK, w.Code)

			req := f.last()
			check.Equal(t, typ, req.Type)
			check.Equal(t, core.Identity("bob"), req.Caller)
			assert.NotNil(t, req.Amount)
			check.Equal(t, "105", req.Amount.String())
			check.Equal(t, "0b6c1c4e-8f0e-4d33-a5b8-1f3f1c0de001", req.RequestID)
			check.Equal(t, 7, req.Limit)
		})
	}
}

func TestRoutes_BadInput(t *testing.T) {
	f := &fakeEnclave{}

	w := serve(t, f, http.MethodPost, "/v1/bids", "{nope")
	check.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, f, http.MethodGet, "/v1/bids?offset=-1", "")
	check.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, f, http.MethodGet, "/v1/events?limit=ten", "")
	check.Equal(t, http.StatusBadRequest, w.Code)

	var resp enclaveapi.EnclaveResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	check.Equal(t, "invalid_request", resp.ErrorCode)
	check.Equal(t, 0, len(f.reqs))

	w = serve(t, f, http.MethodGet, "/v1/nowhere", "")
	check.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_EnclaveUnavailable(t *testing.T) {
	f := &fakeEnclave{err: errors.New("connection refused")}
	w := serve(t, f, http.MethodGet, "/v1/status", "")
	check.Equal(t, http.StatusBadGateway, w.Code)

	var resp enclaveapi.EnclaveResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	check.False(t, resp.Success)
	check.Equal(t, codeEnclaveUnavailable, resp.ErrorCode)
	check.Equal(t, "status_response", resp.Type)
}

func TestRoutes_ErrorCodePassthrough(t *testing.T) {
	f := &fakeEnclave{resp: &enclaveapi.EnclaveResponse{
		Type:      "place_bid_response",
		Message:   "rate limited",
		ErrorCode: core.CodeRateLimited,
	}}
	w := serve(t, f, http.MethodPost, "/v1/bids", `{"caller":"bob","amount":"5"}`)
	check.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp enclaveapi.EnclaveResponse
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	check.Equal(t, core.CodeRateLimited, resp.ErrorCode)
	check.Equal(t, "rate limited", resp.Message)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"invalid_request", http.StatusBadRequest},
		{core.CodeInvalidAmount, http.StatusBadRequest},
		{core.CodeUnauthorized, http.StatusForbidden},
		{core.CodeWrongPhase, http.StatusConflict},
		{core.CodeAlreadySettled, http.StatusConflict},
		{"replayed_request", http.StatusConflict},
		{core.CodeRateLimited, http.StatusTooManyRequests},
		{core.CodeOutOfRange, http.StatusRequestedRangeNotSatisfiable},
		{core.CodeTransferFailed, http.StatusBadGateway},
		{core.CodeInternal, http.StatusInternalServerError},
		{"something_new", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		check.Equal(t, tt.want, HTTPStatus(&enclaveapi.EnclaveResponse{ErrorCode: tt.code}))
	}
	check.Equal(t, http.StatusOK, HTTPStatus(&enclaveapi.EnclaveResponse{Success: true}))
}
