// Package gateway is the HTTP bridge on the parent instance. It turns REST
// calls into enclave requests and enclave error codes into HTTP statuses.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

const codeEnclaveUnavailable = "enclave_unavailable"

// Enclave sends one request to the enclave. *enclaveclient.Client implements it.
type Enclave interface {
	Do(ctx context.Context, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error)
}

// Server forwards HTTP requests to an Enclave.
type Server struct {
	enclave Enclave
}

func New(enclave Enclave) *Server {
	return &Server{enclave: enclave}
}

// CallRequest is the body of every POST route.
type CallRequest struct {
	RequestID string           `json:"request_id,omitempty"`
	Caller    core.Identity    `json:"caller"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Offset    int              `json:"offset,omitempty"`
	Limit     int              `json:"limit,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
}

// mutations maps POST routes to enclave request types.
var mutations = map[string]string{
	"/bids":                     enclaveapi.TypePlaceBid,
	"/deposits":                 enclaveapi.TypeDeposit,
	"/withdrawals":              enclaveapi.TypeWithdrawExcess,
	"/end":                      enclaveapi.TypeEndEarly,
	"/cancel":                   enclaveapi.TypeCancel,
	"/claim":                    enclaveapi.TypeClaimWinnings,
	"/refunds":                  enclaveapi.TypeRefund,
	"/refunds/batch":            enclaveapi.TypeRefundBatch,
	"/cancellation-withdrawals": enclaveapi.TypeCancellationWithdraw,
	"/sweep":                    enclaveapi.TypeEmergencySweep,
}

// Router returns the gateway's routes with logging and panic recovery.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Route("/v1", s.RegisterRoutes)
	return r
}

// RegisterRoutes registers the /v1 routes on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/ping", s.query(enclaveapi.TypePing))
	r.Get("/auction", s.query(enclaveapi.TypeAuctionInfo))
	r.Get("/status", s.query(enclaveapi.TypeStatus))
	r.Get("/bids", s.query(enclaveapi.TypeBidHistory))
	r.Get("/bids/count", s.query(enclaveapi.TypeBidCount))
	r.Get("/winner", s.query(enclaveapi.TypeWinner))
	r.Get("/events", s.query(enclaveapi.TypeEvents))
	r.Get("/receipt", s.query(enclaveapi.TypeReceipt))
	r.Get("/accounts/{account}", s.query(enclaveapi.TypeBalance))

	for path, typ := range mutations {
		r.Post(path, s.call(typ))
	}
}

func (s *Server) query(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := enclaveapi.EnclaveRequest{
			Type:    typ,
			Account: core.Identity(r.URL.Query().Get("account")),
		}
		if account := chi.URLParam(r, "account"); account != "" {
			req.Account = core.Identity(account)
		}

		var err error
		if req.Offset, err = intParam(r, "offset"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Limit, err = intParam(r, "limit"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		s.forward(w, r, req)
	}
}

func (s *Server) call(typ string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var body CallRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse request: %w", err))
			return
		}
		s.forward(w, r, enclaveapi.EnclaveRequest{
			Type:      typ,
			RequestID: body.RequestID,
			Caller:    body.Caller,
			Amount:    body.Amount,
			Offset:    body.Offset,
			Limit:     body.Limit,
			Timestamp: body.Timestamp,
		})
	}
}

func (s *Server) forward(w http.ResponseWriter, r *http.Request, req enclaveapi.EnclaveRequest) {
	resp, err := s.enclave.Do(r.Context(), req)
	if err != nil {
		slog.Error("Enclave request failed", "type", req.Type, "error", err)
		writeJSON(w, http.StatusBadGateway, &enclaveapi.EnclaveResponse{
			Type:      enclaveapi.ResponseType(req.Type),
			Message:   err.Error(),
			ErrorCode: codeEnclaveUnavailable,
		})
		return
	}
	writeJSON(w, HTTPStatus(resp), resp)
}

// HTTPStatus maps an enclave response to an HTTP status code.
func HTTPStatus(resp *enclaveapi.EnclaveResponse) int {
	if resp.Success {
		return http.StatusOK
	}
	switch resp.ErrorCode {
	case "invalid_request", core.CodeInvalidAmount:
		return http.StatusBadRequest
	case core.CodeUnauthorized:
		return http.StatusForbidden
	case core.CodeWrongPhase, core.CodeAlreadySettled, "replayed_request":
		return http.StatusConflict
	case core.CodeRateLimited:
		return http.StatusTooManyRequests
	case core.CodeOutOfRange:
		return http.StatusRequestedRangeNotSatisfiable
	case core.CodeTransferFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

var errBadParam = errors.New("invalid query parameter")

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w %s=%q", errBadParam, name, raw)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, &enclaveapi.EnclaveResponse{
		Type:      "error",
		Message:   err.Error(),
		ErrorCode: "invalid_request",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			slog.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
