package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/veicheck/veicheck/engine/chassis"
	"github.com/veicheck/veicheck/engine/domain"
	"github.com/veicheck/veicheck/engine/lookup"
	"github.com/veicheck/veicheck/engine/provider"
	"github.com/veicheck/veicheck/engine/reqlog"
	"github.com/veicheck/veicheck/pkg/metrics"
)

const (
	defaultDiagnosticsLimit = 50
	maxDiagnosticsLimit     = 500
)

// resolver is the part of *lookup.Resolver used by the handlers.
type resolver interface {
	Resolve(ctx context.Context, q domain.Query, ttlDays int) (lookup.Result, error)
}

type server struct {
	resolver resolver
	requests reqlog.Reader
	metrics  *metrics.Lookup
	logger   *slog.Logger
}

func (s *server) routes(g prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chassis/validate", s.handleChassisValidate)
	mux.HandleFunc("POST /api/vehicles/lookup", s.handleLookup)
	mux.HandleFunc("GET /api/diagnostics/requests", s.handleRecentRequests)
	mux.HandleFunc("GET /api/diagnostics/codes/{code}", handleDescribeCode)
	if g != nil {
		mux.Handle("GET /metrics", metrics.Handler(g))
	}
	return mux
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChassisRequest is the JSON body for POST /api/chassis/validate.
type ChassisRequest struct {
	Chassis string `json:"chassis"`
}

// ChassisResponse reports the outcome of a chassis validation.
type ChassisResponse struct {
	Normalized string `json:"normalized"`
	Valid      bool   `json:"valid"`
	Error      string `json:"error,omitempty"`
	Reason     string `json:"reason,omitempty"`
	ChecksumOK bool   `json:"checksum_ok"`
	Expected   string `json:"expected_check_digit,omitempty"`
	Informed   string `json:"informed_check_digit,omitempty"`
}

func (s *server) handleChassisValidate(w http.ResponseWriter, r *http.Request) {
	var req ChassisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report := chassis.Inspect(req.Chassis)
	resp := ChassisResponse{Normalized: report.Normalized, Valid: report.Valid()}

	if report.FormatErr != nil {
		s.metrics.ChassisChecked("invalid_format")
		resp.Error = report.FormatErr.Error()
		resp.Reason = formatReason(report.FormatErr)
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	resp.ChecksumOK = report.ChecksumErr == nil
	var ce *chassis.ChecksumError
	if errors.As(report.ChecksumErr, &ce) {
		s.metrics.ChassisChecked("checksum_mismatch")
		resp.Expected = string(ce.Expected)
		resp.Informed = string(ce.Informed)
		s.logger.Warn("chassis check digit mismatch", "chassis", report.Normalized, "expected", resp.Expected, "informed", resp.Informed)
	} else {
		s.metrics.ChassisChecked("valid")
	}
	writeJSON(w, http.StatusOK, resp)
}

func formatReason(err error) string {
	switch {
	case errors.Is(err, chassis.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, chassis.ErrWrongLength):
		return "wrong_length"
	case errors.Is(err, chassis.ErrInvalidCharacters):
		return "invalid_characters"
	case errors.Is(err, chassis.ErrForbiddenLetter):
		return "forbidden_letter"
	}
	return "invalid_format"
}

// LookupRequest is the JSON body for POST /api/vehicles/lookup.
type LookupRequest struct {
	domain.Query
	TTLDays int `json:"ttl_days,omitempty"`
}

// ProviderErrorResponse is returned for classified provider failures.
type ProviderErrorResponse struct {
	Error    string            `json:"error"`
	Code     int               `json:"code"`
	Category provider.Category `json:"category"`
	Message  string            `json:"message"`
}

func (s *server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := s.resolver.Resolve(r.Context(), req.Query, req.TTLDays)
	if err != nil {
		s.writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrInvalidQuery) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if le, ok := provider.AsLookupError(err); ok {
		status := http.StatusBadGateway
		if le.Category == provider.CategoryNotFound || le.Category == provider.CategoryWrongEndpoint {
			status = http.StatusNotFound
		}
		writeJSON(w, status, ProviderErrorResponse{
			Error:    provider.Describe(le.Category),
			Code:     le.Code,
			Category: le.Category,
			Message:  le.Error(),
		})
		return
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "lookup timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to send.
	default:
		s.logger.Error("vehicle lookup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (s *server) handleRecentRequests(w http.ResponseWriter, r *http.Request) {
	limit := defaultDiagnosticsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxDiagnosticsLimit)
	}

	entries, err := s.requests.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("read request log failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []lookup.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// CodeResponse describes how a provider code is classified.
type CodeResponse struct {
	Code        int               `json:"code"`
	Category    provider.Category `json:"category"`
	Description string            `json:"description"`
}

func handleDescribeCode(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code <= 0 {
		writeError(w, http.StatusBadRequest, "code must be a positive integer")
		return
	}
	cat := provider.Classify(code, r.URL.Query()["error"])
	writeJSON(w, http.StatusOK, CodeResponse{Code: code, Category: cat, Description: provider.Describe(cat)})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
