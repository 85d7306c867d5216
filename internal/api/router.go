// Package api provides the REST surface: historical series, company
// metrics and account management. The live stream lives on the gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"stockstream/internal/account"
	"stockstream/internal/analysis"
	"stockstream/internal/history"
	"stockstream/internal/markethours"
)

// setCORS sets CORS headers for REST endpoints.
func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// Handler bundles the REST dependencies.
type Handler struct {
	hist     *history.Client
	accounts *account.Store
	log      *slog.Logger
}

func NewHandler(hist *history.Client, accounts *account.Store, log *slog.Logger) *Handler {
	return &Handler{hist: hist, accounts: accounts, log: log}
}

// Register mounts all REST routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/metrics/summary", h.handleMetricsSummary)
	mux.HandleFunc("/api/signup", h.handleSignup)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/totp/enroll", h.handleTOTPEnroll)
	mux.HandleFunc("/api/verify-totp", h.handleVerifyTOTP)
	mux.HandleFunc("/api/market/status", h.handleMarketStatus)
	mux.HandleFunc("/api/health", h.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// preflight handles OPTIONS and enforces the method. Returns false when
// the request was already answered.
func preflight(w http.ResponseWriter, r *http.Request, method string) bool {
	setCORS(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return false
	}
	if r.Method != method {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
}

// GET /api/history?symbol=AAPL&range=daily
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	rng := history.ParseRange(r.URL.Query().Get("range"))

	points, err := h.hist.Series(r.Context(), symbol, rng)
	if err != nil {
		h.log.Warn("history fetch failed", "symbol", symbol, "range", rng, "err", err)
		writeError(w, http.StatusBadGateway, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol": symbol,
		"range":  rng,
		"points": points,
	})
}

// GET /api/metrics/summary?symbol=AAPL
func (h *Handler) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	symbol := symbolParam(r)
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	sum, err := h.hist.MetricsSummary(r.Context(), symbol)
	if err != nil {
		h.log.Warn("metrics fetch failed", "symbol", symbol, "err", err)
		writeError(w, http.StatusBadGateway, "metrics unavailable")
		return
	}
	h.fillVolumeAverages(r.Context(), symbol, sum)
	writeJSON(w, http.StatusOK, sum)
}

// fillVolumeAverages derives the trailing volume means from the daily
// series. The summary still ships without them when the series fails.
func (h *Handler) fillVolumeAverages(ctx context.Context, symbol string, sum *history.Summary) {
	points, err := h.hist.Series(ctx, symbol, history.RangeDaily)
	if err != nil {
		h.log.Warn("daily series for averages failed", "symbol", symbol, "err", err)
		return
	}
	if avg, err := analysis.DailyAverages(points); err == nil {
		sum.AvgDailyVol = avg.Volume
	}
	if avg, err := analysis.MonthlyAverages(points); err == nil {
		sum.AvgVol30D = avg.Volume
	}
}

// GET /api/market/status
func (h *Handler) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, markethours.CurrentStatus(time.Now()))
}

// GET /api/health
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodGet) {
		return
	}
	accountsOK := h.accounts.DB().PingContext(r.Context()) == nil
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"accounts_db": accountsOK,
		"market_open": markethours.IsMarketOpen(time.Now()),
		"ts":          time.Now().UTC().Format(time.RFC3339Nano),
	})
}

type signupRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// POST /api/signup
func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := h.accounts.CreateUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, account.ErrUsernameTaken):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, account.ErrWeakPassword), errors.Is(err, account.ErrBadUsername):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.log.Error("signup failed", "err", err)
		writeError(w, http.StatusInternalServerError, "signup failed")
	default:
		writeJSON(w, http.StatusCreated, map[string]string{"id": u.ID, "username": u.Username})
	}
}

// POST /api/login
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	u, err := h.accounts.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, account.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		h.log.Error("login failed", "err", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": u.ID, "username": u.Username})
}

type totpRequest struct {
	UserID string `json:"user_id"`
	Code   string `json:"code"`
}

// POST /api/totp/enroll
func (h *Handler) handleTOTPEnroll(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	enr, err := h.accounts.EnrollTOTP(r.Context(), req.UserID)
	if errors.Is(err, account.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.log.Error("totp enroll failed", "err", err)
		writeError(w, http.StatusInternalServerError, "enroll failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": enr.Secret, "url": enr.URL})
}

// POST /api/verify-totp
func (h *Handler) handleVerifyTOTP(w http.ResponseWriter, r *http.Request) {
	if !preflight(w, r, http.MethodPost) {
		return
	}
	var req totpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	ok, err := h.accounts.VerifyTOTP(r.Context(), req.UserID, req.Code)
	switch {
	case errors.Is(err, account.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, account.ErrNotEnrolled):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		h.log.Error("totp verify failed", "err", err)
		writeError(w, http.StatusInternalServerError, "verify failed")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
	}
}
