package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"keywheel-hq/keywheel/pkg/credential"
	"keywheel-hq/keywheel/pkg/dispatch"
	"keywheel-hq/keywheel/pkg/history"
	"keywheel-hq/keywheel/pkg/pool"
	"keywheel-hq/keywheel/pkg/ratelimit"
	"keywheel-hq/keywheel/pkg/upstream"
)

// profileHeader selects the credential pool for a request.
const profileHeader = "X-Keywheel-Profile"

// maxRequestBodyBytes bounds an inbound completion payload.
const maxRequestBodyBytes = 10 * 1024 * 1024

type handler struct {
	orchestrator *dispatch.Orchestrator
	pool         *pool.Manager
	limiter      *ratelimit.Limiter
	history      *history.Log
	logger       *slog.Logger
}

func (h *handler) chatCompletions(w http.ResponseWriter, r *http.Request) {
	profile := r.Header.Get(profileHeader)
	if profile == "" {
		profile = credential.DefaultProfile
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(r.Context(), profile); err != nil {
			writeError(w, http.StatusTooManyRequests, "request rate limit exceeded")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxRequestBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	result, err := h.orchestrator.Execute(r.Context(), dispatch.Request{
		Profile: profile,
		Body:    body,
		Header:  forwardableHeaders(r.Header),
	})
	if err != nil {
		h.writeDispatchError(r.Context(), w, profile, err)
		return
	}

	if ct := result.Response.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(result.Response.StatusCode)
	w.Write(result.Response.Body)
}

// writeDispatchError maps terminal dispatch outcomes onto proxy
// responses. Upstream 4xx bodies pass through unchanged; everything
// else gets a proxy-generated error envelope.
func (h *handler) writeDispatchError(ctx context.Context, w http.ResponseWriter, profile string, err error) {
	if ctx.Err() != nil {
		// Client is gone; nothing useful to write.
		return
	}

	var (
		noEligible *pool.NoEligibleCredentialError
		exhausted  *dispatch.MaxRetriesExceeded
		timeoutErr *dispatch.UpstreamTimeoutError
		statusErr  *upstream.StatusError
	)
	switch {
	case errors.As(err, &noEligible):
		h.logger.Warn("rejecting request, pool exhausted", "profile", profile)
		writeError(w, http.StatusServiceUnavailable, noEligible.Error())
	case errors.As(err, &exhausted):
		h.logger.Warn("rejecting request, retries exhausted",
			"profile", profile, "attempts", exhausted.Attempts)
		writeError(w, http.StatusBadGateway, exhausted.Error())
	case errors.As(err, &timeoutErr):
		writeError(w, http.StatusGatewayTimeout, "upstream timed out")
	case errors.As(err, &statusErr) && statusErr.StatusCode < 500 && !statusErr.IsRateLimit():
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusErr.StatusCode)
		w.Write(statusErr.Body)
	default:
		h.logger.Error("dispatch failed", "profile", profile, "error", err)
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}

func (h *handler) poolStats(w http.ResponseWriter, r *http.Request) {
	profile := r.URL.Query().Get("profile")
	stats, err := h.pool.Stats(r.Context(), profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to collect pool stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) poolConnections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Connections().Snapshot())
}

func (h *handler) recentHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "history is not enabled")
		return
	}

	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = credential.DefaultProfile
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := h.history.Recent(r.Context(), profile, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports whether the default profile could serve a request
// right now. Load balancers use this to drain an instance whose pool
// has emptied.
func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	stats, err := h.pool.Stats(r.Context(), credential.DefaultProfile)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error"})
		return
	}
	if stats.Eligible == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "no eligible credentials",
			"pool":   stats,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "pool": stats})
}

// forwardableHeaders copies the client headers safe to send upstream.
// Authorization is always replaced with the pool credential, and
// hop-by-hop headers stay behind.
func forwardableHeaders(in http.Header) http.Header {
	out := make(http.Header)
	for _, name := range []string{"Accept", "Accept-Language", "User-Agent"} {
		if v := in.Get(name); v != "" {
			out.Set(name, v)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    status,
		},
	})
}
