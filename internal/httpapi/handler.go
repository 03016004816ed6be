// Package httpapi exposes the service over HTTP.
package httpapi

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/example/keygate/internal/access"
	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/internal/entitlement"
	"github.com/example/keygate/internal/expiry"
	"github.com/example/keygate/internal/fulfillment"
	"github.com/example/keygate/internal/history"
	"github.com/example/keygate/internal/report"
	"github.com/example/keygate/internal/service"
	"github.com/example/keygate/internal/storage"
)

const (
	SignatureHeader = "X-Keygate-Signature"
	RequestIDHeader = "X-Keygate-Request-Id"
)

const maxBody = 1 << 20

// Backend is the part of the service the API drives.
type Backend interface {
	Issue(ctx context.Context, requestedBy, duration string) (access.Key, error)
	Redeem(ctx context.Context, user, key string) (expiry.Expiry, error)
	HasAccess(ctx context.Context, user string) (bool, error)
	Fulfill(ctx context.Context, user, category string, quota int) ([]string, error)
	Users(ctx context.Context, requestedBy string) (access.UserReport, error)
	History(user string, page, pageSize int) []history.Record
	Stats(ctx context.Context) (service.Stats, error)
	Categories() []string
	DurationLabels() []string
}

var _ Backend = (*service.Service)(nil)

type Handler struct {
	secret    []byte
	backend   Backend
	clock     clock.Clock
	log       logrus.FieldLogger
	replay    storage.ReplayGuard
	replayTTL time.Duration
	router    chi.Router
}

type Options struct {
	Secret string
	Clock  clock.Clock
	Log    logrus.FieldLogger

	// Replay, when set, refuses a repeated request id on mutating routes.
	Replay    storage.ReplayGuard
	ReplayTTL time.Duration
}

func NewHandler(backend Backend, opts Options) *Handler {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	h := &Handler{
		secret:    []byte(opts.Secret),
		backend:   backend,
		clock:     opts.Clock,
		log:       opts.Log,
		replay:    opts.Replay,
		replayTTL: opts.ReplayTTL,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Group(func(api chi.Router) {
		api.Use(h.verify)
		api.With(h.guard).Post("/keys", h.issue)
		api.With(h.guard).Post("/redeem", h.redeem)
		api.With(h.guard).Post("/fulfill", h.fulfill)
		api.Get("/access/{user}", h.access)
		api.Get("/stats", h.stats)
		api.Get("/users", h.users)
		api.Get("/history", h.history)
		api.Get("/catalog", h.catalog)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request served")
	})
}

// verify checks the body HMAC when a secret is configured and rewinds the
// body for the next handler.
func (h *Handler) verify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(h.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request")
			return
		}
		signature := strings.TrimPrefix(r.Header.Get(SignatureHeader), "sha256=")
		if !verifySignature(h.secret, body, signature) {
			writeError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// guard rejects a request id seen within the replay window. The id is
// released again when the request does not succeed so a retry can go through.
func (h *Handler) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if h.replay == nil || id == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.URL.Path + ":" + id
		ok, err := h.replay.Reserve(r.Context(), key, h.replayTTL)
		if err != nil {
			h.fail(w, err)
			return
		}
		if !ok {
			writeError(w, http.StatusConflict, "duplicate request")
			return
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusBadRequest {
			if err := h.replay.Release(r.Context(), key); err != nil {
				h.log.WithError(err).WithField("request_id", id).Warn("release request id")
			}
		}
	})
}

type issueRequest struct {
	RequestedBy string `json:"requested_by"`
	Duration    string `json:"duration"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !decode(w, r, &req) {
		return
	}
	key, err := h.backend.Issue(r.Context(), req.RequestedBy, req.Duration)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

type redeemRequest struct {
	User string `json:"user"`
	Key  string `json:"key"`
}

type redeemResponse struct {
	User      string        `json:"user"`
	ExpiresAt expiry.Expiry `json:"expires_at"`
}

func (h *Handler) redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}
	exp, err := h.backend.Redeem(r.Context(), req.User, req.Key)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{User: req.User, ExpiresAt: exp})
}

func (h *Handler) access(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	ok, err := h.backend.HasAccess(r.Context(), user)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "access": ok})
}

type fulfillRequest struct {
	User     string `json:"user"`
	Category string `json:"category"`
	Quota    int    `json:"quota"`
}

type fulfillResponse struct {
	Category string   `json:"category"`
	Count    int      `json:"count"`
	Filename string   `json:"filename"`
	Items    []string `json:"items"`
}

func (h *Handler) fulfill(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if !decode(w, r, &req) {
		return
	}
	items, err := h.backend.Fulfill(r.Context(), req.User, req.Category, req.Quota)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fulfillResponse{
		Category: req.Category,
		Count:    len(items),
		Filename: report.BatchFilename(req.Category, h.clock.Now()),
		Items:    items,
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.backend.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) users(w http.ResponseWriter, r *http.Request) {
	rep, err := h.backend.Users(r.Context(), r.URL.Query().Get("requested_by"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	size, err := queryInt(q.Get("page_size"), 20)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid page_size")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": h.backend.History(q.Get("user"), page, size)})
}

func (h *Handler) catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": h.backend.Categories(),
		"durations":  h.backend.DurationLabels(),
	})
}

// fail maps core errors onto status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.WithError(err).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrNotAuthorized), errors.Is(err, fulfillment.ErrNoAccess):
		return http.StatusForbidden
	case errors.Is(err, expiry.ErrInvalidDuration), errors.Is(err, service.ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, entitlement.ErrNotFound), errors.Is(err, fulfillment.ErrEmpty):
		return http.StatusNotFound
	case errors.Is(err, access.ErrExpired):
		return http.StatusGone
	case errors.Is(err, access.ErrExhaustedKeyspace):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func verifySignature(secret, body []byte, provided string) bool {
	if provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
