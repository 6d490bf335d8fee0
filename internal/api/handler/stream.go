package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iconidentify/drivestream/internal/domain"
	"github.com/iconidentify/drivestream/internal/fallback"
	"github.com/iconidentify/drivestream/internal/relay"
)

// Resolver turns a request into an upstream byte stream.
type Resolver interface {
	Resolve(ctx context.Context, req domain.ResourceRequest) (*domain.ResolvedSource, error)
}

// StreamHandler serves files from the upstream by identifier.
type StreamHandler struct {
	resolver Resolver
	relay    *relay.Relay
	composer *fallback.Composer
	logger   *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(resolver Resolver, rl *relay.Relay, composer *fallback.Composer, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		resolver: resolver,
		relay:    rl,
		composer: composer,
		logger:   logger,
	}
}

// Stream handles GET and HEAD /api/stream?id=...&mode=...
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := domain.NewResourceRequest(q.Get("id"), domain.ParseMode(q.Get("mode")), r.Header.Get("Range"))
	if err != nil {
		h.writeText(w, http.StatusBadRequest, "missing file id")
		return
	}

	if req.Mode == domain.ModeRedirect || req.Mode == domain.ModePreview {
		h.writeFallback(w, r, h.composer.Redirect(req))
		return
	}

	src, err := h.resolver.Resolve(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Debug("client went away during resolution", "id", req.ID)
			return
		}
		var failure *domain.ResolutionFailure
		if !errors.As(err, &failure) {
			h.logger.Error("resolution failed", "id", req.ID, "error", err)
		}
		h.writeFallback(w, r, h.composer.Compose(req, err))
		return
	}

	if req.Mode == domain.ModeJSON {
		src.Close()
		h.writeFallback(w, r, h.composer.Resolved(req, src))
		return
	}

	resp := h.relay.Prepare(src, req.RangeHeader)
	h.relay.Write(r.Context(), w, resp, r.Method != http.MethodHead)
}

func (h *StreamHandler) writeFallback(w http.ResponseWriter, r *http.Request, resp *fallback.Response) {
	w.Header().Set("Cache-Control", "no-store")
	switch {
	case resp.Location != "":
		http.Redirect(w, r, resp.Location, resp.Status)
	case resp.JSON != nil:
		h.writeJSON(w, resp.Status, resp.JSON)
	default:
		h.writeText(w, resp.Status, resp.Text)
	}
}

func (h *StreamHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *StreamHandler) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write([]byte(message + "\n"))
}
