package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"shortly/internal/domain"
	"shortly/pkg/logger"

	"github.com/go-chi/chi/v5"
)

// detailsSuffix appended to a short link shows its details instead of redirecting.
const detailsSuffix = "+"

// maxBodyBytes caps the create request body.
const maxBodyBytes = 8 << 10

// Registry is the subset of the URL registry the handlers need.
// Using an interface lets tests substitute a mock.
type Registry interface {
	Insert(ctx context.Context, url string) (string, error)
	Resolve(ctx context.Context, id string) (string, error)
	GetDetails(ctx context.Context, id string) (*domain.ShortLink, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	registry Registry
	logger   *slog.Logger
	baseURL  string // prefix for generated short URLs, e.g. "http://localhost:8080"
}

// NewHandler creates a new HTTP handler
func NewHandler(registry Registry, logger *slog.Logger, baseURL string) *Handler {
	return &Handler{
		registry: registry,
		logger:   logger,
		baseURL:  strings.TrimRight(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	URL string `json:"url"`
}

type CreateLinkResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Target   string `json:"target"`
}

type LinkDetailsResponse struct {
	ID       string `json:"id"`
	ShortURL string `json:"short_url"`
	Target   string `json:"target"`
	Hostname string `json:"hostname"`
	Clicks   int64  `json:"clicks"`
}

// CreateLink handles POST /api/v1/urls
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreateLinkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	id, err := h.registry.Insert(r.Context(), req.URL)
	if err != nil {
		h.respondRegistryError(w, r, "Failed to create short link", err)
		return
	}

	respondSuccess(w, http.StatusCreated, CreateLinkResponse{
		ID:       id,
		ShortURL: h.shortURL(id),
		Target:   req.URL,
	}, "Short link created")
}

// Redirect handles GET /{id}. A trailing "+" shows the link details instead.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if trimmed, ok := strings.CutSuffix(id, detailsSuffix); ok {
		h.writeDetails(w, r, trimmed)
		return
	}

	target, err := h.registry.Resolve(r.Context(), id)
	if err != nil {
		h.respondRegistryError(w, r, "Failed to resolve short link", err)
		return
	}

	http.Redirect(w, r, target, http.StatusFound)
}

// LinkDetails handles GET /api/v1/urls/{id}
func (h *Handler) LinkDetails(w http.ResponseWriter, r *http.Request) {
	h.writeDetails(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) writeDetails(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		respondError(w, http.StatusBadRequest, "Short link id is required")
		return
	}

	link, err := h.registry.GetDetails(r.Context(), id)
	if err != nil {
		h.respondRegistryError(w, r, "Failed to get link details", err)
		return
	}

	respondSuccess(w, http.StatusOK, LinkDetailsResponse{
		ID:       link.ID,
		ShortURL: h.shortURL(link.ID),
		Target:   link.Target,
		Hostname: link.Hostname(),
		Clicks:   link.Clicks,
	}, "")
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (h *Handler) shortURL(id string) string {
	return h.baseURL + "/" + id
}

// respondRegistryError maps registry error kinds onto HTTP status codes.
func (h *Handler) respondRegistryError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	log := logger.FromContext(r.Context(), h.logger)

	switch {
	case errors.Is(err, domain.ErrInvalidURL):
		respondErrorCode(w, http.StatusBadRequest, err.Error(), "invalid_url")
	case errors.Is(err, domain.ErrNotFound):
		respondErrorCode(w, http.StatusNotFound, "Short link not found", "not_found")
	case errors.Is(err, domain.ErrStoreUnavailable):
		log.Error(msg, "error", err)
		respondErrorCode(w, http.StatusServiceUnavailable, "Store unavailable", "store_unavailable")
	default:
		log.Error(msg, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}
