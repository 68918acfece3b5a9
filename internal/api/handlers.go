package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"feedback-go/internal/models"
	"feedback-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// OwnerHeader scopes overlays to one account.
	OwnerHeader  = "X-User-ID"
	defaultOwner = "anonymous"
	maxBodyBytes = 10 << 20
)

type Handler struct {
	Feedback *service.FeedbackService
	logger   *zap.SugaredLogger
}

func NewHandler(feedback *service.FeedbackService, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{Feedback: feedback, logger: logger}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api/sheets", func(r chi.Router) {
		r.Get("/metadata", h.GetMetadata)
		r.Post("/analytics", h.GetAnalytics)
		r.Post("/data", h.GetFilteredData)
		r.Post("/export", h.ExportData)
		r.Get("/updates", h.CheckForUpdates)
		r.Get("/name-mappings", h.GetNameMappings)
		r.Delete("/name-mappings", h.ClearNameMappings)
	})

	r.Route("/api/overlays", func(r chi.Router) {
		r.Get("/", h.GetOverlays)
		r.Delete("/", h.Unmerge)
		r.Post("/merge", h.Merge)
		r.Post("/suggest", h.Suggest)
		r.Post("/display-options", h.DisplayOptions)
	})
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Sheets
// ============================================================================

func (h *Handler) GetMetadata(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	meta, err := h.Feedback.GetSheetMetadata(r.Context(), url)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSheetRequest(w, r)
	if !ok {
		return
	}
	analytics, err := h.Feedback.GetAnalytics(r.Context(), owner(r), req.URL, req.Filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (h *Handler) GetFilteredData(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSheetRequest(w, r)
	if !ok {
		return
	}
	data, err := h.Feedback.GetFilteredData(r.Context(), owner(r), req.URL, req.Filters, req.Page, req.PageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) ExportData(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeSheetRequest(w, r)
	if !ok {
		return
	}
	data, err := h.Feedback.GetFilteredDataForExport(r.Context(), owner(r), req.URL, req.Filters)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *Handler) CheckForUpdates(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	check, err := h.Feedback.CheckForUpdates(r.Context(), url)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (h *Handler) GetNameMappings(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	mappings, err := h.Feedback.GetNameMappings(r.Context(), url)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mappings)
}

func (h *Handler) ClearNameMappings(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	h.Feedback.ClearNameMappingCache(url)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ============================================================================
// Overlays
// ============================================================================

func (h *Handler) GetOverlays(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	set, err := h.Feedback.Overlays(r.Context(), owner(r), url)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	var req models.MergeRequest
	if !h.decode(w, r, &req) {
		return
	}
	entries, err := h.Feedback.MergeNames(r.Context(), owner(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"category": req.Category,
		"mappings": entries,
	})
}

func (h *Handler) Unmerge(w http.ResponseWriter, r *http.Request) {
	url, ok := requireURL(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if err := h.Feedback.Unmerge(r.Context(), owner(r), url, q.Get("category"), q.Get("canonical")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	var req models.SuggestRequest
	if !h.decode(w, r, &req) {
		return
	}
	suggestions := h.Feedback.SuggestSimilar(req)
	if suggestions == nil {
		suggestions = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"suggestions": suggestions})
}

func (h *Handler) DisplayOptions(w http.ResponseWriter, r *http.Request) {
	var req models.DisplayOptionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	options, err := h.Feedback.DisplayOptions(r.Context(), owner(r), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if options == nil {
		options = []models.DisplayOption{}
	}
	writeJSON(w, http.StatusOK, options)
}

// ============================================================================
// Helpers
// ============================================================================

func owner(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(OwnerHeader)); id != "" {
		return id
	}
	return defaultOwner
}

func requireURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	url := strings.TrimSpace(r.URL.Query().Get("url"))
	if url == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "url is required"})
		return "", false
	}
	return url, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid JSON"})
		return false
	}
	return true
}

func (h *Handler) decodeSheetRequest(w http.ResponseWriter, r *http.Request) (models.SheetRequest, bool) {
	var req models.SheetRequest
	if !h.decode(w, r, &req) {
		return req, false
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "url is required"})
		return req, false
	}
	return req, true
}

func statusFor(err error) int {
	switch {
	case eris.Is(err, service.ErrInvalidMerge):
		return http.StatusBadRequest
	case eris.Is(err, service.ErrOverlayNotFound):
		return http.StatusNotFound
	case eris.Is(err, service.ErrSourceUnreachable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorw("request failed", "path", r.URL.Path, "status", status, "error", eris.ToString(err, true))
	} else {
		h.logger.Debugw("request rejected", "path", r.URL.Path, "status", status, "error", err.Error())
	}
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
