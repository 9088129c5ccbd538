package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/assistant"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
)

const maxRequestBodySize = 1 << 20 // 1 MB

type Assistant interface {
	ReceiveMessage(ctx context.Context, msg assistant.Message) (*assistant.Turn, error)
	Reset()
	SelectPlace(ctx context.Context, fsqID string) (*models.PlaceDetails, error)
	FetchRelated(ctx context.Context, fsqID string) ([]models.ChatResult, error)
	LoadTastes(ctx context.Context, page int) ([]models.CategoryResult, bool, error)
	SearchLocations(ctx context.Context, text string) ([]models.LocationResult, error)
	SaveLocation(ctx context.Context, loc models.LocationResult) error
	SyncCache(ctx context.Context) error
	Categories() []models.CategoryResult
	Lookup(id string) (models.ChatResult, bool)
	LookupPlace(fsqID string) (models.ChatResult, bool)
	LookupLocation(name string) (models.LocationResult, bool)
}

// CacheAdmin is the write and status side of the cache manager.
type CacheAdmin interface {
	AppendCachedCategory(ctx context.Context, record models.CachedRecord) error
	AppendCachedTaste(ctx context.Context, record models.CachedRecord) error
	AppendCachedPlace(ctx context.Context, record models.CachedRecord) error
	AppendRecommendationData(ctx context.Context, data models.RecommendationData) error
	RemoveCached(ctx context.Context, group models.CacheGroup, identity string) error
	ClearCache(ctx context.Context) error
	IsRefreshing() bool
	CompletedTasks() int
	Progress() float64
	DefaultResults() []models.CategoryResult
}

type Handler struct {
	assistant Assistant
	cache     CacheAdmin
	logger    *zap.Logger
}

func NewHandler(a Assistant, cache CacheAdmin, logger *zap.Logger) *Handler {
	return &Handler{
		assistant: a,
		cache:     cache,
		logger:    logger,
	}
}

func (h *Handler) Message(w http.ResponseWriter, r *http.Request) {
	var msg assistant.Message
	if err := h.decode(r, messageSchema, &msg); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	turn, err := h.assistant.ReceiveMessage(r.Context(), msg)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, turn)
}

func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.assistant.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SelectPlace(w http.ResponseWriter, r *http.Request) {
	details, err := h.assistant.SelectPlace(r.Context(), chi.URLParam(r, "fsqID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	related, err := h.assistant.FetchRelated(r.Context(), chi.URLParam(r, "fsqID"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"results": related})
}

func (h *Handler) Place(w http.ResponseWriter, r *http.Request) {
	fsqID := chi.URLParam(r, "fsqID")
	result, ok := h.assistant.LookupPlace(fsqID)
	if !ok {
		h.writeAppError(w, r, apperrors.NotFound("place "+fsqID))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Result(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, ok := h.assistant.Lookup(id)
	if !ok {
		h.writeAppError(w, r, apperrors.NotFound("result "+id))
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Tastes(w http.ResponseWriter, r *http.Request) {
	page := 0
	if p := r.URL.Query().Get("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 0 {
			h.writeAppError(w, r, apperrors.ValidationFailure("page must be a non-negative integer"))
			return
		}
		page = parsed
	}

	tastes, more, err := h.assistant.LoadTastes(r.Context(), page)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tastes":   tastes,
		"page":     page,
		"has_more": more,
	})
}

func (h *Handler) SearchLocations(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeAppError(w, r, apperrors.ValidationFailure("query parameter 'q' is required"))
		return
	}
	locations, err := h.assistant.SearchLocations(r.Context(), q)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *Handler) Location(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	loc, ok := h.assistant.LookupLocation(name)
	if !ok {
		h.writeAppError(w, r, apperrors.NotFound("location "+name))
		return
	}
	h.writeJSON(w, http.StatusOK, loc)
}

func (h *Handler) SaveLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.LocationResult
	if err := h.decode(r, locationSchema, &loc); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.assistant.SaveLocation(r.Context(), loc); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, loc)
}

func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"categories": h.assistant.Categories()})
}

func (h *Handler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"refreshing":      h.cache.IsRefreshing(),
		"completed_tasks": h.cache.CompletedTasks(),
		"progress":        h.cache.Progress(),
		"default_results": h.cache.DefaultResults(),
	})
}

// RefreshCache reloads every tier. Tier failures are reported but the tiers
// that did load stay applied.
func (h *Handler) RefreshCache(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.SyncCache(r.Context()); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"completed_tasks": h.cache.CompletedTasks(),
		"progress":        h.cache.Progress(),
	})
}

func (h *Handler) AppendRecord(w http.ResponseWriter, r *http.Request) {
	var record models.CachedRecord
	if err := h.decode(r, recordSchema, &record); err != nil {
		h.writeAppError(w, r, err)
		return
	}

	var err error
	switch record.Group {
	case models.GroupCategory:
		err = h.cache.AppendCachedCategory(r.Context(), record)
	case models.GroupTaste:
		err = h.cache.AppendCachedTaste(r.Context(), record)
	case models.GroupPlace:
		err = h.cache.AppendCachedPlace(r.Context(), record)
	default:
		err = apperrors.ValidationFailure(fmt.Sprintf("unsupported group %q", record.Group))
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) AppendRecommendation(w http.ResponseWriter, r *http.Request) {
	var data models.RecommendationData
	if err := h.decode(r, recommendationSchema, &data); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	if err := h.cache.AppendRecommendationData(r.Context(), data); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, data)
}

func (h *Handler) RemoveRecord(w http.ResponseWriter, r *http.Request) {
	group, ok := models.ParseCacheGroup(chi.URLParam(r, "group"))
	if !ok {
		h.writeAppError(w, r, apperrors.ValidationFailure("unknown cache group "+chi.URLParam(r, "group")))
		return
	}
	if err := h.cache.RemoveCached(r.Context(), group, chi.URLParam(r, "identity")); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ClearCache(r.Context()); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads the body, validates it against schema and unmarshals it into dst.
func (h *Handler) decode(r *http.Request, schema *gojsonschema.Schema, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return apperrors.ValidationFailure("reading request body: " + err.Error())
	}
	if len(body) == 0 {
		return apperrors.ValidationFailure("request body is required")
	}
	if err := validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.ValidationFailure("invalid request body: " + err.Error())
	}
	return nil
}

func statusFor(err error) (int, string) {
	if errors.Is(err, orchestrator.ErrDuplicateSuppressed) {
		return http.StatusConflict, "DUPLICATE_SUPPRESSED"
	}
	code, ok := apperrors.CodeOf(err)
	if !ok {
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
	switch code {
	case apperrors.CodeValidationFailure:
		return http.StatusBadRequest, string(code)
	case apperrors.CodeNotFound:
		return http.StatusNotFound, string(code)
	case apperrors.CodeNoTokenFound:
		return http.StatusUnauthorized, string(code)
	case apperrors.CodeNetworkFailure:
		return http.StatusServiceUnavailable, string(code)
	default:
		return http.StatusInternalServerError, string(code)
	}
}

func (h *Handler) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	h.writeError(w, status, code, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("writing json response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
