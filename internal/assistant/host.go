// Package assistant drives one conversation: it turns each user message into
// an intent, runs the search for it and keeps the result index current.
package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/shubhsaxena/nearby-assistant/internal/analytics"
	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
	"github.com/shubhsaxena/nearby-assistant/internal/index"
	"github.com/shubhsaxena/nearby-assistant/internal/intent"
	"github.com/shubhsaxena/nearby-assistant/internal/models"
	"github.com/shubhsaxena/nearby-assistant/internal/observability"
	"github.com/shubhsaxena/nearby-assistant/internal/orchestrator"
	"github.com/shubhsaxena/nearby-assistant/internal/query"
	"github.com/shubhsaxena/nearby-assistant/internal/taxonomy"
)

// currentLocationPhrase asks the resolver for the user's own position.
const currentLocationPhrase = "here"

// CacheView is the part of the cache manager the host reads from.
type CacheView interface {
	IndustryResults() []models.CategoryResult
	TasteResults() []models.CategoryResult
	PlaceResults() []models.CategoryResult
	LocationResults() []models.LocationResult
	RecommendationData() []models.RecommendationData
	TasteTitles() []string
	PlaceNames() []string
	RefreshCache(ctx context.Context) error
	AppendCachedLocation(ctx context.Context, loc models.LocationResult) error
}

// Components are the collaborators a Host is built from. Cache, Index, Table
// and Analytics are optional.
type Components struct {
	Analyzer     *query.Analyzer
	Orchestrator *orchestrator.Orchestrator
	Resolver     *orchestrator.LocationResolver
	State        *intent.State
	Cache        CacheView
	Index        *index.ResultIndex
	Table        *taxonomy.Table
	Analytics    analytics.Sink
}

// Host serializes turns: only one message, selection or reset runs at a time.
type Host struct {
	analyzer *query.Analyzer
	orch     *orchestrator.Orchestrator
	resolver *orchestrator.LocationResolver
	state    *intent.State
	cache    CacheView
	index    *index.ResultIndex
	sink     analytics.Sink
	events   chan<- Event
	logger   *zap.Logger

	mu          sync.Mutex
	industry    []models.CategoryResult
	tastes      []models.CategoryResult
	locations   []models.LocationResult
	places      []models.ChatResult
	recommended []models.ChatResult
	related     []models.ChatResult
}

// NewHost builds a host. events may be nil; when set, the caller must keep
// draining it or turns block until their context is done.
func NewHost(c Components, events chan<- Event, logger *zap.Logger) (*Host, error) {
	if c.Analyzer == nil || c.Orchestrator == nil || c.Resolver == nil || c.State == nil {
		return nil, apperrors.ValidationFailure("analyzer, orchestrator, resolver and state are required")
	}
	if c.Index == nil {
		c.Index = index.New()
	}
	if c.Analytics == nil {
		c.Analytics = analytics.Nop{}
	}

	h := &Host{
		analyzer: c.Analyzer,
		orch:     c.Orchestrator,
		resolver: c.Resolver,
		state:    c.State,
		cache:    c.Cache,
		index:    c.Index,
		sink:     c.Analytics,
		events:   events,
		logger:   logger,
	}
	if c.Table != nil {
		h.industry = c.Table.CategoryResults()
	}
	h.reindex()
	return h, nil
}

// ReceiveMessage runs one full turn for msg and returns what was found.
func (h *Host) ReceiveMessage(ctx context.Context, msg Message) (*Turn, error) {
	// Trailing whitespace and punctuation mark a finished query, so the caption
	// is analyzed as typed.
	caption := msg.Caption
	if strings.TrimSpace(caption) == "" {
		return nil, apperrors.ValidationFailure("caption is required")
	}
	if err := query.ValidateFilters(msg.Filters); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "assistant.receive_message",
		attribute.Bool("refine", msg.Refine),
	)
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()

	start := time.Now()
	analysis := h.analyzer.Analyze(caption, msg.Filters, msg.Kind)

	turn, err := h.runTurn(ctx, msg, analysis)

	status := "success"
	if err != nil {
		status = "error"
		h.sink.TrackError(ctx, err, map[string]any{"phase": "receiveMessage", "caption": caption})
		h.emit(ctx, Event{Type: EventError, Err: err})
	}
	observability.MessagesTotal.WithLabelValues(analysis.Kind.String(), status).Inc()
	observability.MessageDuration.WithLabelValues(analysis.Kind.String(), status).Observe(time.Since(start).Seconds())

	if err != nil {
		h.logger.Warn("message failed",
			zap.String("caption", caption),
			zap.String("kind", analysis.Kind.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return turn, nil
}

func (h *Host) runTurn(ctx context.Context, msg Message, analysis *query.Analysis) (*Turn, error) {
	destination := h.destination(ctx, msg, analysis)

	var in *intent.Intent
	if msg.Refine {
		if revised, ok := h.state.UpdateLast(analysis.Caption, analysis.Kind, msg.Filters, analysis.Parameters, destination); ok {
			in = revised
		}
	}
	if in == nil {
		in = h.orch.BuildIntent(analysis.Caption, analysis.Kind, msg.Filters, analysis.Parameters, destination)
		h.state.Append(in)
	}

	h.emit(ctx, Event{Type: EventIntent, IntentID: in.ID})
	if in.Destination != nil {
		h.emit(ctx, Event{Type: EventDestination, IntentID: in.ID, Destination: in.Destination})
	}

	turn := &Turn{
		IntentID:        in.ID,
		Caption:         in.Caption,
		Kind:            in.Kind,
		Parameters:      in.Parameters,
		Destination:     in.Destination,
		Results:         []models.ChatResult{},
		Recommendations: []models.ChatResult{},
	}

	switch in.Kind {
	case models.IntentAutocomplete:
		batch, err := h.orch.PerformAutocomplete(ctx, in.Caption, in)
		if err != nil {
			return nil, err
		}
		turn.Stale = batch.Stale
		if batch.Results != nil {
			turn.Results = batch.Results
		}
	default:
		batch, err := h.orch.PerformSearch(ctx, in)
		if err != nil {
			return nil, err
		}
		if batch.Stale {
			turn.Stale = true
			break
		}
		h.prefetch(ctx, in)
		turn.Results = orchestrator.BuildPlaceResults(in)
		turn.Recommendations = orchestrator.BuildRecommendedResults(in)
	}

	if !turn.Stale {
		h.places = turn.Results
		h.recommended = turn.Recommendations
		h.related = nil
		h.reindex()
	}

	h.emit(ctx, Event{Type: EventResults, IntentID: in.ID, Turn: turn})
	return turn, nil
}

// destination picks the location the turn searches around: an explicit
// choice, then a "near X" phrase, then the previous turn's destination, then
// the user's current location.
func (h *Host) destination(ctx context.Context, msg Message, analysis *query.Analysis) *models.LocationResult {
	if msg.DestinationID != "" {
		if loc, ok := h.index.LocationResultByID(msg.DestinationID); ok {
			return &loc
		}
		h.logger.Warn("unknown destination id", zap.String("destination_id", msg.DestinationID))
	}

	if near, ok := analysis.NearLocation(); ok {
		if loc, ok := h.resolver.Resolve(ctx, analysis.Caption, near, h.knownLocations()); ok {
			h.rememberLocation(*loc)
			return loc
		}
	}

	if last, ok := h.state.Last(); ok && last.Destination != nil {
		d := *last.Destination
		return &d
	}

	if loc, ok := h.resolver.Resolve(ctx, analysis.Caption, currentLocationPhrase, nil); ok {
		return loc
	}
	return nil
}

func (h *Host) prefetch(ctx context.Context, in *intent.Intent) {
	details, err := h.orch.PrefetchInitialDetailsIfNeeded(ctx, in, h.orch.PrefetchCount())
	if err != nil {
		h.logger.Warn("details prefetch failed", zap.String("intent_id", in.ID), zap.Error(err))
		return
	}
	if !h.state.IsCurrent(in.ID) {
		return
	}
	for _, d := range details {
		if _, ok := in.DetailsFor(d.FsqID); !ok {
			in.Fulfillment.Details = append(in.Fulfillment.Details, d)
		}
	}
}

// Reset drops the conversation and any lookup in flight.
func (h *Host) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.resolver.Cancel()
	h.state.Reset()
	h.places = nil
	h.recommended = nil
	h.related = nil
	h.reindex()
}

// SelectPlace selects one of the current turn's places and returns its details.
func (h *Host) SelectPlace(ctx context.Context, fsqID string) (*models.PlaceDetails, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	in, ok := h.state.Last()
	if !ok {
		return nil, apperrors.NotFound("no active intent")
	}
	details, err := h.orch.SelectPlace(ctx, in, fsqID)
	if err != nil {
		return nil, err
	}
	h.places = orchestrator.BuildPlaceResults(in)
	h.reindex()
	return details, nil
}

// FetchRelated loads places related to fsqID for the current turn.
func (h *Host) FetchRelated(ctx context.Context, fsqID string) ([]models.ChatResult, error) {
	if fsqID == "" {
		return nil, apperrors.ValidationFailure("place id is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	in, ok := h.state.Last()
	if !ok {
		return nil, apperrors.NotFound("no active intent")
	}
	related, err := h.orch.FetchRelated(ctx, in, fsqID)
	if err != nil {
		return nil, err
	}
	h.related = related
	h.reindex()
	return related, nil
}

// LoadTastes fetches a page of the user's tastes. Page zero replaces the
// loaded tastes, later pages extend them.
func (h *Host) LoadTastes(ctx context.Context, page int) ([]models.CategoryResult, bool, error) {
	if page < 0 {
		return nil, false, apperrors.ValidationFailure("page must not be negative")
	}
	results, more, err := h.orch.FetchTastes(ctx, page)
	if err != nil {
		return nil, false, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if page == 0 {
		h.tastes = results
	} else {
		h.tastes = append(h.tastes, results...)
	}
	h.reindex()
	return results, more, nil
}

// SearchLocations looks up locations by name and makes them selectable as a
// destination for the next message.
func (h *Host) SearchLocations(ctx context.Context, text string) ([]models.LocationResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperrors.ValidationFailure("location text is required")
	}
	locations, err := h.orch.SearchLocations(ctx, text)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, loc := range locations {
		h.rememberLocation(loc)
	}
	h.reindex()
	return locations, nil
}

// SaveLocation persists loc in the location cache.
func (h *Host) SaveLocation(ctx context.Context, loc models.LocationResult) error {
	if h.cache == nil {
		return apperrors.ValidationFailure("no cache configured")
	}
	if err := h.cache.AppendCachedLocation(ctx, loc); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.rememberLocation(loc)
	h.reindex()
	return nil
}

// SyncCache refreshes every cache tier, then teaches the tagger the cached
// taste titles and place names. Tier failures are returned after the
// successful tiers have been applied.
func (h *Host) SyncCache(ctx context.Context) error {
	if h.cache == nil {
		return nil
	}
	err := h.cache.RefreshCache(ctx)
	h.EnrichFromCache()
	return err
}

// EnrichFromCache rebuilds the tagger vocabulary and the result index from
// the cache tiers as they are now. Run it after tiers change underneath the
// host, such as a sync of writes from another instance.
func (h *Host) EnrichFromCache() {
	if h.cache == nil {
		return
	}
	h.analyzer.Enrich(h.cache.TasteTitles(), h.cache.PlaceNames())

	h.mu.Lock()
	h.reindex()
	h.mu.Unlock()
}

// Categories returns the industry category results from the taxonomy.
func (h *Host) Categories() []models.CategoryResult {
	return h.industry
}

func (h *Host) Intents() []*intent.Intent {
	return h.state.Intents()
}

func (h *Host) Index() *index.ResultIndex {
	return h.index
}

// Lookup finds a chat result by id among everything currently shown.
func (h *Host) Lookup(id string) (models.ChatResult, bool) {
	if r, ok := h.index.ChatResult(id); ok {
		return r, true
	}
	if r, ok := h.index.IndustryChatResultByID(id); ok {
		return r, true
	}
	if r, ok := h.index.TasteChatResult(id); ok {
		return r, true
	}
	return h.index.CachedChatResult(id)
}

func (h *Host) LookupPlace(fsqID string) (models.ChatResult, bool) {
	return h.index.PlaceChatResult(fsqID)
}

func (h *Host) LookupLocation(name string) (models.LocationResult, bool) {
	return h.index.LocationResult(name)
}

func (h *Host) knownLocations() []models.LocationResult {
	known := make([]models.LocationResult, 0, len(h.locations))
	if h.cache != nil {
		known = append(known, h.cache.LocationResults()...)
	}
	return append(known, h.locations...)
}

func (h *Host) rememberLocation(loc models.LocationResult) {
	for _, existing := range h.locations {
		if strings.EqualFold(existing.Name, loc.Name) {
			return
		}
	}
	h.locations = append(h.locations, loc)
}

// reindex must be called with mu held.
func (h *Host) reindex() {
	snapshot := index.Snapshot{
		PlaceResults:       h.places,
		RecommendedResults: h.recommended,
		RelatedResults:     h.related,
		IndustryResults:    h.industry,
		TasteResults:       h.tastes,
		Locations:          h.knownLocations(),
	}
	if h.cache != nil {
		snapshot.CachedCategoryResults = h.cache.IndustryResults()
		snapshot.CachedPlaceResults = h.cache.PlaceResults()
		snapshot.CachedTasteResults = h.cache.TasteResults()
		snapshot.RecommendationData = h.cache.RecommendationData()
	}
	h.index.Update(snapshot)
}

func (h *Host) emit(ctx context.Context, ev Event) {
	if h.events == nil {
		return
	}
	select {
	case h.events <- ev:
	case <-ctx.Done():
	}
}
