package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"horse.fit/citypulse/internal/batchschema"
	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/globaltime"
	"horse.fit/citypulse/internal/search"
)

type eventDetailResponse struct {
	Event     eventItem      `json:"event"`
	Snapshots []snapshotItem `json:"snapshots"`
}

type eventItem struct {
	EventUUID    string          `json:"event_uuid"`
	Source       string          `json:"source"`
	SourceURL    *string         `json:"source_url,omitempty"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	EventType    string          `json:"event_type"`
	Tags         []string        `json:"tags,omitempty"`
	Language     string          `json:"language,omitempty"`
	StartsAt     time.Time       `json:"starts_at"`
	EndsAt       *time.Time      `json:"ends_at,omitempty"`
	Recurrence   json.RawMessage `json:"recurrence,omitempty"`
	LocationName string          `json:"location_name,omitempty"`
	Address      string          `json:"address,omitempty"`
	Latitude     *float64        `json:"latitude,omitempty"`
	Longitude    *float64        `json:"longitude,omitempty"`
	PriceMin     *float64        `json:"price_min,omitempty"`
	PriceMax     *float64        `json:"price_max,omitempty"`
	Currency     string          `json:"currency"`
	TicketURL    *string         `json:"ticket_url,omitempty"`
	Confidence   float64         `json:"confidence"`
	Verified     bool            `json:"verified"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type snapshotItem struct {
	Source     string          `json:"source"`
	RawPayload json.RawMessage `json:"raw_payload"`
	CreatedAt  time.Time       `json:"created_at"`
}

type searchResultItem struct {
	Event        eventItem `json:"event"`
	Score        float64   `json:"score"`
	LexicalScore float64   `json:"lexical_score"`
	VectorScore  float64   `json:"vector_score"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "citypulse",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleSearch(c echo.Context) error {
	if s.engine == nil {
		return internalError(c, "Search is not configured")
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return failValidation(c, map[string]string{"q": "is required"})
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	from, err := parseTimeFilter(c.QueryParam("from"), false)
	if err != nil {
		return failValidation(c, map[string]string{"from": "must be RFC3339 or YYYY-MM-DD"})
	}
	to, err := parseTimeFilter(c.QueryParam("to"), true)
	if err != nil {
		return failValidation(c, map[string]string{"to": "must be RFC3339 or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return failValidation(c, map[string]string{"time_range": "from must be <= to"})
	}

	filters := search.Filters{
		From:      from,
		To:        to,
		EventType: strings.TrimSpace(strings.ToLower(c.QueryParam("type"))),
		Tag:       strings.TrimSpace(strings.ToLower(c.QueryParam("tag"))),
		City:      strings.TrimSpace(c.QueryParam("city")),
		Limit:     limit,
	}

	lat, err := parseOptionalFloat(c.QueryParam("lat"), -90, 90)
	if err != nil {
		return failValidation(c, map[string]string{"lat": err.Error()})
	}
	lon, err := parseOptionalFloat(c.QueryParam("lon"), -180, 180)
	if err != nil {
		return failValidation(c, map[string]string{"lon": err.Error()})
	}
	radius, err := parseOptionalFloat(c.QueryParam("radius_m"), 1, 100_000)
	if err != nil {
		return failValidation(c, map[string]string{"radius_m": err.Error()})
	}
	if (lat == nil) != (lon == nil) {
		return failValidation(c, map[string]string{"geo": "lat and lon must be provided together"})
	}
	if lat != nil {
		filters.Latitude = lat
		filters.Longitude = lon
		if radius == nil {
			defaultRadius := 2000.0
			radius = &defaultRadius
		}
		filters.RadiusMeters = radius
	}

	maxPrice, err := parseOptionalFloat(c.QueryParam("max_price"), 0, 1_000_000)
	if err != nil {
		return failValidation(c, map[string]string{"max_price": err.Error()})
	}
	filters.MaxPrice = maxPrice
	filters.FreeOnly = parseBool(c.QueryParam("free"))

	started := time.Now()
	result, err := s.engine.Search(c.Request().Context(), query, filters)
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("search failed")
		return internalError(c, "Search failed")
	}
	if s.metrics != nil {
		outcome := "ok"
		if result.Degraded {
			outcome = "degraded"
		}
		s.metrics.SearchRequests.WithLabelValues(outcome).Inc()
		s.metrics.SearchDuration.Observe(time.Since(started).Seconds())
	}

	items := make([]searchResultItem, 0, len(result.Events))
	for _, ranked := range result.Events {
		items = append(items, searchResultItem{
			Event:        toEventItem(&ranked.Event),
			Score:        ranked.Score,
			LexicalScore: ranked.LexicalScore,
			VectorScore:  ranked.VectorScore,
		})
	}

	return success(c, map[string]any{
		"items":    items,
		"degraded": result.Degraded,
		"query":    query,
	})
}

func (s *Server) handleEventDetail(c echo.Context) error {
	eventUUID := strings.TrimSpace(c.Param("event_uuid"))
	if eventUUID == "" {
		return failValidation(c, map[string]string{"event_uuid": "is required"})
	}

	event, err := s.pool.GetEventByUUID(c.Request().Context(), eventUUID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Event not found")
		}
		s.logger.Error().Err(err).Str("event_uuid", eventUUID).Msg("query event failed")
		return internalError(c, "Failed to load event")
	}

	snapshots, err := s.pool.ListEventSnapshots(c.Request().Context(), event.EventID)
	if err != nil {
		s.logger.Error().Err(err).Str("event_uuid", eventUUID).Msg("query snapshots failed")
		return internalError(c, "Failed to load event")
	}

	detail := eventDetailResponse{
		Event:     toEventItem(event),
		Snapshots: make([]snapshotItem, 0, len(snapshots)),
	}
	for _, snap := range snapshots {
		detail.Snapshots = append(detail.Snapshots, snapshotItem{
			Source:     snap.Source,
			RawPayload: snap.RawPayload,
			CreatedAt:  snap.CreatedAt,
		})
	}
	return success(c, detail)
}

func (s *Server) handleIngest(c echo.Context) error {
	if s.pipeline == nil {
		return internalError(c, "Ingest is not configured")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return fail(c, 400, "Failed to read request body", nil)
	}

	batch, err := batchschema.ValidateBatchPayload(body)
	if err != nil {
		return failValidation(c, map[string]string{"payload": err.Error()})
	}

	summary, err := s.pipeline.ProcessBatch(c.Request().Context(), batch)
	if err != nil {
		s.logger.Error().Err(err).Str("source", batch.Source).Msg("process batch failed")
		return internalError(c, "Failed to process batch")
	}

	return successWithStatus(c, 202, summary)
}

type venueItem struct {
	VenueID    int64    `json:"venue_id"`
	VenueUUID  string   `json:"venue_uuid"`
	Name       string   `json:"name"`
	Address    string   `json:"address,omitempty"`
	City       string   `json:"city,omitempty"`
	Country    string   `json:"country,omitempty"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	WebsiteURL *string  `json:"website_url,omitempty"`
	Active     bool     `json:"active"`
}

type createVenueRequest struct {
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	City       string   `json:"city"`
	Country    string   `json:"country"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	WebsiteURL *string  `json:"website_url"`
}

func (s *Server) handleVenues(c echo.Context) error {
	ctx := c.Request().Context()

	if name := strings.TrimSpace(c.QueryParam("name")); name != "" {
		venue, err := s.pool.FindVenueByName(ctx, name)
		if err != nil {
			if db.IsNoRows(err) {
				return failNotFound(c, "Venue not found")
			}
			s.logger.Error().Err(err).Str("name", name).Msg("query venue by name failed")
			return internalError(c, "Failed to load venue")
		}
		return success(c, toVenueItem(venue))
	}

	limit, err := parsePositiveInt(c.QueryParam("limit"), 100, 1, 1000)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	venues, err := s.pool.ListVenues(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query venues failed")
		return internalError(c, "Failed to load venues")
	}

	items := make([]venueItem, 0, len(venues))
	for i := range venues {
		items = append(items, toVenueItem(&venues[i]))
	}
	return success(c, map[string]any{"items": items})
}

func (s *Server) handleVenueDetail(c echo.Context) error {
	venueID, err := strconv.ParseInt(strings.TrimSpace(c.Param("venue_id")), 10, 64)
	if err != nil || venueID <= 0 {
		return failValidation(c, map[string]string{"venue_id": "must be a positive integer"})
	}

	venue, err := s.pool.GetVenueByID(c.Request().Context(), venueID)
	if err != nil {
		if db.IsNoRows(err) {
			return failNotFound(c, "Venue not found")
		}
		s.logger.Error().Err(err).Int64("venue_id", venueID).Msg("query venue failed")
		return internalError(c, "Failed to load venue")
	}
	return success(c, toVenueItem(venue))
}

func (s *Server) handleCreateVenue(c echo.Context) error {
	var req createVenueRequest
	if err := c.Bind(&req); err != nil {
		return failValidation(c, map[string]string{"payload": "must be a JSON object"})
	}
	if strings.TrimSpace(req.Name) == "" {
		return failValidation(c, map[string]string{"name": "is required"})
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return failValidation(c, map[string]string{"geo": "latitude and longitude must be provided together"})
	}

	venueID, err := s.pool.CreateVenue(c.Request().Context(), &db.Venue{
		Name:       req.Name,
		Address:    strings.TrimSpace(req.Address),
		City:       strings.TrimSpace(req.City),
		Country:    strings.TrimSpace(req.Country),
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		WebsiteURL: req.WebsiteURL,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("name", req.Name).Msg("create venue failed")
		return internalError(c, "Failed to create venue")
	}

	venue, err := s.pool.GetVenueByID(c.Request().Context(), venueID)
	if err != nil {
		s.logger.Error().Err(err).Int64("venue_id", venueID).Msg("load created venue failed")
		return internalError(c, "Failed to load venue")
	}
	return successWithStatus(c, 201, toVenueItem(venue))
}

type runItem struct {
	RunUUID      string     `json:"run_uuid"`
	Source       string     `json:"source"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Status       string     `json:"status"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	Discarded    int        `json:"discarded"`
	Errored      int        `json:"errored"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

func (s *Server) handleRuns(c echo.Context) error {
	limit, err := parsePositiveInt(c.QueryParam("limit"), 20, 1, 200)
	if err != nil {
		return failValidation(c, map[string]string{"limit": err.Error()})
	}

	runs, err := s.pool.ListRecentIngestRuns(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("query ingest runs failed")
		return internalError(c, "Failed to load ingest runs")
	}

	items := make([]runItem, 0, len(runs))
	for _, run := range runs {
		items = append(items, runItem{
			RunUUID:      run.RunUUID,
			Source:       run.Source,
			StartedAt:    run.StartedAt,
			FinishedAt:   run.FinishedAt,
			Status:       run.Status,
			Created:      run.Created,
			Updated:      run.Updated,
			Discarded:    run.Discarded,
			Errored:      run.Errored,
			ErrorMessage: run.ErrorMessage,
		})
	}
	return success(c, map[string]any{"items": items})
}

func toVenueItem(venue *db.Venue) venueItem {
	return venueItem{
		VenueID:    venue.VenueID,
		VenueUUID:  venue.VenueUUID,
		Name:       venue.Name,
		Address:    venue.Address,
		City:       venue.City,
		Country:    venue.Country,
		Latitude:   venue.Latitude,
		Longitude:  venue.Longitude,
		WebsiteURL: venue.WebsiteURL,
		Active:     venue.Active,
	}
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.GetStoreStats(c.Request().Context(), globaltime.UTC())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func toEventItem(event *db.Event) eventItem {
	return eventItem{
		EventUUID:    event.EventUUID,
		Source:       event.Source,
		SourceURL:    event.SourceURL,
		Title:        event.Title,
		Description:  event.Description,
		EventType:    event.EventType,
		Tags:         event.TagList(),
		Language:     event.Language,
		StartsAt:     event.StartsAt,
		EndsAt:       event.EndsAt,
		Recurrence:   event.Recurrence,
		LocationName: event.LocationName,
		Address:      event.Address,
		Latitude:     event.Latitude,
		Longitude:    event.Longitude,
		PriceMin:     event.PriceMin,
		PriceMax:     event.PriceMax,
		Currency:     event.Currency,
		TicketURL:    event.TicketURL,
		Confidence:   event.Confidence,
		Verified:     event.Verified,
		UpdatedAt:    event.UpdatedAt,
	}
}

func parsePositiveInt(raw string, defaultValue, minValue, maxValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("must be an integer")
	}
	if value < minValue || value > maxValue {
		return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
	}
	return value, nil
}

func parseOptionalFloat(raw string, minValue, maxValue float64) (*float64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return nil, errors.New("must be a number")
	}
	if value < minValue || value > maxValue {
		return nil, fmt.Errorf("must be between %v and %v", minValue, maxValue)
	}
	return &value, nil
}

func parseBool(raw string) bool {
	switch strings.TrimSpace(strings.ToLower(raw)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

func parseTimeFilter(raw string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, nil
	}

	if ts, err := time.Parse(time.RFC3339, trimmed); err == nil {
		utc := ts.UTC()
		return &utc, nil
	}

	if day, err := time.Parse("2006-01-02", trimmed); err == nil {
		utc := day.UTC()
		if endOfDay {
			utc = utc.Add((24 * time.Hour) - time.Nanosecond)
		}
		return &utc, nil
	}

	return nil, fmt.Errorf("invalid time format")
}
