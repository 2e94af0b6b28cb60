// Package dedup resolves normalized drafts against the event store. Every
// draft ends in exactly one of three outcomes: it creates a new event,
// merges into an existing one, or is discarded as carrying nothing new.
package dedup

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/globaltime"
	"horse.fit/citypulse/internal/normalize"
	"horse.fit/citypulse/internal/signature"
)

// Decision classifies what Resolve did with a draft.
type Decision string

const (
	DecisionCreated   Decision = "created"
	DecisionUpdated   Decision = "updated"
	DecisionDiscarded Decision = "discarded"
)

// Outcome reports the resolution of one draft.
type Outcome struct {
	Decision  Decision
	EventID   int64
	EventUUID string
	// MatchedFuzzy is set when the draft reached its event through
	// approximate title matching rather than an exact key hit.
	MatchedFuzzy bool
}

// Store is the persistence surface the deduplicator needs.
type Store interface {
	FindEventIDBySignature(ctx context.Context, signatureHash []byte) (int64, error)
	FindEventIDBySourceID(ctx context.Context, source, sourceEventID string) (int64, error)
	ListDedupCandidates(ctx context.Context, from, to time.Time) ([]db.Event, error)
	GetEventByID(ctx context.Context, eventID int64) (*db.Event, error)
	InsertEvent(ctx context.Context, params db.InsertEventParams) (int64, error)
	UpdateEvent(ctx context.Context, params db.UpdateEventParams) error
	RecordSignature(ctx context.Context, signatureHash []byte, eventID int64, source string) error
}

// Config tunes the fuzzy matcher and merge bookkeeping.
type Config struct {
	// FuzzyTitleThreshold is the minimum Levenshtein similarity ratio
	// between fuzzy titles for two listings to be considered the same
	// event. Range (0, 1].
	FuzzyTitleThreshold float64
	// FuzzyWindow bounds how far apart the start times of two listings of
	// one event may be.
	FuzzyWindow time.Duration
	// FuzzyRadiusMeters bounds how far apart their coordinates may be.
	FuzzyRadiusMeters float64
	// SnapshotKeep is how many raw payload snapshots each event retains.
	SnapshotKeep int
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	return Config{
		FuzzyTitleThreshold: 0.85,
		FuzzyWindow:         3 * time.Hour,
		FuzzyRadiusMeters:   200,
		SnapshotKeep:        5,
	}
}

// Service is the deduplicator.
type Service struct {
	store  Store
	cfg    Config
	logger zerolog.Logger
	locks  *keyedMutex
}

func NewService(store Store, cfg Config, logger zerolog.Logger) *Service {
	if cfg.FuzzyTitleThreshold <= 0 || cfg.FuzzyTitleThreshold > 1 {
		cfg.FuzzyTitleThreshold = DefaultConfig().FuzzyTitleThreshold
	}
	if cfg.FuzzyWindow <= 0 {
		cfg.FuzzyWindow = DefaultConfig().FuzzyWindow
	}
	if cfg.FuzzyRadiusMeters <= 0 {
		cfg.FuzzyRadiusMeters = DefaultConfig().FuzzyRadiusMeters
	}
	if cfg.SnapshotKeep <= 0 {
		cfg.SnapshotKeep = DefaultConfig().SnapshotKeep
	}
	return &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "dedup").Logger(),
		locks:  newKeyedMutex(),
	}
}

// Resolve runs the matching cascade for one draft: exact signature, then
// the source's own event id, then fuzzy title similarity, then a new event.
// The same draft resolved twice always lands on the same event, and the
// second resolution is a discard.
func (s *Service) Resolve(ctx context.Context, draft normalize.Draft) (Outcome, error) {
	sig := signature.Compute(draft)

	// Serialize drafts that could collide. The fuzzy title groups listings
	// of the same event across sources; the unique index on the signature
	// hash remains the backstop for anything the lock does not cover.
	lockKey := sig.FuzzyTitle
	if lockKey == "" {
		lockKey = hex.EncodeToString(sig.ExactKey)
	}
	unlock := s.locks.lock(lockKey)
	defer unlock()

	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		outcome, err := s.resolveOnce(ctx, draft, sig)
		if err == nil {
			return outcome, nil
		}
		if !errors.Is(err, db.ErrDuplicateSignature) {
			return Outcome{}, err
		}
		// Lost an insert race; the signature now exists, so the retry
		// resolves exactly.
		lastErr = err
	}
	return Outcome{}, fmt.Errorf("resolve draft %q: %w", draft.Title, lastErr)
}

// matchKind records how a draft reached an existing event.
type matchKind int

const (
	matchExact matchKind = iota
	matchSourceID
	matchFuzzy
)

func (s *Service) resolveOnce(ctx context.Context, draft normalize.Draft, sig signature.Signature) (Outcome, error) {
	eventID, err := s.store.FindEventIDBySignature(ctx, sig.ExactKey)
	switch {
	case err == nil:
		return s.mergeInto(ctx, eventID, draft, sig, matchExact)
	case !db.IsNoRows(err):
		return Outcome{}, fmt.Errorf("exact signature lookup: %w", err)
	}

	// A source re-sending its own id is the same event even when the start
	// time moved outside the fuzzy window, say a rescheduled show.
	if draft.SourceEventID != nil && *draft.SourceEventID != "" {
		eventID, err := s.store.FindEventIDBySourceID(ctx, draft.Source, *draft.SourceEventID)
		switch {
		case err == nil:
			return s.mergeInto(ctx, eventID, draft, sig, matchSourceID)
		case !db.IsNoRows(err):
			return Outcome{}, fmt.Errorf("source id lookup: %w", err)
		}
	}

	matchID, found, err := s.findFuzzyMatch(ctx, draft, sig)
	if err != nil {
		return Outcome{}, err
	}
	if found {
		return s.mergeInto(ctx, matchID, draft, sig, matchFuzzy)
	}

	return s.createEvent(ctx, draft, sig)
}

// findFuzzyMatch scans events starting near the draft and returns the best
// candidate whose fuzzy title is similar enough and whose location is
// compatible.
func (s *Service) findFuzzyMatch(ctx context.Context, draft normalize.Draft, sig signature.Signature) (int64, bool, error) {
	from := sig.StartsAt.Add(-s.cfg.FuzzyWindow)
	to := sig.StartsAt.Add(s.cfg.FuzzyWindow)

	candidates, err := s.store.ListDedupCandidates(ctx, from, to)
	if err != nil {
		return 0, false, fmt.Errorf("list fuzzy candidates: %w", err)
	}

	var best *db.Event
	bestRatio := 0.0
	for i := range candidates {
		candidate := &candidates[i]
		ratio := levenshteinRatio(sig.FuzzyTitle, signature.FuzzyTitle(candidate.Title))
		if ratio < s.cfg.FuzzyTitleThreshold {
			continue
		}
		if !s.locationCompatible(draft, candidate) {
			continue
		}
		// Equal similarity goes to the most recently updated candidate.
		if best == nil || ratio > bestRatio || (ratio == bestRatio && moreRecent(candidate, best)) {
			bestRatio = ratio
			best = candidate
		}
	}

	if best == nil {
		return 0, false, nil
	}
	s.logger.Debug().
		Int64("event_id", best.EventID).
		Float64("ratio", bestRatio).
		Str("title", draft.Title).
		Msg("fuzzy match")
	return best.EventID, true, nil
}

// moreRecent orders equal-similarity candidates: freshest update first, with
// the lower event id breaking an exact timestamp tie for determinism.
func moreRecent(a, b *db.Event) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.EventID < b.EventID
}

// locationCompatible reports whether the draft and an existing event could
// plausibly be at the same place. A side with no location information at
// all never blocks a match.
func (s *Service) locationCompatible(draft normalize.Draft, event *db.Event) bool {
	if draft.VenueID != nil && event.VenueID != nil {
		return *draft.VenueID == *event.VenueID
	}
	if draft.HasCoordinates() && event.Latitude != nil && event.Longitude != nil {
		dist := haversineMeters(*draft.Latitude, *draft.Longitude, *event.Latitude, *event.Longitude)
		return dist <= s.cfg.FuzzyRadiusMeters
	}
	if isLocationless(draft) || isEventLocationless(event) {
		return true
	}
	return signature.FuzzyTitle(draft.LocationName) == signature.FuzzyTitle(event.LocationName)
}

func isLocationless(draft normalize.Draft) bool {
	return draft.VenueID == nil && !draft.HasCoordinates() && draft.LocationName == ""
}

func isEventLocationless(event *db.Event) bool {
	return event.VenueID == nil && event.Latitude == nil && event.Longitude == nil && event.LocationName == ""
}

func (s *Service) mergeInto(ctx context.Context, eventID int64, draft normalize.Draft, sig signature.Signature, matched matchKind) (Outcome, error) {
	event, err := s.store.GetEventByID(ctx, eventID)
	if err != nil {
		return Outcome{}, fmt.Errorf("load event %d for merge: %w", eventID, err)
	}

	changed := merge(event, draft)
	if !changed {
		if matched != matchExact {
			// Nothing new content-wise, but the incoming exact key should
			// resolve directly from now on.
			if err := s.store.RecordSignature(ctx, sig.ExactKey, eventID, draft.Source); err != nil {
				return Outcome{}, err
			}
		}
		return Outcome{
			Decision:     DecisionDiscarded,
			EventID:      event.EventID,
			EventUUID:    event.EventUUID,
			MatchedFuzzy: matched == matchFuzzy,
		}, nil
	}

	params := db.UpdateEventParams{
		Event:        event,
		Source:       draft.Source,
		RawPayload:   draft.RawPayload,
		SnapshotKeep: s.cfg.SnapshotKeep,
	}
	if matched != matchExact {
		params.SignatureHash = sig.ExactKey
	}
	if err := s.store.UpdateEvent(ctx, params); err != nil {
		return Outcome{}, fmt.Errorf("merge into event %d: %w", eventID, err)
	}

	return Outcome{
		Decision:     DecisionUpdated,
		EventID:      event.EventID,
		EventUUID:    event.EventUUID,
		MatchedFuzzy: matched == matchFuzzy,
	}, nil
}

func (s *Service) createEvent(ctx context.Context, draft normalize.Draft, sig signature.Signature) (Outcome, error) {
	event := newEventFromDraft(draft)

	eventID, err := s.store.InsertEvent(ctx, db.InsertEventParams{
		Event:         event,
		SignatureHash: sig.ExactKey,
		RawPayload:    draft.RawPayload,
	})
	if err != nil {
		if errors.Is(err, db.ErrDuplicateSignature) {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("insert event %q: %w", draft.Title, err)
	}

	return Outcome{
		Decision:  DecisionCreated,
		EventID:   eventID,
		EventUUID: event.EventUUID,
	}, nil
}

// newEventFromDraft builds the initial canonical row for a first-seen draft.
func newEventFromDraft(draft normalize.Draft) *db.Event {
	now := globaltime.Now().UTC()
	event := &db.Event{
		EventUUID:     uuid.NewString(),
		Source:        draft.Source,
		SourceEventID: draft.SourceEventID,
		SourceURL:     draft.SourceURL,
		Title:         draft.Title,
		Description:   draft.Description,
		EventType:     string(draft.Type),
		Language:      draft.Language,
		StartsAt:      draft.StartsAt.UTC(),
		EndsAt:        draft.EndsAt,
		Recurrence:    draft.Recurrence,
		VenueID:       draft.VenueID,
		LocationName:  draft.LocationName,
		Address:       draft.Address,
		Latitude:      draft.Latitude,
		Longitude:     draft.Longitude,
		PriceMin:      draft.PriceMin,
		PriceMax:      draft.PriceMax,
		Currency:      draft.Currency,
		TicketURL:     draft.TicketURL,
		Confidence:    draft.Confidence,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	event.SetTagList(draft.Tags)
	return event
}
