package dedup

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/db"
	"horse.fit/citypulse/internal/normalize"
)

type fakeStore struct {
	mu         sync.Mutex
	nextID     int64
	events     map[int64]db.Event
	signatures map[string]int64
	snapshots  map[int64]int

	// raceOnce makes the next InsertEvent behave as if a concurrent writer
	// committed the same signature first.
	raceOnce bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:     make(map[int64]db.Event),
		signatures: make(map[string]int64),
		snapshots:  make(map[int64]int),
	}
}

func (f *fakeStore) FindEventIDBySignature(_ context.Context, hash []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.signatures[hex.EncodeToString(hash)]
	if !ok {
		return 0, db.ErrNoRows
	}
	return id, nil
}

func (f *fakeStore) FindEventIDBySourceID(_ context.Context, source, sourceEventID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, e := range f.events {
		if e.DeletedAt != nil || e.Source != source {
			continue
		}
		if e.SourceEventID != nil && *e.SourceEventID == sourceEventID {
			return id, nil
		}
	}
	return 0, db.ErrNoRows
}

func (f *fakeStore) ListDedupCandidates(_ context.Context, from, to time.Time) ([]db.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []db.Event
	for _, e := range f.events {
		if e.DeletedAt != nil {
			continue
		}
		if e.StartsAt.Before(from) || e.StartsAt.After(to) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) GetEventByID(_ context.Context, eventID int64) (*db.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.events[eventID]
	if !ok {
		return nil, db.ErrNoRows
	}
	copied := e
	return &copied, nil
}

func (f *fakeStore) InsertEvent(_ context.Context, params db.InsertEventParams) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := hex.EncodeToString(params.SignatureHash)
	if _, exists := f.signatures[key]; exists {
		return 0, db.ErrDuplicateSignature
	}

	// The partial unique index on (source, source_event_id) also surfaces as
	// a duplicate-signature insert failure.
	if params.Event.SourceEventID != nil {
		for _, e := range f.events {
			if e.DeletedAt == nil && e.Source == params.Event.Source &&
				e.SourceEventID != nil && *e.SourceEventID == *params.Event.SourceEventID {
				return 0, db.ErrDuplicateSignature
			}
		}
	}

	if f.raceOnce {
		f.raceOnce = false
		f.nextID++
		competitor := *params.Event
		competitor.EventID = f.nextID
		f.events[f.nextID] = competitor
		f.signatures[key] = f.nextID
		return 0, db.ErrDuplicateSignature
	}

	f.nextID++
	event := *params.Event
	event.EventID = f.nextID
	f.events[f.nextID] = event
	f.signatures[key] = f.nextID
	if len(params.RawPayload) > 0 {
		f.snapshots[f.nextID]++
	}
	return f.nextID, nil
}

func (f *fakeStore) UpdateEvent(_ context.Context, params db.UpdateEventParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.events[params.Event.EventID]; !ok {
		return db.ErrNoRows
	}
	f.events[params.Event.EventID] = *params.Event
	if len(params.SignatureHash) > 0 {
		key := hex.EncodeToString(params.SignatureHash)
		if _, exists := f.signatures[key]; !exists {
			f.signatures[key] = params.Event.EventID
		}
	}
	if len(params.RawPayload) > 0 {
		f.snapshots[params.Event.EventID]++
	}
	return nil
}

func (f *fakeStore) RecordSignature(_ context.Context, hash []byte, eventID int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hex.EncodeToString(hash)
	if _, exists := f.signatures[key]; !exists {
		f.signatures[key] = eventID
	}
	return nil
}

func (f *fakeStore) signatureCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signatures)
}

func (f *fakeStore) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func newTestService(store Store) *Service {
	return NewService(store, DefaultConfig(), zerolog.Nop())
}

func baseDraft() normalize.Draft {
	start := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	return normalize.Draft{
		Source:       "iamsterdam",
		Title:        "Jazz at Bird",
		Description:  "Evening jazz session",
		Type:         normalize.TypeConcert,
		Tags:         []string{"jazz", "live"},
		Language:     "en",
		StartsAt:     start,
		LocationName: "Bird",
		Confidence:   0.7,
		RawPayload:   json.RawMessage(`{"title":"Jazz at Bird"}`),
	}
}

func TestResolveCreatesNewEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)

	outcome, err := svc.Resolve(context.Background(), baseDraft())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if outcome.Decision != DecisionCreated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionCreated)
	}
	if outcome.EventID == 0 || outcome.EventUUID == "" {
		t.Fatalf("expected identity on created event, got %+v", outcome)
	}
	if got := store.signatureCount(); got != 1 {
		t.Fatalf("signature count = %d, want 1", got)
	}
}

func TestResolveSameDraftTwiceDiscardsSecond(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, baseDraft())
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}
	second, err := svc.Resolve(ctx, baseDraft())
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if second.Decision != DecisionDiscarded {
		t.Fatalf("second decision = %s, want %s", second.Decision, DecisionDiscarded)
	}
	if second.EventID != first.EventID {
		t.Fatalf("second resolved to event %d, want %d", second.EventID, first.EventID)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("event count = %d, want 1", got)
	}
	if got := store.signatureCount(); got != 1 {
		t.Fatalf("signature count = %d, want 1", got)
	}
}

func TestResolveFuzzyTitleVariantMergesIntoOneEvent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, baseDraft())
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	variant := baseDraft()
	variant.Source = "filmladder"
	variant.Title = "Jazz @ Bird"
	variant.Confidence = 0.6

	second, err := svc.Resolve(ctx, variant)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	if second.EventID != first.EventID {
		t.Fatalf("variant resolved to event %d, want %d", second.EventID, first.EventID)
	}
	if !second.MatchedFuzzy {
		t.Fatal("expected fuzzy match")
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("event count = %d, want 1", got)
	}
	// Both exact keys must now resolve directly.
	if got := store.signatureCount(); got != 2 {
		t.Fatalf("signature count = %d, want 2", got)
	}
	event, err := store.GetEventByID(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if event.Title != "Jazz at Bird" {
		t.Fatalf("lower-confidence variant overwrote title: %q", event.Title)
	}
}

func TestResolveHigherConfidenceOverwrites(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, baseDraft())
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	update := baseDraft()
	update.Description = "Evening jazz session with guest saxophonist"
	update.Confidence = 0.9

	outcome, err := svc.Resolve(ctx, update)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionUpdated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionUpdated)
	}

	event, err := store.GetEventByID(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if event.Description != update.Description {
		t.Fatalf("description = %q, want %q", event.Description, update.Description)
	}
	if event.Confidence != 0.9 {
		t.Fatalf("confidence = %v, want 0.9", event.Confidence)
	}
}

func TestResolveLowerConfidenceOnlyFillsGaps(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	seed := baseDraft()
	seed.Description = ""
	first, err := svc.Resolve(ctx, seed)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	update := baseDraft()
	update.Title = "Jazz at Bird"
	update.Description = "Filled from a weaker source"
	update.Address = "Korte Koningsstraat 44"
	update.Confidence = 0.4

	outcome, err := svc.Resolve(ctx, update)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionUpdated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionUpdated)
	}

	event, err := store.GetEventByID(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if event.Description != "Filled from a weaker source" {
		t.Fatalf("empty description should be filled, got %q", event.Description)
	}
	if event.Address != "Korte Koningsstraat 44" {
		t.Fatalf("empty address should be filled, got %q", event.Address)
	}
	if event.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want unchanged 0.7", event.Confidence)
	}
}

func TestResolveEqualConfidenceLatestWins(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, baseDraft())
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	update := baseDraft()
	update.Description = "Rewritten blurb from the same source"

	if _, err := svc.Resolve(ctx, update); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	event, err := store.GetEventByID(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if event.Description != update.Description {
		t.Fatalf("description = %q, want latest write %q", event.Description, update.Description)
	}
}

func TestResolveFuzzyRespectsLocationRadius(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	seed := baseDraft()
	lat, lon := 52.3702, 4.8952
	seed.Latitude, seed.Longitude = &lat, &lon
	if _, err := svc.Resolve(ctx, seed); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// Same title and start, but roughly 5 km away. Must be a new event.
	farAway := baseDraft()
	farLat, farLon := 52.41, 4.93
	farAway.Title = "Jazz @ Bird"
	farAway.Latitude, farAway.Longitude = &farLat, &farLon

	outcome, err := svc.Resolve(ctx, farAway)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionCreated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionCreated)
	}
	if got := store.eventCount(); got != 2 {
		t.Fatalf("event count = %d, want 2", got)
	}
}

func TestResolveSourceIDMatchFollowsReschedule(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	nativeID := "cm-552"
	seed := baseDraft()
	seed.SourceEventID = &nativeID
	first, err := svc.Resolve(ctx, seed)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	// The source re-sends its own id with the show moved well outside the
	// fuzzy window. It must land on the same event as an update, not error
	// out against the source-id unique index.
	moved := baseDraft()
	moved.SourceEventID = &nativeID
	moved.StartsAt = seed.StartsAt.Add(6 * time.Hour)

	outcome, err := svc.Resolve(ctx, moved)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionUpdated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionUpdated)
	}
	if outcome.EventID != first.EventID {
		t.Fatalf("rescheduled draft resolved to event %d, want %d", outcome.EventID, first.EventID)
	}
	if outcome.MatchedFuzzy {
		t.Fatal("source id match must not report fuzzy")
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("event count = %d, want 1", got)
	}

	event, err := store.GetEventByID(ctx, first.EventID)
	if err != nil {
		t.Fatalf("GetEventByID: %v", err)
	}
	if !event.StartsAt.Equal(moved.StartsAt) {
		t.Fatalf("starts_at = %s, want rescheduled %s", event.StartsAt, moved.StartsAt)
	}
	// The new start's exact key resolves directly from now on.
	if got := store.signatureCount(); got != 2 {
		t.Fatalf("signature count = %d, want 2", got)
	}
}

// Fifty-rune titles with no stopwords, so the fuzzy form is the title itself.
// Seven single-letter substitutions give similarity 0.86, eight give 0.84,
// bracketing the default 0.85 threshold.
const (
	boundaryTitle      = "midnight blues marathon grand finale horns improvs"
	boundaryNearTitle  = "midnighz bluez marathoz granz finalz hornz improvz"
	boundaryBelowTitle = "midnighz bluez marathoz grenz finalz hornz improvz"
)

func TestResolveFuzzyJustAboveThresholdMerges(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	seed := baseDraft()
	seed.Title = boundaryTitle
	first, err := svc.Resolve(ctx, seed)
	if err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	near := baseDraft()
	near.Title = boundaryNearTitle
	near.Description = "Extended late night set"
	near.Confidence = 0.9

	outcome, err := svc.Resolve(ctx, near)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionUpdated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionUpdated)
	}
	if outcome.EventID != first.EventID {
		t.Fatalf("near variant resolved to event %d, want %d", outcome.EventID, first.EventID)
	}
	if !outcome.MatchedFuzzy {
		t.Fatal("expected fuzzy match")
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("event count = %d, want 1", got)
	}
}

func TestResolveFuzzyJustBelowThresholdCreates(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	seed := baseDraft()
	seed.Title = boundaryTitle
	if _, err := svc.Resolve(ctx, seed); err != nil {
		t.Fatalf("first Resolve: %v", err)
	}

	below := baseDraft()
	below.Title = boundaryBelowTitle

	outcome, err := svc.Resolve(ctx, below)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if outcome.Decision != DecisionCreated {
		t.Fatalf("decision = %s, want %s", outcome.Decision, DecisionCreated)
	}
	if got := store.eventCount(); got != 2 {
		t.Fatalf("event count = %d, want 2", got)
	}
}

func TestResolveFuzzyTieGoesToMostRecentlyUpdated(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	start := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	store.events[1] = db.Event{
		EventID:    1,
		EventUUID:  "uuid-1",
		Source:     "iamsterdam",
		Title:      "Jazz at Bird",
		StartsAt:   start,
		Confidence: 0.5,
		UpdatedAt:  start.Add(-48 * time.Hour),
	}
	store.events[2] = db.Event{
		EventID:    2,
		EventUUID:  "uuid-2",
		Source:     "filmladder",
		Title:      "Jazz at Bird",
		StartsAt:   start,
		Confidence: 0.5,
		UpdatedAt:  start.Add(-1 * time.Hour),
	}
	store.nextID = 2

	svc := newTestService(store)
	draft := baseDraft()
	draft.Title = "Jazz @ Bird"
	draft.LocationName = ""

	outcome, err := svc.Resolve(context.Background(), draft)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !outcome.MatchedFuzzy {
		t.Fatal("expected fuzzy match")
	}
	if outcome.EventID != 2 {
		t.Fatalf("tie resolved to event %d, want the fresher event 2", outcome.EventID)
	}
}

func TestResolveRetriesAfterSignatureRace(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.raceOnce = true
	svc := newTestService(store)

	outcome, err := svc.Resolve(context.Background(), baseDraft())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// The retry must land on the event the concurrent writer committed.
	if outcome.Decision != DecisionDiscarded && outcome.Decision != DecisionUpdated {
		t.Fatalf("decision = %s, want discarded or updated", outcome.Decision)
	}
	if got := store.eventCount(); got != 1 {
		t.Fatalf("event count = %d, want 1", got)
	}
}

func TestLevenshteinRatio(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{name: "identical", a: "jazz bird", b: "jazz bird", want: 1},
		{name: "both empty", a: "", b: "", want: 1},
		{name: "one empty", a: "jazz", b: "", want: 0},
		{name: "single edit", a: "jazz bird", b: "jazz birds", want: 0.9},
		{name: "disjoint", a: "abcd", b: "wxyz", want: 0},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := levenshteinRatio(tc.a, tc.b)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("levenshteinRatio(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestHaversineMeters(t *testing.T) {
	t.Parallel()

	// Dam Square to Amsterdam Centraal, roughly 750 m.
	got := haversineMeters(52.3731, 4.8926, 52.3791, 4.9003)
	if got < 600 || got > 950 {
		t.Fatalf("haversineMeters = %v, want roughly 750", got)
	}

	if d := haversineMeters(52.37, 4.89, 52.37, 4.89); d != 0 {
		t.Fatalf("distance to self = %v, want 0", d)
	}
}
