package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/citypulse/internal/db"
)

type fakeSearchStore struct {
	lexical    []db.LexicalHit
	vector     []db.VectorHit
	events     map[int64]db.Event
	cities     map[int64]string
	lexicalErr error
	vectorErr  error
}

func (f *fakeSearchStore) SearchLexical(_ context.Context, _ string, filters db.SearchFilters, _ int) ([]db.LexicalHit, error) {
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	out := make([]db.LexicalHit, 0, len(f.lexical))
	for _, hit := range f.lexical {
		if f.matchesCity(hit.EventID, filters.City) {
			out = append(out, hit)
		}
	}
	return out, nil
}

func (f *fakeSearchStore) SearchVector(_ context.Context, _ []float32, _ string, filters db.SearchFilters, _ int) ([]db.VectorHit, error) {
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	out := make([]db.VectorHit, 0, len(f.vector))
	for _, hit := range f.vector {
		if f.matchesCity(hit.EventID, filters.City) {
			out = append(out, hit)
		}
	}
	return out, nil
}

func (f *fakeSearchStore) matchesCity(eventID int64, city string) bool {
	if city == "" {
		return true
	}
	return strings.EqualFold(f.cities[eventID], city)
}

func (f *fakeSearchStore) GetEventsByIDs(_ context.Context, ids []int64) ([]db.Event, error) {
	out := make([]db.Event, 0, len(ids))
	for _, id := range ids {
		if event, ok := f.events[id]; ok {
			out = append(out, event)
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	err error
}

func (f fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func eventsByID(ids ...int64) map[int64]db.Event {
	out := make(map[int64]db.Event, len(ids))
	for _, id := range ids {
		out[id] = db.Event{EventID: id, EventUUID: fmt.Sprintf("uuid-%d", id), Title: fmt.Sprintf("event %d", id)}
	}
	return out
}

func newTestEngine(store Store, embedder Embedder) *Engine {
	return NewEngine(store, embedder, DefaultConfig(), zerolog.Nop())
}

func TestSearchMergesBothSignals(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexical: []db.LexicalHit{
			{EventID: 1, Rank: 0.9},
			{EventID: 2, Rank: 0.1},
		},
		vector: []db.VectorHit{
			{EventID: 2, Similarity: 0.95},
			{EventID: 3, Similarity: 0.6},
		},
		events: eventsByID(1, 2, 3),
	}
	engine := newTestEngine(store, fakeEmbedder{})

	result, err := engine.Search(context.Background(), "jazz", Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(result.Events) != 3 {
		t.Fatalf("got %d events, want 3", len(result.Events))
	}

	// Event 1: lexical only, normalized rank 1.0 -> 0.5 combined.
	// Event 2: both signals, 0.0 lexical + 0.95 vector -> 0.475.
	// Event 3: vector only, 0.6 -> 0.3.
	wantOrder := []int64{1, 2, 3}
	for i, want := range wantOrder {
		if got := result.Events[i].Event.EventID; got != want {
			t.Fatalf("position %d: event %d, want %d", i, got, want)
		}
	}
	if result.Events[0].Score <= result.Events[1].Score {
		t.Fatal("scores are not descending")
	}
}

func TestSearchDegradesWhenVectorFails(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexical:   []db.LexicalHit{{EventID: 1, Rank: 0.5}},
		vectorErr: fmt.Errorf("vector index offline"),
		events:    eventsByID(1),
	}
	engine := newTestEngine(store, fakeEmbedder{})

	result, err := engine.Search(context.Background(), "jazz", Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result")
	}
	if len(result.Events) != 1 || result.Events[0].Event.EventID != 1 {
		t.Fatalf("unexpected events: %+v", result.Events)
	}
}

func TestSearchDegradesWithoutEmbedder(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexical: []db.LexicalHit{{EventID: 1, Rank: 0.5}},
		events:  eventsByID(1),
	}
	engine := newTestEngine(store, nil)

	result, err := engine.Search(context.Background(), "jazz", Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !result.Degraded {
		t.Fatal("expected degraded result without embedder")
	}
}

func TestSearchFailsWhenBothSidesFail(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexicalErr: fmt.Errorf("store down"),
		vectorErr:  fmt.Errorf("store down"),
	}
	engine := newTestEngine(store, fakeEmbedder{})

	if _, err := engine.Search(context.Background(), "jazz", Filters{}); err == nil {
		t.Fatal("expected error when both sub-searches fail")
	}
}

func TestSearchTieBreaksByEventID(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		vector: []db.VectorHit{
			{EventID: 9, Similarity: 0.8},
			{EventID: 3, Similarity: 0.8},
		},
		events: eventsByID(3, 9),
	}
	engine := newTestEngine(store, fakeEmbedder{})

	result, err := engine.Search(context.Background(), "jazz", Filters{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(result.Events))
	}
	if result.Events[0].Event.EventID != 3 || result.Events[1].Event.EventID != 9 {
		t.Fatalf("tie not broken by event id: %d, %d",
			result.Events[0].Event.EventID, result.Events[1].Event.EventID)
	}
}

func TestSearchPriceFilter(t *testing.T) {
	t.Parallel()

	free := 0.0
	cheap := 12.5
	pricey := 80.0

	events := map[int64]db.Event{
		1: {EventID: 1, EventUUID: "uuid-1", PriceMin: &free},
		2: {EventID: 2, EventUUID: "uuid-2", PriceMin: &cheap},
		3: {EventID: 3, EventUUID: "uuid-3", PriceMin: &pricey},
		4: {EventID: 4, EventUUID: "uuid-4"}, // unknown price
	}
	store := &fakeSearchStore{
		lexical: []db.LexicalHit{
			{EventID: 1, Rank: 0.9},
			{EventID: 2, Rank: 0.8},
			{EventID: 3, Rank: 0.7},
			{EventID: 4, Rank: 0.6},
		},
		events: events,
	}
	engine := newTestEngine(store, fakeEmbedder{})
	ctx := context.Background()

	maxPrice := 20.0
	result, err := engine.Search(ctx, "jazz", Filters{MaxPrice: &maxPrice})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	gotIDs := resultIDs(result)
	// Unknown price passes a max-price filter; only the pricey event drops.
	if !equalIDs(gotIDs, []int64{1, 2, 4}) {
		t.Fatalf("max price filter: got %v", gotIDs)
	}

	result, err = engine.Search(ctx, "jazz", Filters{FreeOnly: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	gotIDs = resultIDs(result)
	if !equalIDs(gotIDs, []int64{1}) {
		t.Fatalf("free only filter: got %v", gotIDs)
	}
}

func TestSearchCityFilterReachesBothSubSearches(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexical: []db.LexicalHit{
			{EventID: 1, Rank: 0.9},
			{EventID: 2, Rank: 0.8},
		},
		vector: []db.VectorHit{
			{EventID: 1, Similarity: 0.7},
			{EventID: 2, Similarity: 0.6},
		},
		cities: map[int64]string{1: "Amsterdam", 2: "Rotterdam"},
		events: eventsByID(1, 2),
	}
	engine := newTestEngine(store, fakeEmbedder{})
	ctx := context.Background()

	result, err := engine.Search(ctx, "jazz", Filters{City: "Amsterdam"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !equalIDs(resultIDs(result), []int64{1}) {
		t.Fatalf("city filter: got %v, want [1]", resultIDs(result))
	}

	// A city with no matching events yields an empty result, not an error.
	result, err = engine.Search(ctx, "jazz", Filters{City: "Utrecht"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Degraded {
		t.Fatal("unexpected degraded result")
	}
	if len(result.Events) != 0 {
		t.Fatalf("got %d events, want 0", len(result.Events))
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(&fakeSearchStore{}, nil)
	if _, err := engine.Search(context.Background(), "  ", Filters{}); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func TestSearchAppliesLimit(t *testing.T) {
	t.Parallel()

	store := &fakeSearchStore{
		lexical: []db.LexicalHit{
			{EventID: 1, Rank: 0.9},
			{EventID: 2, Rank: 0.8},
			{EventID: 3, Rank: 0.7},
		},
		events: eventsByID(1, 2, 3),
	}
	engine := newTestEngine(store, nil)

	result, err := engine.Search(context.Background(), "jazz", Filters{Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(result.Events) != 2 {
		t.Fatalf("got %d events, want 2", len(result.Events))
	}
}

func resultIDs(result Result) []int64 {
	out := make([]int64, 0, len(result.Events))
	for _, ranked := range result.Events {
		out = append(out, ranked.Event.EventID)
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
