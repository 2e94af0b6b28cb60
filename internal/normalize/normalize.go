package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"

	"horse.fit/citypulse/internal/langdetect"
)

// RecordError reports a raw record that cannot become a canonical event. The
// record is dropped; the batch continues.
type RecordError struct {
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record field %s: %s", e.Field, e.Reason)
}

type Config struct {
	DefaultCurrency string
	DefaultTimezone string
}

// mapperFunc extracts source-flavoured fields from a raw record into a draft.
// Date strings, prices, and categories are finished by the shared pass.
type mapperFunc func(rec RawRecord, draft *Draft)

var mappers = map[SourceType]mapperFunc{
	SourceGeneric:    mapGeneric,
	SourceIamsterdam: mapIamsterdam,
	SourceFilmladder: mapFilmladder,
}

type Normalizer struct {
	cfg     Config
	sources map[string]Source
}

func New(cfg Config) *Normalizer {
	if strings.TrimSpace(cfg.DefaultCurrency) == "" {
		cfg.DefaultCurrency = "EUR"
	}
	if strings.TrimSpace(cfg.DefaultTimezone) == "" {
		cfg.DefaultTimezone = "UTC"
	}

	n := &Normalizer{
		cfg:     cfg,
		sources: make(map[string]Source),
	}
	for _, src := range builtinSources() {
		n.Register(src)
	}
	return n
}

// Register adds or replaces a source declaration. Unknown sources fall back
// to the generic mapping with the configured default timezone.
func (n *Normalizer) Register(src Source) {
	name := strings.TrimSpace(strings.ToLower(src.Name))
	if name == "" {
		return
	}
	src.Name = name
	if src.Type == "" {
		src.Type = SourceGeneric
	}
	if src.BaseConfidence <= 0 || src.BaseConfidence > 1 {
		src.BaseConfidence = 0.5
	}
	n.sources[name] = src
}

func (n *Normalizer) source(name string) Source {
	if src, ok := n.sources[strings.TrimSpace(strings.ToLower(name))]; ok {
		return src
	}
	return Source{
		Name:           strings.TrimSpace(strings.ToLower(name)),
		Type:           SourceGeneric,
		Timezone:       n.cfg.DefaultTimezone,
		BaseConfidence: 0.5,
	}
}

// Normalize converts one raw record into a typed draft. It fails only when
// the title is empty or the start time is unparsable; every other field is
// best-effort.
func (n *Normalizer) Normalize(sourceName string, rec RawRecord) (Draft, error) {
	src := n.source(sourceName)

	draft := Draft{
		Source:   src.Name,
		Currency: n.cfg.DefaultCurrency,
	}

	mapper := mappers[src.Type]
	if mapper == nil {
		mapper = mapGeneric
	}
	mapper(rec, &draft)

	draft.Title = collapseWhitespace(draft.Title)
	if draft.Title == "" {
		return Draft{}, &RecordError{Field: "title", Reason: "empty after trimming"}
	}
	draft.Description = collapseWhitespace(draft.Description)
	draft.LocationName = collapseWhitespace(draft.LocationName)
	draft.Address = collapseWhitespace(draft.Address)

	loc := n.location(src)

	startsAt, err := parseInstant(rec, []string{"start_time", "starts_at", "start", "date"}, loc)
	if err != nil {
		return Draft{}, err
	}
	draft.StartsAt = startsAt

	if endsAt, err := parseOptionalInstant(rec, []string{"end_time", "ends_at", "end"}, loc); err == nil && endsAt != nil {
		draft.EndsAt = endsAt
	}

	if raw, ok := rec["recurrence"]; ok && raw != nil {
		if encoded, err := json.Marshal(raw); err == nil {
			draft.Recurrence = encoded
		}
	}

	priceMin, priceMax, currency := parsePriceRange(rec)
	if priceMin != nil {
		draft.PriceMin = priceMin
	}
	if priceMax != nil {
		draft.PriceMax = priceMax
	}
	if currency != "" {
		draft.Currency = currency
	}
	if draft.PriceMin != nil && draft.PriceMax != nil && *draft.PriceMin > *draft.PriceMax {
		draft.PriceMin, draft.PriceMax = draft.PriceMax, draft.PriceMin
	}

	draft.Type = mapCategory(rec, src)
	draft.Tags = normalizeTags(draft.Tags)
	draft.Confidence = resolveConfidence(rec, src)
	draft.Language = langdetect.NormalizeHint(stringField(rec, "language", "lang"))
	if draft.Language == "" {
		draft.Language = langdetect.DetectISO6391(draft.Title + " " + draft.Description)
	}

	if payload, err := json.Marshal(rec); err == nil {
		draft.RawPayload = payload
	}

	return draft, nil
}

func (n *Normalizer) location(src Source) *time.Location {
	tz := strings.TrimSpace(src.Timezone)
	if tz == "" {
		tz = n.cfg.DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseInstant(rec RawRecord, keys []string, loc *time.Location) (time.Time, error) {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		ts, err := coerceInstant(raw, loc)
		if err != nil {
			return time.Time{}, &RecordError{Field: key, Reason: err.Error()}
		}
		return ts.UTC(), nil
	}
	return time.Time{}, &RecordError{Field: "start_time", Reason: "missing"}
}

func parseOptionalInstant(rec RawRecord, keys []string, loc *time.Location) (*time.Time, error) {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		ts, err := coerceInstant(raw, loc)
		if err != nil {
			return nil, err
		}
		utc := ts.UTC()
		return &utc, nil
	}
	return nil, nil
}

func coerceInstant(raw any, loc *time.Location) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return time.Time{}, fmt.Errorf("empty")
		}
		ts, err := dateparse.ParseIn(trimmed, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparsable %q", trimmed)
		}
		return ts, nil
	case float64:
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return time.Time{}, fmt.Errorf("invalid epoch %v", v)
		}
		return time.Unix(int64(v), 0), nil
	case int64:
		if v <= 0 {
			return time.Time{}, fmt.Errorf("invalid epoch %d", v)
		}
		return time.Unix(v, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", raw)
	}
}

func mapCategory(rec RawRecord, src Source) EventType {
	category := strings.TrimSpace(strings.ToLower(stringField(rec, "category", "event_type", "type", "genre")))
	if category == "" {
		return TypeOther
	}
	if mapped, ok := src.Categories[category]; ok {
		return mapped
	}
	switch category {
	case string(TypeConcert), string(TypeTheater), string(TypeMuseum):
		return EventType(category)
	}
	return TypeOther
}

func resolveConfidence(rec RawRecord, src Source) float64 {
	if raw, ok := rec["confidence"]; ok {
		if v, ok := raw.(float64); ok && v >= 0 && v <= 1 {
			return v
		}
	}
	return src.BaseConfidence
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		cleaned := collapseWhitespace(strings.ToLower(tag))
		if cleaned == "" {
			continue
		}
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collapseWhitespace trims and squeezes runs of whitespace to single spaces,
// dropping control characters. Case is preserved.
func collapseWhitespace(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(trimmed))
	lastSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}
	return strings.TrimSpace(b.String())
}

func stringField(rec RawRecord, keys ...string) string {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		if v, ok := raw.(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func optionalStringField(rec RawRecord, keys ...string) *string {
	v := strings.TrimSpace(stringField(rec, keys...))
	if v == "" {
		return nil
	}
	return &v
}

func floatField(rec RawRecord, keys ...string) *float64 {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case float64:
			return &v
		case int:
			f := float64(v)
			return &f
		case int64:
			f := float64(v)
			return &f
		}
	}
	return nil
}

func intField(rec RawRecord, keys ...string) *int64 {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case int64:
			return &v
		case int:
			i := int64(v)
			return &i
		case float64:
			if v == math.Trunc(v) {
				i := int64(v)
				return &i
			}
		}
	}
	return nil
}

func stringSliceField(rec RawRecord, keys ...string) []string {
	for _, key := range keys {
		raw, ok := rec[key]
		if !ok || raw == nil {
			continue
		}
		switch v := raw.(type) {
		case []string:
			return v
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			return out
		}
	}
	return nil
}
