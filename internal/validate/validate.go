// Package validate applies structural sanity rules to normalized drafts.
// Violations drop the offending draft and are reported in the batch summary;
// they never abort the batch.
package validate

import (
	"fmt"
	"time"
	"unicode/utf8"

	"horse.fit/citypulse/internal/normalize"
)

type Violation struct {
	Field  string
	Rule   string
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Field, v.Rule, v.Detail)
}

type Config struct {
	// StaleHorizon rejects drafts whose start is further in the past,
	// dropping stale scraped leftovers.
	StaleHorizon time.Duration
	// FutureHorizon rejects drafts absurdly far in the future.
	FutureHorizon time.Duration
	MaxTitleRunes int
}

func DefaultConfig() Config {
	return Config{
		StaleHorizon:  24 * time.Hour,
		FutureHorizon: 730 * 24 * time.Hour,
		MaxTitleRunes: 500,
	}
}

// Check returns the list of rule violations for a draft; an empty list means
// the draft is accepted.
func Check(d normalize.Draft, now time.Time, cfg Config) []Violation {
	if cfg.StaleHorizon <= 0 {
		cfg.StaleHorizon = DefaultConfig().StaleHorizon
	}
	if cfg.FutureHorizon <= 0 {
		cfg.FutureHorizon = DefaultConfig().FutureHorizon
	}
	if cfg.MaxTitleRunes <= 0 {
		cfg.MaxTitleRunes = DefaultConfig().MaxTitleRunes
	}

	var violations []Violation

	titleLen := utf8.RuneCountInString(d.Title)
	if titleLen == 0 {
		violations = append(violations, Violation{Field: "title", Rule: "required", Detail: "empty"})
	} else if titleLen > cfg.MaxTitleRunes {
		violations = append(violations, Violation{
			Field:  "title",
			Rule:   "max_length",
			Detail: fmt.Sprintf("%d runes exceeds %d", titleLen, cfg.MaxTitleRunes),
		})
	}

	if d.StartsAt.Before(now.Add(-cfg.StaleHorizon)) {
		violations = append(violations, Violation{
			Field:  "starts_at",
			Rule:   "stale",
			Detail: fmt.Sprintf("start %s is before horizon", d.StartsAt.Format(time.RFC3339)),
		})
	}
	if d.StartsAt.After(now.Add(cfg.FutureHorizon)) {
		violations = append(violations, Violation{
			Field:  "starts_at",
			Rule:   "too_far_future",
			Detail: fmt.Sprintf("start %s is beyond horizon", d.StartsAt.Format(time.RFC3339)),
		})
	}
	if d.EndsAt != nil && d.EndsAt.Before(d.StartsAt) {
		violations = append(violations, Violation{
			Field:  "ends_at",
			Rule:   "before_start",
			Detail: fmt.Sprintf("end %s precedes start", d.EndsAt.Format(time.RFC3339)),
		})
	}

	if (d.Latitude == nil) != (d.Longitude == nil) {
		violations = append(violations, Violation{
			Field:  "coordinates",
			Rule:   "jointly_present",
			Detail: "latitude and longitude must both be set or both be absent",
		})
	}
	if d.Latitude != nil && (*d.Latitude < -90 || *d.Latitude > 90) {
		violations = append(violations, Violation{
			Field:  "latitude",
			Rule:   "range",
			Detail: fmt.Sprintf("%f outside [-90, 90]", *d.Latitude),
		})
	}
	if d.Longitude != nil && (*d.Longitude < -180 || *d.Longitude > 180) {
		violations = append(violations, Violation{
			Field:  "longitude",
			Rule:   "range",
			Detail: fmt.Sprintf("%f outside [-180, 180]", *d.Longitude),
		})
	}

	if d.PriceMin != nil && d.PriceMax != nil && *d.PriceMin > *d.PriceMax {
		violations = append(violations, Violation{
			Field:  "price",
			Rule:   "min_gt_max",
			Detail: fmt.Sprintf("min %f exceeds max %f", *d.PriceMin, *d.PriceMax),
		})
	}

	return violations
}
