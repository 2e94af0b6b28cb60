package validate

import (
	"strings"
	"testing"
	"time"

	"horse.fit/citypulse/internal/normalize"
)

func validDraft(now time.Time) normalize.Draft {
	return normalize.Draft{
		Title:    "Jazz at the Bird",
		StartsAt: now.Add(48 * time.Hour),
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ptr := func(v float64) *float64 { return &v }
	tptr := func(v time.Time) *time.Time { return &v }

	cases := []struct {
		name      string
		mutate    func(d *normalize.Draft)
		wantRules []string
	}{
		{
			name:      "accepts a clean draft",
			mutate:    func(d *normalize.Draft) {},
			wantRules: nil,
		},
		{
			name:      "rejects empty title",
			mutate:    func(d *normalize.Draft) { d.Title = "" },
			wantRules: []string{"required"},
		},
		{
			name:      "rejects oversized title",
			mutate:    func(d *normalize.Draft) { d.Title = strings.Repeat("x", 501) },
			wantRules: []string{"max_length"},
		},
		{
			name:      "rejects stale start",
			mutate:    func(d *normalize.Draft) { d.StartsAt = now.Add(-48 * time.Hour) },
			wantRules: []string{"stale"},
		},
		{
			name:      "accepts start just inside the stale horizon",
			mutate:    func(d *normalize.Draft) { d.StartsAt = now.Add(-23 * time.Hour) },
			wantRules: nil,
		},
		{
			name:      "rejects start beyond the future horizon",
			mutate:    func(d *normalize.Draft) { d.StartsAt = now.Add(800 * 24 * time.Hour) },
			wantRules: []string{"too_far_future"},
		},
		{
			name: "rejects end before start",
			mutate: func(d *normalize.Draft) {
				d.EndsAt = tptr(d.StartsAt.Add(-time.Hour))
			},
			wantRules: []string{"before_start"},
		},
		{
			name:      "rejects latitude without longitude",
			mutate:    func(d *normalize.Draft) { d.Latitude = ptr(52.37) },
			wantRules: []string{"jointly_present"},
		},
		{
			name: "rejects out of range coordinates",
			mutate: func(d *normalize.Draft) {
				d.Latitude = ptr(95)
				d.Longitude = ptr(-200)
			},
			wantRules: []string{"range", "range"},
		},
		{
			name: "rejects inverted price range",
			mutate: func(d *normalize.Draft) {
				d.PriceMin = ptr(25)
				d.PriceMax = ptr(10)
			},
			wantRules: []string{"min_gt_max"},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			draft := validDraft(now)
			tc.mutate(&draft)

			violations := Check(draft, now, DefaultConfig())
			if len(violations) != len(tc.wantRules) {
				t.Fatalf("got %d violations %v, want %d", len(violations), violations, len(tc.wantRules))
			}
			for i, rule := range tc.wantRules {
				if violations[i].Rule != rule {
					t.Errorf("violation %d rule = %q, want %q", i, violations[i].Rule, rule)
				}
			}
		})
	}
}

func TestCheckZeroConfigFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	draft := validDraft(now)

	if violations := Check(draft, now, Config{}); len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}
