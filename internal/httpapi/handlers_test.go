package httpapi

import (
	"testing"
	"time"
)

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	if v, err := parsePositiveInt("", 20, 1, 100); err != nil || v != 20 {
		t.Errorf("empty = %d, %v; want default 20", v, err)
	}
	if v, err := parsePositiveInt(" 42 ", 20, 1, 100); err != nil || v != 42 {
		t.Errorf("'42' = %d, %v", v, err)
	}
	if _, err := parsePositiveInt("0", 20, 1, 100); err == nil {
		t.Error("expected error below minimum")
	}
	if _, err := parsePositiveInt("101", 20, 1, 100); err == nil {
		t.Error("expected error above maximum")
	}
	if _, err := parsePositiveInt("abc", 20, 1, 100); err == nil {
		t.Error("expected error for non-integer")
	}
}

func TestParseOptionalFloat(t *testing.T) {
	t.Parallel()

	if v, err := parseOptionalFloat("", -90, 90); err != nil || v != nil {
		t.Errorf("empty = %v, %v; want nil", v, err)
	}
	if v, err := parseOptionalFloat("52.37", -90, 90); err != nil || v == nil || *v != 52.37 {
		t.Errorf("'52.37' = %v, %v", v, err)
	}
	if _, err := parseOptionalFloat("95", -90, 90); err == nil {
		t.Error("expected error out of range")
	}
	if _, err := parseOptionalFloat("north", -90, 90); err == nil {
		t.Error("expected error for non-number")
	}
}

func TestParseTimeFilter(t *testing.T) {
	t.Parallel()

	if v, err := parseTimeFilter("", false); err != nil || v != nil {
		t.Errorf("empty = %v, %v; want nil", v, err)
	}

	got, err := parseTimeFilter("2026-09-12T19:30:00+02:00", false)
	if err != nil || got == nil {
		t.Fatalf("rfc3339 = %v, %v", got, err)
	}
	if want := time.Date(2026, 9, 12, 17, 30, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("rfc3339 = %s, want %s", got, want)
	}

	dayStart, err := parseTimeFilter("2026-09-12", false)
	if err != nil || dayStart == nil || !dayStart.Equal(time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day start = %v, %v", dayStart, err)
	}
	dayEnd, err := parseTimeFilter("2026-09-12", true)
	if err != nil || dayEnd == nil || !dayEnd.After(*dayStart) || dayEnd.Day() != 12 {
		t.Errorf("day end = %v, %v", dayEnd, err)
	}

	if _, err := parseTimeFilter("yesterday", false); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestParseBool(t *testing.T) {
	t.Parallel()

	for _, truthy := range []string{"1", "true", "TRUE", " yes "} {
		if !parseBool(truthy) {
			t.Errorf("parseBool(%q) = false", truthy)
		}
	}
	for _, falsy := range []string{"", "0", "false", "no", "maybe"} {
		if parseBool(falsy) {
			t.Errorf("parseBool(%q) = true", falsy)
		}
	}
}
