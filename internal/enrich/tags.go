package enrich

import (
	"sort"
	"strings"
	"unicode"
)

// Keyword table for tag derivation. English and Dutch terms, since that is
// what the ingested sources publish in.
var tagKeywords = map[string][]string{
	"jazz":            {"jazz", "music"},
	"concert":         {"music", "live"},
	"band":            {"music", "live"},
	"dj":              {"music", "nightlife"},
	"opera":           {"opera", "music"},
	"film":            {"film"},
	"cinema":          {"film"},
	"bioscoop":        {"film"},
	"museum":          {"museum", "art"},
	"exhibition":      {"exhibition", "art"},
	"tentoonstelling": {"exhibition", "art"},
	"gallery":         {"art"},
	"theater":         {"theater"},
	"theatre":         {"theater"},
	"toneel":          {"theater"},
	"cabaret":         {"comedy"},
	"comedy":          {"comedy"},
	"festival":        {"festival"},
	"dance":           {"dance"},
	"dans":            {"dance"},
	"ballet":          {"dance"},
	"kids":            {"family"},
	"kinderen":        {"family"},
	"familie":         {"family"},
	"workshop":        {"workshop"},
	"lezing":          {"talk"},
	"lecture":         {"talk"},
	"gratis":          {"free"},
	"free":            {"free"},
	"markt":           {"market"},
	"market":          {"market"},
}

var eventTypeTags = map[string]string{
	"concert": "music",
	"theater": "theater",
	"museum":  "museum",
}

// DeriveTags scans title and description for known keywords and adds the
// category tag implied by the event type. The result is sorted and unique.
func DeriveTags(title, description, eventType string) []string {
	seen := make(map[string]struct{})
	add := func(tag string) {
		if tag == "" {
			return
		}
		seen[tag] = struct{}{}
	}

	if tag, ok := eventTypeTags[eventType]; ok {
		add(tag)
	}

	for _, token := range tokenizeWords(title + " " + description) {
		if tags, ok := tagKeywords[token]; ok {
			for _, tag := range tags {
				add(tag)
			}
		}
	}

	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func tokenizeWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
