package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/citypulse/internal/cli"
	"horse.fit/citypulse/internal/search"
)

func runSearch(args []string) int {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	query := fs.String("query", "", "Search query (required)")
	from := fs.String("from", "", "Only events starting at or after this RFC 3339 time")
	to := fs.String("to", "", "Only events starting at or before this RFC 3339 time")
	eventType := fs.String("type", "", "Restrict to one event type")
	tag := fs.String("tag", "", "Restrict to events carrying this tag")
	lat := fs.Float64("lat", 0, "Latitude of the search center")
	lon := fs.Float64("lon", 0, "Longitude of the search center")
	radius := fs.Float64("radius", 2000, "Search radius in meters, used with --lat/--lon")
	maxPrice := fs.Float64("max-price", 0, "Only events at or below this price")
	free := fs.Bool("free", false, "Only free events")
	limit := fs.Int("limit", 20, "Maximum results")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *query == "" {
		fmt.Fprintln(os.Stderr, "--query is required")
		return 2
	}

	filters := search.Filters{
		EventType: *eventType,
		Tag:       *tag,
		FreeOnly:  *free,
		Limit:     *limit,
	}
	if *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --from: %v\n", err)
			return 2
		}
		filters.From = &t
	}
	if *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --to: %v\n", err)
			return 2
		}
		filters.To = &t
	}
	if flagProvided(fs, "lat") != flagProvided(fs, "lon") {
		fmt.Fprintln(os.Stderr, "--lat and --lon must be provided together")
		return 2
	}
	if flagProvided(fs, "lat") {
		filters.Latitude = lat
		filters.Longitude = lon
		filters.RadiusMeters = radius
	}
	if flagProvided(fs, "max-price") {
		filters.MaxPrice = maxPrice
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := initRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		return 1
	}
	defer rt.close()

	result, err := rt.newSearchEngine().Search(ctx, *query, filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		return 1
	}

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render results: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))
	return 0
}

func flagProvided(fs *flag.FlagSet, name string) bool {
	provided := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			provided = true
		}
	})
	return provided
}
