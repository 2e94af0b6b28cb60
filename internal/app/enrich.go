package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/citypulse/internal/cli"
)

func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	limit := fs.Int("limit", 200, "Maximum events per pass")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := initRuntime(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
		return 1
	}
	defer rt.close()

	result, err := rt.newEnricher().EnrichPending(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Enrich failed: %v\n", err)
		return 1
	}

	fmt.Printf("geocoded=%d tagged=%d embedded=%d failed=%d\n",
		result.Geocoded, result.Tagged, result.Embedded, result.Failed)
	return 0
}
