package main

import (
	"os"

	"horse.fit/citypulse/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}
