package main

import (
	"os"

	"aura-assist/engine/internal/app"
)

// main is kept as thin as possible: all wiring lives in the app package so
// it can be exercised from tests.
func main() {
	os.Exit(app.Run())
}
