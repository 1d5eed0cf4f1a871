// Command rentald serves the rental marketplace core over HTTP.
//
// Configuration comes from RENTALCORE_* environment variables, optionally
// loaded from a .env file first. See `rentald --help`.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
