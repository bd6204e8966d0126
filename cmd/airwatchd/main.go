// Command airwatchd runs the airspace monitoring core: the ingest
// pipeline, its HTTP/websocket surface, and the background sweeps that
// keep the store, deduper, and bus healthy. CLI scaffolding follows the
// same spf13/cobra root-command shape used by the simulation tooling this
// service's configuration layering is grounded on.
package main

import (
	"fmt"
	"os"

	"github.com/dreadnought-systems/airwatch/cmd/airwatchd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
