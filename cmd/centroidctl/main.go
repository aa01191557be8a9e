// Command centroidctl is the operator entrypoint for centroid: silo
// management subcommands plus `serve`, which wires the component packages
// into a running internal/service.Service and background index-update
// worker. Grounded on sqvect's and briefly's cobra root-command layout; no
// HTTP router lives here, per spec.md's Non-goals.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
