// Command turfbench opens a scratch Turf database, runs a configurable
// read/write workload against it, and prints the write time and each
// reader's match count; with --metrics-addr it then serves the metrics
// surface over HTTP. It is a maintenance and benchmarking tool, structured the
// way cmd/qui/db_command.go structures its own subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "turfbench",
		Short: "Benchmark and inspect a Turf database",
	}
	root.AddCommand(runBenchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
