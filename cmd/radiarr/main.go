// Package main is the entry point for the radiarr application.
package main

import (
	"os"

	"github.com/jmylchreest/radiarr/cmd/radiarr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
