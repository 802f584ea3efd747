package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"go.uber.org/automaxprocs/maxprocs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Set the max number of processes to the number of CPUs.
	if _, err := maxprocs.Set(maxprocs.Logger(log.Debugf)); err != nil {
		log.Warn("couldn't set automaxprocs", "error", err)
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return 1
	}
	return 0
}
