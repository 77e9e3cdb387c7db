package main

import (
	"fmt"
	"os"

	"github.com/zhubert/arbor/cmd"
	"github.com/zhubert/arbor/internal/logger"
)

// Version information set via ldflags at build time
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)
	err := cmd.Execute()
	logger.Close()
	if err != nil {
		if !cmd.IsSilent(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
