// Package main is the entry point for the innclaw CLI.
package main

import (
	"os"

	"github.com/InnClaw/InnClaw/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
