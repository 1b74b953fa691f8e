// Package main is the entrypoint for the nsstatus command line tool.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/nsstatus/internal/cli"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
