package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/contractdev/cdd/internal/cli"
)

func main() {
	// A missing .env is fine; values feed the CDD_ settings overrides.
	_ = godotenv.Load()

	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
