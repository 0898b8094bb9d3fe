package main

import (
	"os"

	"github.com/tillberg/autorestart"

	"github.com/soyeahso/wayfarer/internal/cli"
)

func main() {
	// Development convenience: re-exec when the binary is rebuilt.
	if os.Getenv("WAYFARER_AUTORESTART") == "1" {
		go autorestart.RestartOnChange()
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
