package main

import (
	"os"

	"github.com/psantana5/timinghooks/cmd/timinghooks/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
