package main

import (
	"os"

	"github.com/rustyeddy/agentsim/cmd/agentsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
