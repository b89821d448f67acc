package main

import (
	"os"

	"github.com/psantana5/regionocr/cmd/regionocr/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
