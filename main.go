package main

import (
	"os"

	"github.com/highfocus/sourcing-tool/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
