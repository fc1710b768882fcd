package main

import (
	"os"

	"github.com/ameskov/botgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
