package main

import (
	"os"

	"github.com/rhasspy/kaldi-align/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
