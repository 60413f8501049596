package main

import (
	"os"

	anymindcmder "github.com/yashdodwani/anymind/cmd/anymind"
)

func main() {
	cmd := anymindcmder.NewAnymindCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
