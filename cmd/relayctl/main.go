package main

import (
	"os"

	"cipherline/cmd/relayctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
