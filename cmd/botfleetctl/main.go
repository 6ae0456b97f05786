package main

import (
	"os"

	"github.com/GoPolymarket/botfleet/cmd/botfleetctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
