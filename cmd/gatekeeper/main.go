package main

import (
	"fmt"
	"os"

	"github.com/f7las/gatekeeper/cmd/gatekeeper/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
