package main

import (
	"fmt"
	"os"

	"cbvault/cmd/cbv/commands"
	"cbvault/pkg/contentstore"
)

func main() {
	err := commands.Execute()
	if err == nil {
		return
	}
	if kind := contentstore.Classify(err); kind != "" {
		fmt.Fprintf(os.Stderr, "❌ %s: %v\n", kind, err)
	} else {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	}
	os.Exit(1)
}
