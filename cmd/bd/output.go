package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/tidwall/pretty"
)

// printJSON marshals v and writes it to stdout as indented, optionally
// colorized JSON (colorized only when stdout is a terminal).
func printJSON(v interface{}) {
	raw, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to marshal JSON: %v\n", err)
		os.Exit(1)
	}
	formatted := pretty.Pretty(raw)
	if isatty.IsTerminal(os.Stdout.Fd()) {
		formatted = pretty.Color(formatted, nil)
	}
	os.Stdout.Write(formatted)
}
