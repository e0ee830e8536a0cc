// Command signagectl is the maintenance CLI for the signage display.
//
// Usage:
//
//	signagectl                  Show help
//	signagectl check FILE|URL   Validate a playlist document
//	signagectl status           Refresh history and resource health
//	signagectl events           JSONL event log viewer
//	signagectl prune            Drop old refresh history
package main

import (
	"fmt"
	"os"
)

const usage = `signagectl - signage maintenance CLI

Usage:
  signagectl <command> [flags]

Commands:
  check       Validate a playlist document (file path or URL)
  status      Resource health, recent refreshes and builds
  events      JSONL event log viewer
  prune       Delete refresh history older than a cutoff

Environment:
  CONFIG_PATH        Config file (default: ./signage.yaml)
  SIGNAGE_DATA_DIR   Data directory (default: ~/.signage)

Run 'signagectl <command> -h' for command-specific help.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(0)
	}

	cmd := os.Args[1]
	// Strip the program name + subcommand so flag sets see only their flags
	os.Args = os.Args[1:]

	switch cmd {
	case "check":
		runCheck()
	case "status":
		runStatus()
	case "events":
		runEvents()
	case "prune":
		runPrune()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "signagectl: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
