package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

func runPrune() {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config")
	keep := fs.Duration("keep", 7*24*time.Hour, "Keep refresh attempts newer than this")
	fs.Parse(os.Args[1:])

	st := openDB(loadConfig(*configPath))
	defer st.Close()

	n, err := st.Prune(time.Now().Add(-*keep))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d refresh attempts older than %s\n", n, *keep)
}
