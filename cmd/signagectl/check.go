package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/abelbrown/signage/internal/fetch"
	"github.com/abelbrown/signage/internal/playlist"
	"github.com/abelbrown/signage/internal/validate"
)

func runCheck() {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	quiet := fs.Bool("q", false, "Only print errors")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: signagectl check [-q] FILE|URL")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	src := fs.Arg(0)
	var (
		data []byte
		err  error
	)
	if isURL(src) {
		data, err = fetch.NewFetcher(fetch.DefaultTimeout).Get(context.Background(), src)
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	res, err := checkDocument(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	res.print(os.Stdout, *quiet)
	if len(res.Errors) > 0 || res.Items == 0 {
		os.Exit(1)
	}
}

// checkResult is the outcome of validating one document.
type checkResult struct {
	Entries  int
	Disabled int
	Items    int      // items the display would rotate through
	Lines    []string // one per item, in playlist order
	Errors   []error
}

// docGetter serves one in-memory document to the playlist builder.
type docGetter []byte

func (d docGetter) Get(context.Context, string) ([]byte, error) {
	return d, nil
}

// checkDocument runs a playlist document through the same builder the
// display uses and lists the items it would rotate through.
func checkDocument(data []byte) (checkResult, error) {
	// The builder treats a malformed document as empty; here it is an error.
	if _, err := validate.Document(data); err != nil {
		return checkResult{}, err
	}

	pl, rep := playlist.NewBuilder(docGetter(data), "check:", 0).Build(context.Background(), "document")
	res := checkResult{Entries: rep.Raw, Disabled: rep.Disabled, Errors: rep.Errors}
	if rep.Fallback() {
		return res, nil
	}
	for _, s := range pl.Snapshots() {
		res.Items++
		res.Lines = append(res.Lines, fmt.Sprintf("%-25s %3ds  every %dm  %s",
			truncate(s.FriendlyName, 25), s.DisplaySecs, s.RefreshMinutes, s.Resource))
	}
	return res, nil
}

func (r checkResult) print(w io.Writer, quiet bool) {
	if !quiet {
		for _, l := range r.Lines {
			fmt.Fprintln(w, "  "+l)
		}
		fmt.Fprintln(w)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(w, "  invalid: %v\n", err)
	}
	fmt.Fprintf(w, "%d entries: %d items, %d disabled, %d invalid\n",
		r.Entries, r.Items, r.Disabled, len(r.Errors))
	if r.Items == 0 {
		fmt.Fprintln(w, "no active screens: the display would show the \"No list\" screen")
	}
}
