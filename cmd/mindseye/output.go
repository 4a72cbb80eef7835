package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"

	"mindseye/internal/gallery"
)

const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

// colorEnabled is decided once per process; color only goes to a terminal.
var colorEnabled = term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

func colorize(code, s string) string {
	if !colorEnabled {
		return s
	}
	return code + s + ansiReset
}

func colorGreen(s string) string  { return colorize(ansiGreen, s) }
func colorYellow(s string) string { return colorize(ansiYellow, s) }
func colorRed(s string) string    { return colorize(ansiRed, s) }
func colorBold(s string) string   { return colorize(ansiBold, s) }

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printError(w io.Writer, msg string) {
	fmt.Fprintf(w, "%s %s\n", colorRed("✗"), msg)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

// printView renders a gallery view as a table, or its empty state.
func printView(w io.Writer, view gallery.ViewState) error {
	if view.Empty != nil {
		fmt.Fprintf(w, "%s\n%s\n", colorBold(view.Empty.Title), view.Empty.Hint)
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCREATED\tPROMPT\tMEDIA\tURL")
	for _, it := range view.Items {
		media := string(it.Media)
		if it.Media == gallery.MediaFailed {
			media = colorRed(it.MediaError)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			it.ID,
			it.CreatedAt.Local().Format(time.DateTime),
			truncate(it.Prompt, 48),
			media,
			it.MediaURL,
		)
	}
	return tw.Flush()
}
