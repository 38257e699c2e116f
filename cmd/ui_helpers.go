// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"acctl/cli/internal/terminal"
)

const spinnerInterval = 120 * time.Millisecond

// startInlineSpinner starts a simple inline spinner animation on a single line.
// It displays rotating animation frames followed by the provided text, updating
// the same line in the terminal. The spinner runs in a separate goroutine and
// can be stopped by calling the returned function, which clears the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	cursor.Hide()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				line := fmt.Sprintf("%s %s", frames[i%len(frames)], text)
				// Clear the spinner line completely, then return
				fmt.Fprintf(w, "\r%*s\r", len(line), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s %s", frames[i%len(frames)], text)
				i++
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			cursor.Show()
		})
	}
}

// spin runs fn behind a spinner when stdout is a terminal.
func spin[T any](text string, fn func() (T, error)) (T, error) {
	stop := func() {}
	if terminal.Interactive() && !verbose {
		stop = startInlineSpinner(os.Stdout, text, []string{"|", "/", "-", "\\"}, spinnerInterval)
	}
	defer stop()
	return fn()
}

// renderTable prints rows under a header. An empty list prints a hint instead.
func renderTable(header []string, rows [][]string, empty string) error {
	if len(rows) == 0 {
		pterm.Info.Println(empty)
		return nil
	}
	data := pterm.TableData{header}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

// printJSON writes v indented, for --json output and raw calls.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// yesNo renders a flag for tables.
func yesNo(b bool) string {
	if b {
		return pterm.Green("yes")
	}
	return pterm.Gray("no")
}
