// Copyright (c) 2025 Acctl
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides prompt helpers for interactive commands: reading a
// line, reading a password without echo and clearing the prompt afterwards.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"atomicgo.dev/cursor"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a prompt needs a terminal and stdin is not one.
var ErrNotInteractive = errors.New("stdin is not a terminal")

// ClearPreviousLines clears text from the terminal that was previously printed.
// It calculates how many lines were used by the provided text based on the current
// terminal width, then moves up and clears each line. An extra line is cleared
// for the newline the user typed.
func ClearPreviousLines(textLength int) {
	termWidth := 80 // default fallback
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}

	totalLines := int(math.Ceil(float64(textLength) / float64(termWidth)))
	if totalLines < 1 {
		totalLines = 1
	}
	// The current line holds the newline the user typed.
	cursor.StartOfLine()
	cursor.ClearLine()
	cursor.ClearLinesUp(totalLines)
}

// Interactive reports whether stdin is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ReadLine prints prompt and reads one line from r.
func ReadLine(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fmt.Fprint(w, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadPassword prints prompt and reads a password from the terminal without echo.
func ReadPassword(w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", ErrNotInteractive
	}
	fmt.Fprint(w, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
