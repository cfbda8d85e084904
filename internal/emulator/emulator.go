// Package emulator starts external emulators on downloaded file sets.
//
// An emulator's argument template is split into words before substitution,
// so a file path containing spaces stays a single argument:
//
//	"-autostart %f %s"  with  %f = "/tmp/1/Boulder Dash.d64", %s = "-pal -warp"
//	-> ["-autostart", "/tmp/1/Boulder Dash.d64", "-pal", "-warp"]
//
// A word that is exactly %s expands to all per-system words. A template
// without %f gets the file appended as the last argument.
package emulator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"efm-go/internal/efm"
)

// Command is one program invocation.
type Command struct {
	Executable string
	Args       []string
	// Dir is the working directory. Empty means the current one.
	Dir string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Executable}, c.Args...), " ")
}

// Result holds the outcome of a finished command.
type Result struct {
	ExitCode int
	Stderr   string
}

// Runner starts commands and waits for them to exit.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands as child processes.
type ExecRunner struct {
	// Stdout receives the program's standard output. Nil discards it.
	Stdout io.Writer
}

// Run starts the command. A non-zero exit is reported in the Result, not as
// an error.
func (r ExecRunner) Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.CommandContext(ctx, c.Executable, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stdout = r.Stdout

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &Result{Stderr: strings.TrimSpace(stderr.String())}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("starting %s: %w", c.Executable, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}

// SystemArguments returns the emulator's extra arguments for systemID, or
// "" when it has none.
func SystemArguments(em *efm.Emulator, systemID int64) string {
	for _, s := range em.Systems {
		if s.SystemID == systemID {
			return s.Arguments
		}
	}
	return ""
}

// BuildArgs expands template for filePath and systemArgs.
func BuildArgs(template, filePath, systemArgs string) ([]string, error) {
	words, err := SplitWords(template)
	if err != nil {
		return nil, err
	}
	extra, err := SplitWords(systemArgs)
	if err != nil {
		return nil, err
	}

	var args []string
	hasFile := false
	for _, w := range words {
		if w == "%s" {
			args = append(args, extra...)
			continue
		}
		if strings.Contains(w, "%f") {
			hasFile = true
			w = strings.ReplaceAll(w, "%f", filePath)
		}
		args = append(args, strings.ReplaceAll(w, "%s", systemArgs))
	}
	if !hasFile {
		args = append(args, filePath)
	}
	return args, nil
}

// SplitWords splits s on whitespace. Single or double quotes group words.
func SplitWords(s string) ([]string, error) {
	var (
		words  []string
		cur    strings.Builder
		inWord bool
		quote  rune
	)
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, efm.NewInvalidInputError("unterminated quote in " + s)
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}
