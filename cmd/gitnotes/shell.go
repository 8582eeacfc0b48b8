package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/starford/gitnotes/internal/apperr"
)

const prompt = "> "

// shell reads commands line by line and runs them against the session's
// service. Errors are reported and the loop continues; "exit", "quit" or
// end of input leave it. An open transaction is committed on exit.
func (s *session) shell(ctx context.Context) error {
	s.interactive = true
	defer func() { s.interactive = false }()

	scanner := bufio.NewScanner(s.in)
	for {
		fmt.Fprint(s.out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		args, err := splitArgs(line)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			continue
		}
		if args[0] == "shell" {
			fmt.Fprintln(s.out, "error: already in the shell")
			continue
		}
		if err := s.runLine(ctx, args); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("read command: %w", err)
	}

	if s.svc != nil && s.svc.InTransaction() {
		return s.svc.Commit(ctx)
	}
	return nil
}

func (s *session) runLine(ctx context.Context, args []string) error {
	return newRootCommand(s).Run(ctx, append([]string{"gitnotes"}, args...))
}

// splitArgs splits a command line on whitespace. Single quotes keep their
// content literally; double quotes allow backslash escapes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, apperr.Validation("Unterminated quote")
	}
	if escaped {
		return nil, apperr.Validation("Trailing backslash")
	}
	if inWord {
		args = append(args, current.String())
	}
	if len(args) == 0 {
		return nil, apperr.Validation("Empty command")
	}
	return args, nil
}
