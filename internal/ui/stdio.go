/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Option is one selectable choice in a prompt.
type Option struct {
	Key   string
	Label string
}

// StdioUI asks the user questions over a line-oriented reader and writer,
// stdin and stdout unless overridden.
type StdioUI struct {
	in  *bufio.Reader
	out io.Writer
}

func NewStdioUI() *StdioUI {
	return &StdioUI{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
	}
}

func (s *StdioUI) WithReader(r io.Reader) *StdioUI {
	s.in = bufio.NewReader(r)
	return s
}

func (s *StdioUI) WithWriter(w io.Writer) *StdioUI {
	s.out = w
	return s
}

func (s *StdioUI) readLine() (string, error) {
	line, err := s.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// SelectOption lists choices and reads the 1-based index of the user's
// pick, asking again on invalid input.
func (s *StdioUI) SelectOption(userPrompt string, choices []Option) (Option, error) {
	if len(choices) == 0 {
		return Option{}, fmt.Errorf("no choices provided")
	}

	fmt.Fprintln(s.out, userPrompt)
	for i, c := range choices {
		fmt.Fprintf(s.out, "%d) %s\n", i+1, c.Label)
	}
	fmt.Fprint(s.out, "Enter choice number: ")

	for {
		line, err := s.readLine()
		if err != nil {
			return Option{}, err
		}

		var idx int
		_, err = fmt.Sscanf(line, "%d", &idx)
		if err != nil || idx < 1 || idx > len(choices) {
			fmt.Fprintf(s.out,
				"Invalid selection. Please enter a number between 1 and %d: ", len(choices))
			continue
		}

		return choices[idx-1], nil
	}
}

// SelectBool asks a yes/no style question. The answer matches either
// option's key or label, case-insensitively. An empty answer picks def
// when it is set.
func (s *StdioUI) SelectBool(userPrompt string, trueOpt, falseOpt Option,
	def *bool) (bool, error) {

	for {
		fmt.Fprintf(s.out, "%s(%s/%s) ", userPrompt, trueOpt.Label, falseOpt.Label)
		line, err := s.readLine()
		if err != nil {
			return false, err
		}
		line = strings.TrimSpace(line)

		switch {
		case line == "" && def != nil:
			return *def, nil
		case matches(line, trueOpt):
			return true, nil
		case matches(line, falseOpt):
			return false, nil
		}
		fmt.Fprintln(s.out, "Invalid selection.")
	}
}

func matches(answer string, opt Option) bool {
	return strings.EqualFold(answer, opt.Key) || strings.EqualFold(answer, opt.Label)
}

// Get prompts for one line of input, without its line ending.
func (s *StdioUI) Get(userPrompt string) (string, error) {
	fmt.Fprint(s.out, userPrompt)
	return s.readLine()
}

// GetDefault is Get with a value used when the user enters nothing.
func (s *StdioUI) GetDefault(userPrompt, def string) (string, error) {
	if def != "" {
		userPrompt = fmt.Sprintf("%s[%s] ", userPrompt, def)
	}
	val, err := s.Get(userPrompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(val) == "" {
		return def, nil
	}
	return strings.TrimSpace(val), nil
}

// Confirm waits for the user to press enter.
func (s *StdioUI) Confirm(userPrompt string) error {
	fmt.Fprintf(s.out, "%s (press enter) ", userPrompt)
	if _, err := s.readLine(); err != nil {
		return err
	}
	fmt.Fprintln(s.out, "OK")
	return nil
}
