// Package console implements the operator prompts used in interactive and
// debug modes.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrClosed is returned once input reaches EOF.
var ErrClosed = errors.New("console input closed")

// Prompter reads operator answers line by line.
type Prompter struct {
	mu      sync.Mutex
	reader  *bufio.Reader
	out     io.Writer
	start   sync.Once
	answers chan answer
}

// New returns a Prompter reading from in and writing prompts to out.
func New(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{reader: bufio.NewReader(in), out: out, answers: make(chan answer)}
}

// Confirm shows prompt and waits for a line. Any answer other than "n" or
// "no" proceeds, so pressing enter is a yes.
func (p *Prompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	line, err := p.ask(ctx, prompt+" ")
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "n", "no":
		return false, nil
	default:
		return true, nil
	}
}

// Pause shows message and blocks until the operator presses enter.
func (p *Prompter) Pause(ctx context.Context, message string) error {
	_, err := p.ask(ctx, message+" ")
	return err
}

type answer struct {
	line string
	err  error
}

func (p *Prompter) ask(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	p.start.Do(func() { go p.read() })
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("prompt canceled: %w", ctx.Err())
	case a, ok := <-p.answers:
		if !ok {
			return "", ErrClosed
		}
		if errors.Is(a.err, io.EOF) {
			if a.line == "" {
				return "", ErrClosed
			}
			return a.line, nil
		}
		if a.err != nil {
			return "", fmt.Errorf("read answer: %w", a.err)
		}
		return a.line, nil
	}
}

// read is the only reader of p.reader. A line typed after a canceled prompt
// is kept for the next one.
func (p *Prompter) read() {
	defer close(p.answers)
	for {
		line, err := p.reader.ReadString('\n')
		p.answers <- answer{line: line, err: err}
		if err != nil {
			return
		}
	}
}
