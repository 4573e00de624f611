// Package notify provides sinks for inventory notifications.
package notify

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ErrNoAnswer is returned when the input ends before a question is answered.
var ErrNoAnswer = errors.New("no answer")

// Console writes notifications to a terminal and reads answers from it.
type Console struct {
	out     io.Writer
	timeout time.Duration

	mu    sync.Mutex
	lines chan string
	once  sync.Once
	in    *bufio.Scanner
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithQuestionTimeout bounds how long a question waits for an answer.
// Zero means wait until the context is done.
func WithQuestionTimeout(d time.Duration) ConsoleOption {
	return func(c *Console) {
		c.timeout = d
	}
}

// NewConsole creates a console sink writing to out and reading answers from in.
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		out: out,
		in:  bufio.NewScanner(in),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnMessage writes msg on its own line.
func (c *Console) OnMessage(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, msg)
}

// OnError writes msg prefixed with "error:".
func (c *Console) OnError(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, "error: %s\n", msg)
}

// OnQuestion writes question and waits for a y/n answer. Anything other than
// y or yes is a decline.
func (c *Console) OnQuestion(ctx context.Context, question string) (bool, error) {
	c.mu.Lock()
	_, _ = fmt.Fprintf(c.out, "%s? (y/n) ", question)
	c.mu.Unlock()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	line, err := c.ReadLine(ctx)
	if err != nil {
		return false, err
	}
	return isYes(line), nil
}

// ReadLine returns the next input line. Lines are read by a single
// goroutine so an abandoned read is delivered to the next caller.
func (c *Console) ReadLine(ctx context.Context) (string, error) {
	c.once.Do(c.startReader)

	select {
	case line, ok := <-c.lines:
		if !ok {
			return "", ErrNoAnswer
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) startReader() {
	c.lines = make(chan string)
	go func() {
		defer close(c.lines)
		for c.in.Scan() {
			c.lines <- strings.TrimSpace(c.in.Text())
		}
	}()
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
