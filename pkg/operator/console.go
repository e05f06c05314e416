package operator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	titleColor  = color.New(color.FgCyan, color.Bold).SprintFunc()
	promptColor = color.New(color.Bold).SprintFunc()
	noticeColor = color.New(color.FgYellow).SprintFunc()
)

// Console talks to the operator on a terminal.
type Console struct {
	in  io.Reader
	out io.Writer

	once  sync.Once
	lines chan lineResult
	// bell rings the terminal on notifications.
	bell bool
}

type lineResult struct {
	line string
	err  error
}

// NewConsole returns a console on stdin/stdout.
func NewConsole() *Console {
	return NewConsoleWith(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

func NewConsoleWith(in io.Reader, out io.Writer, bell bool) *Console {
	return &Console{in: in, out: out, bell: bell}
}

// readLines reads the input on one goroutine for the life of the console,
// so a cancelled prompt does not lose the next answer.
func (c *Console) readLines() {
	c.lines = make(chan lineResult)
	go func() {
		r := bufio.NewReader(c.in)
		for {
			line, err := r.ReadString('\n')
			if err != nil && line == "" {
				c.lines <- lineResult{err: err}
				close(c.lines)
				return
			}
			c.lines <- lineResult{line: strings.TrimRight(line, "\r\n")}
		}
	}()
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	c.once.Do(c.readLines)
	select {
	case res, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Console) header(title string) {
	if title != "" {
		fmt.Fprintf(c.out, "\n%s\n", titleColor(title))
	}
}

func (c *Console) Prompt(ctx context.Context, title, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.header(title)
	fmt.Fprintf(c.out, "%s ", promptColor(text))
	return c.readLine(ctx)
}

func (c *Console) Wait(ctx context.Context, title, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.header(title)
	fmt.Fprintf(c.out, "%s\n%s ", promptColor(text), "Press Enter to continue...")
	_, err := c.readLine(ctx)
	return err
}

func (c *Console) Notify(text string) {
	if c.bell {
		fmt.Fprint(c.out, "\a")
	}
	fmt.Fprintln(c.out, noticeColor(text))
}
