// Package console is a line-oriented labeler for interactive terminals.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"dedupe/internal/active"
	"dedupe/internal/domain"
)

// LineReader reads one line of input. *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
	Close() error
}

// Labeler asks the user about each pair on the terminal.
type Labeler struct {
	out    io.Writer
	reader func() (LineReader, error)
}

// New returns a labeler reading from the terminal through readline.
func New(out io.Writer) *Labeler {
	cyan := color.New(color.FgCyan).SprintFunc()
	return &Labeler{
		out: out,
		reader: func() (LineReader, error) {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          cyan("(y)es / (n)o / (u)nsure / (f)inished > "),
				InterruptPrompt: "^C",
				EOFPrompt:       "f",
				Stdout:          out,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to create readline: %w", err)
			}
			return rl, nil
		},
	}
}

// NewWithReader returns a labeler reading answers from r.
func NewWithReader(r LineReader, out io.Writer) *Labeler {
	return &Labeler{out: out, reader: func() (LineReader, error) { return r, nil }}
}

// Run implements active.Labeler. Ctrl+C and Ctrl+D finish the session.
func (l *Labeler) Run(ctx context.Context, queries <-chan active.Query, answers chan<- active.Answer) error {
	rl, err := l.reader()
	if err != nil {
		return err
	}
	closeReader := sync.OnceValue(rl.Close)
	defer closeReader()
	// unblock a pending Readline when the session is torn down
	stop := context.AfterFunc(ctx, func() { closeReader() })
	defer stop()

	for {
		var q active.Query
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok = <-queries:
			if !ok {
				return nil
			}
		}
		l.render(q)

		answer, err := l.ask(ctx, rl)
		if err != nil {
			return err
		}
		answer.Seq = q.Seq
		select {
		case answers <- answer:
		case <-ctx.Done():
			return ctx.Err()
		}
		if answer.Stop {
			fmt.Fprintln(l.out, "Finished labeling")
			return nil
		}
	}
}

func (l *Labeler) ask(ctx context.Context, rl LineReader) (active.Answer, error) {
	red := color.New(color.FgRed).SprintFunc()
	for {
		line, err := rl.Readline()
		if err != nil {
			if ctx.Err() != nil {
				return active.Answer{}, ctx.Err()
			}
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return active.Answer{Stop: true}, nil
			}
			return active.Answer{}, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "f", "finished", "q", "quit":
			return active.Answer{Stop: true}, nil
		case "":
			continue
		}
		label, err := domain.ParseLabel(line)
		if err != nil {
			fmt.Fprintf(l.out, "%s %v; answer y, n, u or f\n", red("Error:"), err)
			continue
		}
		return active.Answer{Label: label}, nil
	}
}

func (l *Labeler) render(q active.Query) {
	bold := color.New(color.Bold).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintln(l.out)
	w := tabwriter.NewWriter(l.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\n", bold("field"), bold(string(q.Pair.Left)), bold(string(q.Pair.Right)))
	for _, f := range q.Fields {
		left, right := q.Left.Get(f.Name), q.Right.Get(f.Name)
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, cell(left, gray), cell(right, gray))
	}
	w.Flush()
	p := q.Progress
	fmt.Fprintf(l.out, "%s positive, %s negative, %d unsure, %d candidates left\n",
		green(p.Matches), yellow(p.Distincts), p.Uncertain, p.Remaining)
	fmt.Fprintln(l.out, "Do these records refer to the same thing?")
}

func cell(v domain.Value, missing func(a ...interface{}) string) string {
	if !v.Present {
		return missing("-")
	}
	return v.Text
}
