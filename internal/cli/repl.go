package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/findify/internal/session"
)

const replHelp = `Type a query to search. Commands:
  /more          load the next page
  /chat <text>   send a chat message (refines the current results)
  /state         print the whole session
  /help          show this help
  /quit          exit`

// REPL is the interactive demo loop over a Session.
type REPL struct {
	session Session
	in      io.Reader
	out     io.Writer
	prompt  bool
}

// NewREPL creates a loop reading commands from in and printing to out. With
// prompt set, a "> " prompt is printed before each line.
func NewREPL(s Session, in io.Reader, out io.Writer, prompt bool) *REPL {
	return &REPL{session: s, in: in, out: out, prompt: prompt}
}

// Run processes lines until /quit, end of input, or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, replHelp)
	scanner := bufio.NewScanner(r.in)
	for {
		if r.prompt {
			fmt.Fprint(r.out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		quit, err := r.handle(ctx, strings.TrimSpace(scanner.Text()))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

func (r *REPL) handle(ctx context.Context, line string) (quit bool, err error) {
	switch {
	case line == "":
		return false, nil
	case line == "/quit" || line == "/exit":
		return true, nil
	case line == "/help":
		fmt.Fprintln(r.out, replHelp)
		return false, nil
	case line == "/state":
		return false, WriteState(r.out, r.session.Snapshot(), OutputText)
	case line == "/more":
		return false, r.loadMore(ctx)
	case line == "/chat" || strings.HasPrefix(line, "/chat "):
		return false, r.chat(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/chat")))
	case strings.HasPrefix(line, "/"):
		return false, fmt.Errorf("unknown command %s (try /help)", line)
	default:
		return false, r.search(ctx, line)
	}
}

func (r *REPL) search(ctx context.Context, query string) error {
	fmt.Fprintln(r.out, "Searching...")
	if err := r.session.Search(ctx, query); err != nil {
		return err
	}
	r.printReset()
	return nil
}

func (r *REPL) chat(ctx context.Context, text string) error {
	if text == "" {
		return session.ErrEmptyMessage
	}
	if err := r.session.SendChatMessage(ctx, text); err != nil {
		return err
	}
	r.printReset()
	return nil
}

func (r *REPL) loadMore(ctx context.Context) error {
	before := len(r.session.Snapshot().Results)
	applied, err := r.session.LoadMore(ctx)
	if err != nil {
		return err
	}
	state := r.session.Snapshot()
	if !applied {
		if state.Query == "" {
			fmt.Fprintln(r.out, "Nothing to load yet; search first.")
		} else {
			fmt.Fprintln(r.out, "No more results.")
		}
		return nil
	}
	WriteResults(r.out, state.Results[before:], before)
	fmt.Fprintln(r.out, PageSummary(state))
	return nil
}

// printReset shows the first page and the chat exchange that produced it.
func (r *REPL) printReset() {
	state := r.session.Snapshot()
	n := len(state.Messages)
	for _, m := range state.Messages[max(0, n-2):] {
		WriteMessage(r.out, m)
	}
	fmt.Fprintln(r.out)
	WriteResults(r.out, state.Results, 0)
	fmt.Fprintln(r.out, PageSummary(state))
}
