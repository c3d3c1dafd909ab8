package notify

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// ErrConfirmationRequired is returned when a destructive action needs a
// confirmation that cannot be asked for.
var ErrConfirmationRequired = errors.New("notify: confirmation required, rerun with --yes")

// Request describes a confirmation dialog.
type Request struct {
	Title        string
	Description  string
	ConfirmLabel string
	CancelLabel  string
	Danger       bool
}

func (r Request) labels() (string, string) {
	yes, no := r.ConfirmLabel, r.CancelLabel
	if yes == "" {
		yes = "Confirm"
		if r.Danger {
			yes = "Delete"
		}
	}
	if no == "" {
		no = "Cancel"
	}
	return yes, no
}

// Confirmer asks the user for a decision.
type Confirmer interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// Prompt asks interactively with a huh confirm field.
type Prompt struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

// NewPrompt returns a prompt reading in and drawing on out. Accessible mode
// renders plain text prompts, which is also what tests drive.
func NewPrompt(in io.Reader, out io.Writer, accessible bool) *Prompt {
	return &Prompt{in: in, out: out, accessible: accessible}
}

// Confirm shows the dialog. Aborting it (ctrl-c, esc) counts as cancel.
func (p *Prompt) Confirm(ctx context.Context, req Request) (bool, error) {
	yes, no := req.labels()
	var ok bool
	field := huh.NewConfirm().
		Title(req.Title).
		Description(req.Description).
		Affirmative(yes).
		Negative(no).
		Value(&ok)

	form := huh.NewForm(huh.NewGroup(field)).
		WithInput(p.in).
		WithOutput(p.out).
		WithAccessible(p.accessible)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// Static answers every request the same way and remembers what was asked.
type Static struct {
	Answer bool

	mu       sync.Mutex
	requests []Request
}

// AssumeYes confirms everything, as --yes does.
func AssumeYes() *Static { return &Static{Answer: true} }

// Confirm records req and returns the fixed answer.
func (s *Static) Confirm(_ context.Context, req Request) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.Answer, nil
}

// Requests returns the requests seen so far.
func (s *Static) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// NonInteractive refuses every confirmation.
type NonInteractive struct{}

// Confirm always fails with ErrConfirmationRequired.
func (NonInteractive) Confirm(context.Context, Request) (bool, error) {
	return false, ErrConfirmationRequired
}

// NewConfirmer picks the confirmer for a CLI invocation: --yes wins, a
// terminal on both ends gets a prompt, anything else refuses.
func NewConfirmer(assumeYes bool, in, out *os.File) Confirmer {
	if assumeYes {
		return AssumeYes()
	}
	if isTerminal(in) && isTerminal(out) {
		return NewPrompt(in, out, os.Getenv("ACCESSIBLE") != "")
	}
	return NonInteractive{}
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
