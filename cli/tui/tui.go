package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/pithecene-io/ferry/transfer"
	"github.com/pithecene-io/ferry/types"
)

// Program runs a ProgressModel in the background.
type Program struct {
	p    *tea.Program
	done chan struct{}
	err  error
}

// Start launches the progress view on out. Input is read from the
// terminal so the user can abort; cancel is invoked on abort.
func Start(ctx context.Context, role types.Role, out io.Writer, cancel func()) *Program {
	return start(NewProgressModel(role, cancel), tea.WithContext(ctx), tea.WithOutput(out))
}

func start(m ProgressModel, opts ...tea.ProgramOption) *Program {
	prog := &Program{
		p:    tea.NewProgram(m, opts...),
		done: make(chan struct{}),
	}
	go func() {
		defer close(prog.done)
		_, prog.err = prog.p.Run()
	}()
	return prog
}

// Progress forwards a progress event. It is safe to use as
// transfer.Options.Progress.
func (p *Program) Progress(ev transfer.ProgressEvent) {
	p.p.Send(ProgressMsg(ev))
}

// Finish reports the exchange outcome and waits for the view to exit.
func (p *Program) Finish(err error) error {
	p.p.Send(DoneMsg{Err: err})
	<-p.done
	if errors.Is(p.err, tea.ErrProgramKilled) {
		return nil
	}
	return p.err
}
