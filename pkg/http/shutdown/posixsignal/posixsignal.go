// Package posixsignal provides a shutdown manager listening for POSIX signals.
package posixsignal

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/loomhq/loom/pkg/http/shutdown"
)

// Name defines the shutdown manager name.
const Name = "PosixSignalManager"

// PosixSignalManager implements shutdown.Manager. It triggers a shutdown
// on SIGINT/SIGTERM (or the given signals) and exits when callbacks finish.
type PosixSignalManager struct {
	signals []os.Signal
}

// NewPosixSignalManager creates a manager listening for the given signals,
// defaulting to SIGINT and SIGTERM.
func NewPosixSignalManager(sig ...os.Signal) *PosixSignalManager {
	if len(sig) == 0 {
		sig = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	return &PosixSignalManager{signals: sig}
}

// GetName returns the manager name.
func (p *PosixSignalManager) GetName() string { return Name }

// Start starts listening for signals.
func (p *PosixSignalManager) Start(gs shutdown.GSInterface) error {
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, p.signals...)
		<-c
		gs.StartShutdown(p)
	}()
	return nil
}

// ShutdownStart does nothing.
func (p *PosixSignalManager) ShutdownStart() error { return nil }

// ShutdownFinish exits the process.
func (p *PosixSignalManager) ShutdownFinish() error {
	os.Exit(0)
	return nil
}
