// Package shutdown provides graceful shutdown orchestration: shutdown
// managers (signal listeners) trigger registered callbacks in order.
package shutdown

import (
	"sync"
)

// Callback is invoked when a shutdown is triggered. The argument is the
// name of the manager that triggered it.
type Callback interface {
	OnShutdown(manager string) error
}

// Func is a helper to turn a plain function into a Callback.
type Func func(manager string) error

// OnShutdown implements Callback.
func (f Func) OnShutdown(manager string) error { return f(manager) }

// Manager watches for a shutdown condition and calls StartShutdown on the
// GracefulShutdown when it occurs.
type Manager interface {
	GetName() string
	Start(gs GSInterface) error
	ShutdownStart() error
	ShutdownFinish() error
}

// ErrorHandler receives errors from callbacks and managers.
type ErrorHandler interface {
	OnError(err error)
}

// GSInterface is the interface managers use to trigger a shutdown.
type GSInterface interface {
	StartShutdown(sm Manager)
	ReportError(err error)
	AddShutdownCallback(callback Callback)
}

// GracefulShutdown maintains managers and callbacks.
type GracefulShutdown struct {
	callbacks    []Callback
	managers     []Manager
	errorHandler ErrorHandler
}

// New creates an empty GracefulShutdown.
func New() *GracefulShutdown {
	return &GracefulShutdown{
		callbacks: make([]Callback, 0, 8),
		managers:  make([]Manager, 0, 2),
	}
}

// Start starts all added managers, listening for shutdown conditions.
func (gs *GracefulShutdown) Start() error {
	for _, manager := range gs.managers {
		if err := manager.Start(gs); err != nil {
			return err
		}
	}
	return nil
}

// AddShutdownManager adds a manager that triggers shutdowns.
func (gs *GracefulShutdown) AddShutdownManager(manager Manager) {
	gs.managers = append(gs.managers, manager)
}

// AddShutdownCallback adds a callback to run on shutdown.
func (gs *GracefulShutdown) AddShutdownCallback(callback Callback) {
	gs.callbacks = append(gs.callbacks, callback)
}

// SetErrorHandler sets the handler receiving callback errors.
func (gs *GracefulShutdown) SetErrorHandler(errorHandler ErrorHandler) {
	gs.errorHandler = errorHandler
}

// StartShutdown runs all callbacks in parallel and waits for completion,
// bracketed by the manager's ShutdownStart/ShutdownFinish hooks.
func (gs *GracefulShutdown) StartShutdown(sm Manager) {
	gs.ReportError(sm.ShutdownStart())

	var wg sync.WaitGroup
	for _, callback := range gs.callbacks {
		wg.Add(1)
		go func(callback Callback) {
			defer wg.Done()
			gs.ReportError(callback.OnShutdown(sm.GetName()))
		}(callback)
	}
	wg.Wait()

	gs.ReportError(sm.ShutdownFinish())
}

// ReportError forwards a non-nil error to the error handler.
func (gs *GracefulShutdown) ReportError(err error) {
	if err != nil && gs.errorHandler != nil {
		gs.errorHandler.OnError(err)
	}
}
