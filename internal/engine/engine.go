// Package engine runs game rules scripts. A script registers event handlers
// when it is first run and is then driven one event at a time.
package engine

import (
	"errors"
)

var ErrInvalidState = errors.New("invalid engine state")
var ErrNotLoaded = errors.New("no script loaded")
var ErrBadResult = errors.New("handler returned an unsupported value")

type State int

const (
	NotStarted State = iota
	Paused
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Engine is a sandboxed script interpreter. It is not safe for concurrent
// use; the session pipeline owns it.
type Engine interface {
	LoadScript(src []byte) error
	// Run executes the loaded script up to its first suspension.
	Run() error
	State() State
	// RaiseEvent calls the handler registered for name. A nil result means
	// the script had nothing to report.
	RaiseEvent(name string, payload map[string]any) ([]any, error)
	Close()
}

// Factory builds a fresh engine for every session.
type Factory func() Engine
