// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionExists indicates a session is already registered under the id.
var ErrSessionExists = errors.New("session already exists")

// ErrSessionAlreadyRunning indicates a run is already active on the session.
// A second run request is rejected, never queued.
var ErrSessionAlreadyRunning = errors.New("agent is already running")

// ErrAgentNotRunning indicates no run is active on the session.
var ErrAgentNotRunning = errors.New("agent is not running")

// ErrNotAwaitingInput indicates the active run is not blocked on user input.
var ErrNotAwaitingInput = errors.New("agent is not waiting for input")

// ErrValidation indicates a malformed or incomplete request.
var ErrValidation = errors.New("validation")
