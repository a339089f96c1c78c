package files

import (
	"fmt"
	"time"
)

type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// State is the phase of one transfer.
type State string

const (
	StateInit         State = "INIT"
	StateURLRequested State = "URL_REQUESTED"
	StateTransferring State = "TRANSFERRING"
	StateConfirming   State = "CONFIRMING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// ProgressFunc receives the bytes moved so far and the expected total. Calls
// are made from the transferring goroutine with non-decreasing values.
type ProgressFunc func(transferred, total int64)

// Session is the record of one upload or download. It is created per call,
// owned by the goroutine running the transfer and returned to the caller
// when the transfer ends, successfully or not.
type Session struct {
	Direction        Direction
	Input            FileInput
	URL              string
	BytesTransferred int64
	TotalBytes       int64
	State            State
	Err              error
	StartedAt        time.Time
	FinishedAt       time.Time
}

func newSession(direction Direction, input FileInput) *Session {
	return &Session{
		Direction: direction,
		Input:     input,
		State:     StateInit,
		StartedAt: time.Now(),
	}
}

func (s *Session) next() State {
	switch s.State {
	case StateInit:
		return StateURLRequested
	case StateURLRequested:
		return StateTransferring
	case StateTransferring:
		if s.Direction == DirectionUpload {
			return StateConfirming
		}
		return StateDone
	case StateConfirming:
		return StateDone
	}
	return s.State
}

// advance moves to the state following the current one. to names the state
// the caller expects, so a misordered call is reported instead of skipping.
func (s *Session) advance(to State) error {
	if s.State.Terminal() {
		return fmt.Errorf("transfer already %s", s.State)
	}
	if next := s.next(); next != to {
		return fmt.Errorf("invalid transition %s -> %s", s.State, to)
	}
	s.State = to
	if to == StateDone {
		s.FinishedAt = time.Now()
	}
	return nil
}

// fail records err and moves to FAILED. A finished session keeps its state.
func (s *Session) fail(err error) error {
	if s.State.Terminal() {
		return err
	}
	s.State = StateFailed
	s.Err = err
	s.FinishedAt = time.Now()
	return err
}
