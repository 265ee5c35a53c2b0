package pipeline

import (
	"errors"
	"fmt"
)

// Stage is the position of a circuit call in the pipeline.
type Stage int

const (
	StageIdle Stage = iota
	StageSimulated
	StageBalanced
	StageProved
	StageSubmitted
	StageConfirmed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageSimulated:
		return "simulated"
	case StageBalanced:
		return "balanced"
	case StageProved:
		return "proved"
	case StageSubmitted:
		return "submitted"
	case StageConfirmed:
		return "confirmed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var (
	// ErrSimulation means the circuit could not run locally: the contract
	// is missing or a circuit assertion failed.
	ErrSimulation = errors.New("simulation failed")
	// ErrBalancing means the wallet could not balance the transaction.
	ErrBalancing = errors.New("balancing failed")
	// ErrProving means no proof could be produced for the transaction.
	ErrProving = errors.New("proving failed")
	// ErrSubmission means the wallet did not submit the transaction.
	ErrSubmission = errors.New("submission failed")
	// ErrCommit means the transaction was submitted but the new private
	// state could not be stored.
	ErrCommit = errors.New("private state commit failed")
	// ErrConfirmation means the submitted transaction was not confirmed
	// as applied.
	ErrConfirmation = errors.New("confirmation failed")
)

// StageError is returned by Pipeline.Run. Stage is the last stage the call
// reached before failing and Kind one of the Err* values of this package.
type StageError struct {
	CallID string
	Stage  Stage
	Kind   error
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%v after %s (call %s): %v", e.Kind, e.Stage, e.CallID, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// IsBalancingError reports whether err is a balancing failure.
func IsBalancingError(err error) bool {
	return errors.Is(err, ErrBalancing)
}

// IsProvingError reports whether err is a proving failure.
func IsProvingError(err error) bool {
	return errors.Is(err, ErrProving)
}

// IsSubmissionError reports whether err is a submission failure.
func IsSubmissionError(err error) bool {
	return errors.Is(err, ErrSubmission)
}
