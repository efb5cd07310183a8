package workflow

import (
	"errors"
	"fmt"
)

// Stage identifies one step of the submission pipeline.
//
// A submission moves strictly forward: Idle → Authenticating → Packaging →
// Submitting → AwaitingConfirmation → Completed or Failed. No stage is ever
// re-entered.
type Stage uint8

const (
	StageIdle Stage = iota
	StageAuthenticating
	StagePackaging
	StageSubmitting
	StageAwaitingConfirmation
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageAuthenticating:
		return "authenticating"
	case StagePackaging:
		return "packaging"
	case StageSubmitting:
		return "submitting"
	case StageAwaitingConfirmation:
		return "awaiting confirmation"
	case StageCompleted:
		return "completed"
	case StageFailed:
		return "failed"
	default:
		return fmt.Sprintf("stage(%d)", s)
	}
}

// ErrTimeout is returned by Await and by Submit when a bounded wait gives up.
//
// A timeout is not a failure: the awaited operation was abandoned, not
// cancelled, and may still complete. User-facing messaging must keep the two
// apart ("still waiting" versus "failed").
var ErrTimeout = errors.New("timed out waiting; the operation may still complete")

// Error is the tagged failure of one submission attempt. It carries the stage
// at which the pipeline aborted so the caller can decide whether a retry from
// idle is safe.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("submission failed while %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SubmitError reports a failed publish or transaction send.
//
// Broadcast distinguishes "never left the device" (safe to retry the whole
// workflow) from "handed to the network, response lost" (a blind retry risks
// duplicate content). IdempotencyKey is the key the failed submission
// presented to the service; resubmitting with it in Request.IdempotencyKey
// lets the service deduplicate, which is the only safe retry after a
// broadcast.
type SubmitError struct {
	Broadcast      bool
	TxHash         string
	IdempotencyKey string
	Err            error
}

func (e *SubmitError) Error() string {
	if e.Broadcast {
		return fmt.Sprintf("submit failed after broadcast of %s: %v", e.TxHash, e.Err)
	}
	return fmt.Sprintf("submit failed before broadcast: %v", e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }
