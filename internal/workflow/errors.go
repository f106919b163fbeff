package workflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for conditions without per-instance detail.
var (
	// ErrProjectBusy means another transition for the same project is in
	// flight. At most one transition runs per project at a time.
	ErrProjectBusy = errors.New("a transition is already in progress for this project")

	// ErrWorkflowComplete means the terminal summary stage is already
	// recorded and no further advance is possible.
	ErrWorkflowComplete = errors.New("workflow already completed")

	// ErrClarificationUnfinished means advance was attempted while the
	// clarification sub-dialogue has not been explicitly finished.
	ErrClarificationUnfinished = errors.New("clarification not finished")

	// ErrClarifyRoundLimit means the clarification round cap was reached;
	// only an explicit finish can end the sub-dialogue now.
	ErrClarifyRoundLimit = errors.New("clarification round limit reached")

	// ErrNoClarification means no clarification dialogue has been opened
	// for the project.
	ErrNoClarification = errors.New("no active clarification dialogue")

	// ErrClarificationFinished means the dialogue was already explicitly
	// finished and accepts no further answers.
	ErrClarificationFinished = errors.New("clarification already finished")

	// ErrNothingToRegenerate means no analysis stage has been recorded yet.
	ErrNothingToRegenerate = errors.New("no analysis stage recorded to regenerate")

	// ErrStageNotRecorded means the requested stage has no stored record.
	ErrStageNotRecorded = errors.New("stage not recorded")

	// ErrNotFound means the project does not exist.
	ErrNotFound = errors.New("project not found")

	// ErrForbidden means the project belongs to another user.
	ErrForbidden = errors.New("project belongs to another user")
)

// PreconditionError reports an attempted transition that would skip a
// mandatory predecessor stage. Unreachable through normal UI flow; the
// machine checks defensively and never silently skips.
type PreconditionError struct {
	Stage   Stage
	Missing []Stage
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot run stage %s: missing records for %v", e.Stage, e.Missing)
}

// CapabilityError reports a failed or timed-out capability call. The
// transition it belonged to did not happen and no record was written.
type CapabilityError struct {
	Stage   Stage
	Timeout bool
	Err     error
}

func (e *CapabilityError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("capability call for stage %s timed out: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("capability call for stage %s failed: %v", e.Stage, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// PersistenceError reports a failed store write. The transition is not
// considered complete; the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// AnswerCountError reports a clarification submission whose answer count
// does not match the outstanding open questions.
type AnswerCountError struct {
	Want int
	Got  int
}

func (e *AnswerCountError) Error() string {
	return fmt.Sprintf("expected %d answers for open questions, got %d", e.Want, e.Got)
}
