package pipeline

import (
	"errors"
	"fmt"
)

// FailureReason names the step a run failed in.
type FailureReason string

const (
	ReasonGenerationFailed FailureReason = "GenerationFailed"
	ReasonReadFailed       FailureReason = "ReadFailed"
	ReasonPatchFailed      FailureReason = "PatchFailed"
	ReasonWriteFailed      FailureReason = "WriteFailed"
	// ReasonBusy means another run already holds the target path.
	ReasonBusy FailureReason = "Busy"
)

var (
	ErrGenerationFailed = errors.New("generation failed")
	ErrReadFailed       = errors.New("read failed")
	ErrPatchFailed      = errors.New("patch failed")
	ErrWriteFailed      = errors.New("write failed")
	ErrBusy             = errors.New("a run is already in progress for this artifact")
)

func (r FailureReason) sentinel() error {
	switch r {
	case ReasonGenerationFailed:
		return ErrGenerationFailed
	case ReasonReadFailed:
		return ErrReadFailed
	case ReasonPatchFailed:
		return ErrPatchFailed
	case ReasonWriteFailed:
		return ErrWriteFailed
	case ReasonBusy:
		return ErrBusy
	}
	return nil
}

// RunError is returned by Controller.Run on any failure. It matches both the
// reason sentinel and the underlying adapter error with errors.Is.
type RunError struct {
	Reason FailureReason
	State  State
	Err    error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *RunError) Unwrap() []error {
	errs := []error{}
	if s := e.Reason.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ReasonOf extracts the FailureReason from err, or "" if err is not a RunError.
func ReasonOf(err error) FailureReason {
	var re *RunError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ""
}
