package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquisition marks any failure to obtain a usable question.
	ErrAcquisition = errors.New("question acquisition failed")
	// ErrMalformedQuestion indicates a payload missing required fields or not decodable.
	ErrMalformedQuestion = errors.New("malformed question payload")
	// ErrAnswerNotInOptions indicates the answer does not appear exactly once among the options.
	ErrAnswerNotInOptions = errors.New("answer is not among the provided options")
	// ErrGeneratorUnavailable indicates a transport or upstream failure of the generator.
	ErrGeneratorUnavailable = errors.New("question generator unavailable")
	// ErrGeneratorUnauthorized indicates the generator rejected the credentials.
	ErrGeneratorUnauthorized = errors.New("question generator rejected credentials")

	// ErrStore marks a failure of the persistent question store.
	ErrStore = errors.New("question store failure")
	// ErrStoreEmpty is returned when a random batch is requested from an empty store.
	ErrStoreEmpty = errors.New("no questions found in store")

	// ErrInvariant marks caller misuse of the session engine.
	ErrInvariant = errors.New("session invariant violated")
	// ErrInvalidTransition is returned when an operation is not valid in the current phase.
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", ErrInvariant)
	// ErrAlreadyAnswered is returned when the current question has already been scored.
	ErrAlreadyAnswered = fmt.Errorf("%w: question already scored", ErrInvariant)
	// ErrTimerExpired is returned when submitting after the countdown ran out.
	ErrTimerExpired = fmt.Errorf("%w: time is up for this question", ErrInvariant)
	// ErrOptionOutOfRange is returned when the selected option index does not exist.
	ErrOptionOutOfRange = fmt.Errorf("%w: option out of range", ErrInvariant)
	// ErrAcquisitionPending is returned while a question fetch is in flight.
	ErrAcquisitionPending = fmt.Errorf("%w: acquisition in progress", ErrInvariant)
	// ErrNoPreviousQuestion is returned when retreating from the first question.
	ErrNoPreviousQuestion = fmt.Errorf("%w: no previous question", ErrInvariant)
	// ErrEmptyBatch is returned when loading an empty batch.
	ErrEmptyBatch = fmt.Errorf("%w: empty batch", ErrInvariant)

	// ErrSessionNotFound is returned when a session id is not registered.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSuperseded is returned when a result belongs to a session that was replaced.
	ErrSuperseded = errors.New("session superseded")
)

// AcquisitionError wraps the cause of a failed question fetch.
type AcquisitionError struct {
	Op  string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrAcquisition, e.Err)
}

func (e *AcquisitionError) Unwrap() []error {
	return []error{ErrAcquisition, e.Err}
}

// StoreError wraps a question store failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// NewAcquisitionError normalizes err into an acquisition failure.
func NewAcquisitionError(op string, err error) error {
	if err == nil {
		return nil
	}
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return err
	}
	return &AcquisitionError{Op: op, Err: err}
}

// NewStoreError wraps err as a store failure for the given operation.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsUserFacing reports whether err should be shown to the user. Invariant
// violations are caller bugs and are not.
func IsUserFacing(err error) bool {
	return errors.Is(err, ErrAcquisition) || errors.Is(err, ErrStore)
}
