package domain

// ProtocolError is a rejection defined by the protocol's error taxonomy.
// The numeric codes are stable across implementations and part of the
// external contract.
type ProtocolError struct {
	Code uint32
	Name string
}

func (e *ProtocolError) Error() string { return e.Name }

var (
	ErrGameNotFound     = &ProtocolError{1, "GameNotFound"}
	ErrNotPlayer        = &ProtocolError{2, "NotPlayer"}
	ErrWrongPhase       = &ProtocolError{3, "WrongPhase"}
	ErrAlreadyCommitted = &ProtocolError{4, "AlreadyCommitted"}
	ErrInvalidHand      = &ProtocolError{5, "InvalidHand"}
	ErrHandsMustDiffer  = &ProtocolError{6, "HandsMustDiffer"}
	ErrHashMismatch     = &ProtocolError{7, "HashMismatch"}
	ErrInvalidChoice    = &ProtocolError{8, "InvalidChoice"}
	ErrGameAlreadyEnded = &ProtocolError{9, "GameAlreadyEnded"}
)

// Retryable reports whether resubmitting the same call with corrected
// secret inputs is a sensible recovery. Only HashMismatch qualifies: a
// transcription error (wrong salt, swapped hands) looks identical to a
// cheating attempt and the session state is left untouched.
func (e *ProtocolError) Retryable() bool {
	return e.Code == ErrHashMismatch.Code
}
