package cli

// SilentError wraps an error that has already been reported to the user.
// main.go checks for it to avoid printing the same message twice.
type SilentError struct {
	err error
}

// NewSilentError wraps err so that main.go suppresses its output.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}
