package call

import "fmt"

// External services a turn depends on.
const (
	ServiceTranscription = "stt"
	ServiceReply         = "llm"
	ServiceSynthesis     = "tts"
)

// TransientServiceError is a failed or timed out call to an external AI service.
// The turn degrades; the session continues.
type TransientServiceError struct {
	Service string
	Err     error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("%s service: %v", e.Service, e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// TransportWriteError is a failed write to the media stream. The remaining
// frames of the current turn are abandoned.
type TransportWriteError struct {
	Op  string // "media" or "mark"
	Err error
}

func (e *TransportWriteError) Error() string {
	return fmt.Sprintf("transport %s write: %v", e.Op, e.Err)
}

func (e *TransportWriteError) Unwrap() error { return e.Err }

// PersistenceError is a failed transcript write. It is logged and never ends a call.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist transcript %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
