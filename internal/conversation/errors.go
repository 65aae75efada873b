package conversation

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio means the request carried no audio bytes.
	ErrEmptyAudio = errors.New("empty audio")
	// ErrEmptyTranscript means recognition produced no usable text.
	ErrEmptyTranscript = errors.New("could not transcribe audio")
	// ErrNoTurns means a call is being ended before anything was said.
	ErrNoTurns = errors.New("call has no turns")
	// ErrCallBusy means another reply for the same call is in flight.
	ErrCallBusy = errors.New("call is busy")
	// ErrUpstream marks failures of speech, model or synthesis services.
	ErrUpstream = errors.New("upstream service failed")
)

// upstream wraps a provider failure so handlers can map it to 502
// while keeping the original error text in the logs.
func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUpstream, err)
}
