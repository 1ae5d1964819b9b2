package haven

import (
	"errors"
	"fmt"
)

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length. The
	// samples are always float32s, normalized so that ±1 is full scale.
	AudioBuffer [][2]float32

	// AudioSink is something that audio can be written to, e.g. a file or an
	// output device.
	AudioSink interface {
		WriteAudio(buffer AudioBuffer) error
		Close() error
	}

	// AudioContext abstracts the output device layer. Output() binds the given
	// processor to the device; the device keeps pulling audio from it until
	// the returned sink is closed.
	AudioContext interface {
		Output(AudioProcessor) AudioSink
		Close() error
	}

	// AudioProcessor is the realtime render callback: fill buffer completely
	// with the next frames of audio. Implementations must not block, lock or
	// allocate; this is called from the device's audio thread.
	AudioProcessor interface {
		Process(buffer AudioBuffer)
		SampleRate() int
	}

	// DeviceInfo describes one audio endpoint for the command surface.
	DeviceInfo struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		IsDefault bool   `json:"is_default"`
	}
)

// Error kinds of the engine. Everything the command surface returns wraps one
// of these, so the transport layer can map them to status codes without
// inspecting messages.
var (
	ErrDevice            = errors.New("device error")
	ErrDecode            = errors.New("decode error")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrProject           = errors.New("project error")
	ErrResourceExhausted = errors.New("resource exhausted")
)

// Errorf wraps kind with a formatted message, keeping kind matchable with
// errors.Is.
func Errorf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Clear zeroes the buffer in place.
func (b AudioBuffer) Clear() {
	for i := range b {
		b[i] = [2]float32{}
	}
}

// Add sums src into b. The buffers must be of equal length.
func (b AudioBuffer) Add(src AudioBuffer) {
	for i := range b {
		b[i][0] += src[i][0]
		b[i][1] += src[i][1]
	}
}
