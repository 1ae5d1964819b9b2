package asset

import "errors"

var (
	ErrNotWavFile         = errors.New("not a wav file")
	ErrUnsupportedWavData = errors.New("unsupported wav sample format")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrEmptySource        = errors.New("audio file contains no samples")
)
