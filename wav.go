package haven

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Wav encodes the stereo buffer as a complete WAV file. If pcm16 is true the
// samples are written as 16-bit signed PCM, otherwise as 32-bit IEEE floats.
func Wav(buffer AudioBuffer, sampleRate int, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(buffer)*2, sampleRate, pcm16, buf)
	err := rawToBuffer(buffer, pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data AudioBuffer, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data)*2)
		for i, v := range data {
			int16data[i*2] = floatSampleToInt16(v[0])
			int16data[i*2+1] = floatSampleToInt16(v[1])
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		float32data := make([]float32, len(data)*2)
		for i, v := range data {
			float32data[i*2] = v[0]
			float32data[i*2+1] = v[1]
		}
		err = binary.Write(buf, binary.LittleEndian, float32data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

func floatSampleToInt16(v float32) int16 {
	if v < -1.0 {
		return -math.MaxInt16
	}
	if v > 1.0 {
		return math.MaxInt16
	}
	return int16(v * math.MaxInt16)
}

// wavHeader writes a wave header for either float32 or int16 stereo audio
// into the buffer. bufferLength is the length in individual samples (L + R
// count separately). pcm16 = true writes an int16 header, pcm16 = false a
// float32 one (with the fact chunk the float format requires).
func wavHeader(bufferLength int, sampleRate int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := 2
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))            // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength)) // sample length
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

// WavWriter writes a stereo WAV file incrementally: frames are appended as
// they arrive and the header sizes are patched on Finalize. The recorder and
// the offline renderer both write through this.
type WavWriter struct {
	w          io.WriteSeeker
	sampleRate int
	pcm16      bool
	samples    int // individual samples written (frames * 2)
}

// NewWavWriter writes a provisional header and returns a writer appending to
// w. Call Finalize once all audio has been written.
func NewWavWriter(w io.WriteSeeker, sampleRate int, pcm16 bool) (*WavWriter, error) {
	buf := new(bytes.Buffer)
	wavHeader(0, sampleRate, pcm16, buf)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("could not write wav header: %w", err)
	}
	return &WavWriter{w: w, sampleRate: sampleRate, pcm16: pcm16}, nil
}

// WriteAudio appends the buffer to the data chunk.
func (ww *WavWriter) WriteAudio(buffer AudioBuffer) error {
	buf := new(bytes.Buffer)
	if err := rawToBuffer(buffer, ww.pcm16, buf); err != nil {
		return err
	}
	if _, err := ww.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("could not write wav data: %w", err)
	}
	ww.samples += len(buffer) * 2
	return nil
}

// Frames returns the number of stereo frames written so far.
func (ww *WavWriter) Frames() int { return ww.samples / 2 }

// Finalize patches the header with the final chunk sizes. The writer must
// not be used afterwards.
func (ww *WavWriter) Finalize() error {
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not seek to wav header: %w", err)
	}
	buf := new(bytes.Buffer)
	wavHeader(ww.samples, ww.sampleRate, ww.pcm16, buf)
	if _, err := ww.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("could not rewrite wav header: %w", err)
	}
	_, err := ww.w.Seek(0, io.SeekEnd)
	return err
}
