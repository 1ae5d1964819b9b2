package engine

import (
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	haven "github.com/AivinJoy/haven-daw"
)

type (
	// CaptureSource is a stream of interleaved float32 samples from an input
	// device. ReadSamples blocks until samples are available and returns
	// io.EOF once the source is closed. oto has no capture side, so real
	// input backends plug in behind this interface; the synthetic source
	// below paces itself on the wall clock for development and tests.
	CaptureSource interface {
		SampleRate() int
		Channels() int
		ReadSamples(dst []float32) (int, error)
		Close() error
	}

	// CaptureOpener opens the default input device; it is called at the
	// start of every recording.
	CaptureOpener func() (CaptureSource, error)

	// RecordingStatus is the live state the recording VU polls.
	RecordingStatus struct {
		Active  bool    `json:"active"`
		Path    string  `json:"path,omitempty"`
		Seconds float64 `json:"seconds"`
		RMS     float32 `json:"rms"`
		Monitor bool    `json:"monitor"`
	}

	// Recorder captures from an input device on its own thread, streams the
	// take into a WAV file through a lock-free ring, publishes a live RMS,
	// and optionally injects the input into the output mix through the
	// monitor ring. On stop the finalized file is placed on a track as a
	// clip at the position where recording started.
	Recorder struct {
		model  *Model
		broker *Broker
		open   CaptureOpener
		pcm16  bool

		mtx        sync.Mutex
		active     bool
		path       string
		startSec   float64
		capture    CaptureSource
		ring       *Ring
		monRing    *Ring
		done       chan struct{} // closed when the capture loop exits
		writerDone chan struct{} // closed once the WAV is finalized

		monitor   atomic.Bool
		rms       atomic.Uint32
		frames    atomic.Int64
		captureSR int
	}
)

const (
	recorderRingSamples = 1 << 17
	recorderBlock       = 4096
)

// NewRecorder wires a recorder to the model whose arrangement receives the
// finished takes. pcm16 selects the project record format.
func NewRecorder(model *Model, broker *Broker, open CaptureOpener, pcm16 bool) *Recorder {
	return &Recorder{model: model, broker: broker, open: open, pcm16: pcm16}
}

// Start begins recording to path. startSec is the transport position the
// finished clip will be placed at.
func (r *Recorder) Start(path string, startSec float64) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if r.active {
		return haven.Errorf(haven.ErrInvalidArgument, "already recording")
	}
	capture, err := r.open()
	if err != nil {
		return haven.Errorf(haven.ErrDevice, "open input device: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		capture.Close()
		return haven.Errorf(haven.ErrDevice, "create %s: %v", path, err)
	}
	ww, err := haven.NewWavWriter(f, capture.SampleRate(), r.pcm16)
	if err != nil {
		capture.Close()
		f.Close()
		os.Remove(path)
		return err
	}

	r.active = true
	r.path = path
	r.startSec = startSec
	r.capture = capture
	r.captureSR = capture.SampleRate()
	r.ring = NewRing(recorderRingSamples)
	r.monRing = NewRing(recorderRingSamples)
	r.done = make(chan struct{})
	r.writerDone = make(chan struct{})
	r.frames.Store(0)
	r.rms.Store(0)
	if r.monitor.Load() {
		r.model.sendTransport(msgMonitor{Ring: r.monRing})
	}

	go r.captureLoop(capture)
	go r.writeLoop(f, ww)
	return nil
}

// captureLoop runs on the capture thread: pull from the device, push into
// the ring and, when monitoring, into the monitor bus. Never blocks on the
// consumers.
func (r *Recorder) captureLoop(capture CaptureSource) {
	channels := capture.Channels()
	in := make([]float32, recorderBlock*channels)
	stereo := make([]float32, recorderBlock*2)
	for {
		n, err := capture.ReadSamples(in)
		if n > 0 {
			frames := n / channels
			toStereo(in[:frames*channels], channels, stereo)
			r.ring.Push(stereo[:frames*2])
			if r.monitor.Load() {
				r.monRing.Push(stereo[:frames*2])
			}
		}
		if err != nil {
			close(r.done)
			return
		}
	}
}

// writeLoop drains the ring into the WAV file and publishes the live RMS
// and duration.
func (r *Recorder) writeLoop(f *os.File, ww *haven.WavWriter) {
	defer close(r.writerDone)
	defer f.Close()
	block := make([]float32, recorderBlock*2)
	bufPtr := r.broker.GetAudioBuffer()
	defer r.broker.PutAudioBuffer(bufPtr)
	flush := func() {
		for {
			n := r.ring.Pop(block)
			if n < 2 {
				return
			}
			frames := n / 2
			buf := (*bufPtr)[:0]
			for i := 0; i < frames; i++ {
				buf = append(buf, [2]float32{block[2*i], block[2*i+1]})
			}
			*bufPtr = buf
			if err := ww.WriteAudio(buf); err != nil {
				return
			}
			var sumSq float64
			for i := 0; i < n; i++ {
				sumSq += float64(block[i]) * float64(block[i])
			}
			r.rms.Store(math.Float32bits(float32(math.Sqrt(sumSq / float64(n)))))
			r.frames.Add(int64(frames))
		}
	}
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			flush()
			ww.Finalize()
			return
		case <-ticker.C:
			flush()
		}
	}
}

// Stop finalizes the take and places it on the arrangement. The source is
// decoded (and its waveform summary computed) before this returns, so the
// UI never sees a clip without a waveform.
func (r *Recorder) Stop() error {
	r.mtx.Lock()
	if !r.active {
		r.mtx.Unlock()
		return haven.Errorf(haven.ErrInvalidArgument, "not recording")
	}
	r.active = false
	capture := r.capture
	path := r.path
	startSec := r.startSec
	writerDone := r.writerDone
	r.capture = nil
	r.mtx.Unlock()

	capture.Close()
	// wait for the writer to drain the ring and patch the WAV header; a
	// stuck device should not hang the surface forever
	TimeoutReceive(writerDone, 3*time.Second)
	r.model.sendTransport(msgMonitor{Ring: nil})
	r.model.recordingFinished(path, startSec)
	return nil
}

// ToggleMonitor flips input monitoring and returns the new state. While
// recording, the monitor bus connects or disconnects immediately.
func (r *Recorder) ToggleMonitor() bool {
	on := !r.monitor.Load()
	r.monitor.Store(on)
	r.mtx.Lock()
	active := r.active
	ring := r.monRing
	r.mtx.Unlock()
	if active {
		if on {
			r.model.sendTransport(msgMonitor{Ring: ring})
		} else {
			r.model.sendTransport(msgMonitor{Ring: nil})
		}
	}
	return on
}

// Status returns the live recording state.
func (r *Recorder) Status() RecordingStatus {
	r.mtx.Lock()
	active := r.active
	path := r.path
	sr := r.captureSR
	r.mtx.Unlock()
	var seconds float64
	if sr > 0 {
		seconds = float64(r.frames.Load()) / float64(sr)
	}
	return RecordingStatus{
		Active:  active,
		Path:    path,
		Seconds: seconds,
		RMS:     math.Float32frombits(r.rms.Load()),
		Monitor: r.monitor.Load(),
	}
}

// toStereo folds an interleaved buffer of any channel count to stereo:
// mono duplicates, stereo copies, wider layouts average even lanes to L and
// odd lanes to R.
func toStereo(in []float32, channels int, out []float32) {
	frames := len(in) / channels
	switch channels {
	case 1:
		for i := 0; i < frames; i++ {
			out[2*i] = in[i]
			out[2*i+1] = in[i]
		}
	case 2:
		copy(out, in[:frames*2])
	default:
		for i := 0; i < frames; i++ {
			var suml, sumr, nl, nr float32
			for ch := 0; ch < channels; ch++ {
				if ch%2 == 0 {
					suml += in[i*channels+ch]
					nl++
				} else {
					sumr += in[i*channels+ch]
					nr++
				}
			}
			out[2*i] = suml / nl
			out[2*i+1] = sumr / nr
		}
	}
}

// SyntheticCapture is the built-in capture source: a quiet sine paced on
// the wall clock. It stands in for a real input backend on systems where
// none is wired up, keeping the whole record path exercisable.
type SyntheticCapture struct {
	sampleRate int
	freq       float64
	amp        float32
	phase      float64
	closed     chan struct{}
	last       time.Time
	pending    float64
}

func NewSyntheticCapture(sampleRate int, freq float64, amp float32) *SyntheticCapture {
	return &SyntheticCapture{
		sampleRate: sampleRate,
		freq:       freq,
		amp:        amp,
		closed:     make(chan struct{}),
		last:       time.Now(),
	}
}

func (s *SyntheticCapture) SampleRate() int { return s.sampleRate }
func (s *SyntheticCapture) Channels() int   { return 1 }

func (s *SyntheticCapture) ReadSamples(dst []float32) (int, error) {
	for {
		select {
		case <-s.closed:
			return 0, io.EOF
		default:
		}
		now := time.Now()
		s.pending += now.Sub(s.last).Seconds() * float64(s.sampleRate)
		s.last = now
		if int(s.pending) >= 1 {
			break
		}
		select {
		case <-s.closed:
			return 0, io.EOF
		case <-time.After(5 * time.Millisecond):
		}
	}
	n := int(s.pending)
	if n > len(dst) {
		n = len(dst)
	}
	s.pending -= float64(n)
	step := 2 * math.Pi * s.freq / float64(s.sampleRate)
	for i := 0; i < n; i++ {
		dst[i] = s.amp * float32(math.Sin(s.phase))
		s.phase += step
	}
	return n, nil
}

func (s *SyntheticCapture) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
