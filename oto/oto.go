// Package oto is the output device manager, built on ebitengine/oto/v3. It
// owns the device stream, pulls audio from the engine's processor on the
// device's realtime thread, survives device hot-swaps, and falls back to a
// wall-clock driven silent mode when no output device is available so the
// transport and command surface stay responsive.
package oto

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	oto "github.com/ebitengine/oto/v3"

	haven "github.com/AivinJoy/haven-daw"
)

// Manager opens the default output device and keeps the engine's processor
// bound to it. One Manager per process: the underlying oto context is a
// process singleton, so a hot-swap tears down and rebuilds the player on
// the existing context rather than the context itself.
type Manager struct {
	processor     haven.AudioProcessor
	sampleRate    int
	bufferFrames  int
	onReconfigure func(sampleRate int)

	mtx        sync.Mutex
	ctx        *oto.Context
	player     *oto.Player
	silent     bool
	silentStop chan struct{}
	notify     chan struct{}
	closed     bool
}

// NewManager binds processor to the default output device. The device is
// opened at preferredRate only; no other rate is tried, and when that open
// fails the manager runs silent. onReconfigure is called with that rate
// after every successful reopen, so the engine can rebind its DSP state.
func NewManager(processor haven.AudioProcessor, preferredRate, bufferFrames int, onReconfigure func(sampleRate int)) *Manager {
	if onReconfigure == nil {
		onReconfigure = func(int) {}
	}
	return &Manager{
		processor:     processor,
		sampleRate:    preferredRate,
		bufferFrames:  bufferFrames,
		onReconfigure: onReconfigure,
		notify:        make(chan struct{}, 1),
	}
}

// Start opens the device and begins playback. If no device is available the
// manager enters silent mode, where a wall-clock goroutine keeps pulling
// the processor at the last-known rate; recovery happens on the next
// device-change signal.
func (m *Manager) Start() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if err := m.openLocked(); err != nil {
		m.enterSilentLocked()
	}
	go m.watch()
	return nil
}

func (m *Manager) openLocked() error {
	if m.ctx == nil {
		op := &oto.NewContextOptions{
			SampleRate:   m.sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
			BufferSize:   time.Second * time.Duration(m.bufferFrames) / time.Duration(m.sampleRate),
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return err
		}
		<-ready
		m.ctx = ctx
	}
	m.player = m.ctx.NewPlayer(&pullReader{
		processor: m.processor,
		buf:       make(haven.AudioBuffer, m.bufferFrames),
	})
	m.player.Play()
	return nil
}

// SignalDeviceChange tells the manager the OS default device changed
// (added, removed, or switched). The current stream is marked stale, torn
// down and a fresh one is opened and bound to the same engine state.
func (m *Manager) SignalDeviceChange() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return
	}
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *Manager) watch() {
	for range m.notify {
		m.mtx.Lock()
		if m.closed {
			m.mtx.Unlock()
			return
		}
		if m.player != nil {
			m.player.Close()
			m.player = nil
		}
		err := m.openLocked()
		if err != nil {
			m.enterSilentLocked()
		} else {
			m.exitSilentLocked()
			m.onReconfigure(m.sampleRate)
		}
		m.mtx.Unlock()
	}
}

// enterSilentLocked starts the fallback clock: the processor keeps being
// pulled in real time into a discarded buffer, so the playhead advances and
// commands drain while no device exists.
func (m *Manager) enterSilentLocked() {
	if m.silent {
		return
	}
	m.silent = true
	m.silentStop = make(chan struct{})
	stop := m.silentStop
	go func() {
		buf := make(haven.AudioBuffer, m.bufferFrames)
		interval := time.Second * time.Duration(m.bufferFrames) / time.Duration(m.sampleRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.processor.Process(buf)
			}
		}
	}()
}

func (m *Manager) exitSilentLocked() {
	if !m.silent {
		return
	}
	m.silent = false
	close(m.silentStop)
}

// Silent reports whether the manager is in the no-device fallback mode.
func (m *Manager) Silent() bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.silent
}

// OutputDevices lists the available output endpoints. oto drives the
// platform's default endpoint and cannot enumerate, so the list is the
// single logical default device, empty while no device is available.
func (m *Manager) OutputDevices() []haven.DeviceInfo {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.silent {
		return []haven.DeviceInfo{}
	}
	return []haven.DeviceInfo{{ID: "default", Name: "System Default Output", IsDefault: true}}
}

// InputDevices lists capture endpoints. The built-in synthetic source is
// always present; real capture backends add theirs.
func (m *Manager) InputDevices() []haven.DeviceInfo {
	return []haven.DeviceInfo{{ID: "synthetic", Name: "Synthetic Input", IsDefault: true}}
}

// Close stops playback and the fallback clock.
func (m *Manager) Close() error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.notify)
	m.exitSilentLocked()
	if m.player != nil {
		return m.player.Close()
	}
	return nil
}

// pullReader adapts the engine's Process callback to the io.Reader the oto
// player pulls from. It runs on the device's audio thread: no allocation
// after the first pull, no locks.
type pullReader struct {
	processor haven.AudioProcessor
	buf       haven.AudioBuffer
}

func (r *pullReader) Read(p []byte) (int, error) {
	frames := len(p) / 8 // two float32 lanes per frame
	if frames == 0 {
		return 0, nil
	}
	if len(r.buf) < frames {
		r.buf = make(haven.AudioBuffer, frames)
	}
	buf := r.buf[:frames]
	r.processor.Process(buf)
	for i := 0; i < frames; i++ {
		binary.LittleEndian.PutUint32(p[8*i:], math.Float32bits(buf[i][0]))
		binary.LittleEndian.PutUint32(p[8*i+4:], math.Float32bits(buf[i][1]))
	}
	return frames * 8, nil
}
