package engine

import (
	haven "github.com/AivinJoy/haven-daw"
)

// endRewindSeconds is how close to the project end the playhead may sit for
// play to jump back to the origin instead of resuming.
const endRewindSeconds = 0.1

// Player runs on the audio thread, called by the output device once per
// callback. It drains the command queue, renders the current graph
// snapshot, mixes in the monitor bus and publishes meters and transport
// position. It never allocates (the scratch buffers grow only when the
// device block size does), never locks and never blocks.
type Player struct {
	broker      *Broker
	status      *Status
	masterMeter *Meter

	graph      *Graph
	sampleRate int
	playing    bool
	pos        int64
	masterGain float32

	scratch    haven.AudioBuffer
	monitor    *Ring
	monitorBuf []float32
}

func NewPlayer(broker *Broker, status *Status, masterMeter *Meter, sampleRate int) *Player {
	return &Player{
		broker:      broker,
		status:      status,
		masterMeter: masterMeter,
		sampleRate:  sampleRate,
		masterGain:  1,
	}
}

// SampleRate returns the player's current engine rate.
func (p *Player) SampleRate() int { return p.sampleRate }

// Process fills buffer with the next frames of the mix. This is the audio
// callback.
func (p *Player) Process(buffer haven.AudioBuffer) {
	p.processMessages()

	if len(p.scratch) < len(buffer) {
		p.scratch = make(haven.AudioBuffer, len(buffer))
	}
	scratch := p.scratch[:len(buffer)]

	if p.graph != nil && p.playing {
		p.graph.Render(buffer, scratch, p.pos, true)
		p.pos += int64(len(buffer))
		if end := p.graph.EndFrame; end > 0 && p.pos >= end {
			// reached the end of the arrangement: park the playhead there
			// and pause; the next play decides whether to rewind
			p.pos = end
			p.playing = false
		}
	} else {
		buffer.Clear()
	}

	if p.monitor != nil {
		need := len(buffer) * 2
		if len(p.monitorBuf) < need {
			p.monitorBuf = make([]float32, need)
		}
		n := p.monitor.Pop(p.monitorBuf[:need])
		for i := 0; i+1 < n; i += 2 {
			buffer[i/2][0] += p.monitorBuf[i]
			buffer[i/2][1] += p.monitorBuf[i+1]
		}
	}

	SoftClip(buffer)
	p.masterMeter.ProcessBlock(buffer)

	p.status.positionFrames.Store(p.pos)
	p.status.playing.Store(p.playing)
}

func (p *Player) processMessages() {
loop:
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			switch m := msg.(type) {
			case msgPlay:
				if p.graph != nil && p.graph.EndFrame > 0 {
					rewindWindow := int64(endRewindSeconds * float64(p.sampleRate))
					if p.pos >= p.graph.EndFrame-rewindWindow {
						p.pos = 0
					}
				}
				p.playing = true
			case msgPause:
				p.playing = false
			case msgSeek:
				if m.Frame < 0 {
					m.Frame = 0
				}
				p.pos = m.Frame
			case msgSetTrackGain:
				if t := p.track(m.Track); t != nil {
					t.Gain = m.Gain
				}
			case msgSetTrackPan:
				if t := p.track(m.Track); t != nil {
					t.Pan = m.Pan
				}
			case msgSetTrackMute:
				if t := p.track(m.Track); t != nil {
					t.Muted = m.Muted
				}
			case msgSetTrackSolo:
				if t := p.track(m.Track); t != nil {
					t.Solo = m.Solo
				}
			case msgSetMasterGain:
				p.masterGain = m.Gain
				if p.graph != nil {
					p.graph.MasterGain = m.Gain
				}
			case msgUpdateEQ:
				if t := p.track(m.Track); t != nil && m.Band >= 0 && m.Band < len(t.Chain.EQ) {
					t.Chain.EQ[m.Band].Update(m.Params)
				}
			case msgUpdateCompressor:
				if t := p.track(m.Track); t != nil {
					t.Chain.Compressor.Update(m.Params)
				}
			case msgGraph:
				old := p.graph
				p.graph = m.Graph
				p.masterGain = m.Graph.MasterGain
				if old != nil {
					// the old snapshot is freed on the control thread
					TrySend(p.broker.ToModel, MsgToModel{RetiredGraph: old})
				}
			case msgSampleRate:
				if m.SampleRate > 0 && m.SampleRate != p.sampleRate {
					seconds := float64(p.pos) / float64(p.sampleRate)
					p.pos = int64(seconds * float64(m.SampleRate))
					p.sampleRate = m.SampleRate
					if p.graph != nil {
						p.graph.rebindRate(m.SampleRate)
					}
					p.masterMeter.SetSampleRate(m.SampleRate)
					p.status.sampleRate.Store(int64(m.SampleRate))
					p.status.positionFrames.Store(p.pos)
				}
			case msgMonitor:
				p.monitor = m.Ring
			default:
				// ignore unknown messages
			}
		default:
			break loop
		}
	}
}

func (p *Player) track(id uint32) *RenderTrack {
	if p.graph == nil {
		return nil
	}
	return p.graph.byID[id]
}
