package server

import (
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/AivinJoy/haven-daw/engine"
)

// meterFrame is one websocket push: transport position plus every meter.
type meterFrame struct {
	Seconds float64                `json:"seconds"`
	Playing bool                   `json:"playing"`
	Tracks  []engine.MeterSnapshot `json:"tracks"`
	Master  engine.MeterSnapshot   `json:"master"`
}

// meterStreamInterval is roughly UI frame rate.
const meterStreamInterval = 33 * time.Millisecond

// handleMeterStream pushes meter and position frames until the client goes
// away. Reads are only drained to notice the close.
func (s *Server) handleMeterStream(c *websocket.Conn) {
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()
	ticker := time.NewTicker(meterStreamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			frame := meterFrame{
				Seconds: s.model.PositionSeconds(),
				Playing: s.model.IsPlaying(),
				Tracks:  s.model.TrackMeters(),
				Master:  s.model.MasterMeter(),
			}
			if err := c.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}
