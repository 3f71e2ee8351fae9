package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// SimDetection is one scripted raw detection.
type SimDetection struct {
	Code        string
	ErrorMetric float64
	Delay       time.Duration
}

// SimDecoder is the fully simulated configuration: it replays a scripted
// stream of raw detections, no camera involved. Useful for development on a
// machine without a scanner and for exercising the whole pipeline end to end.
type SimDecoder struct {
	script []SimDetection
	loop   bool

	mu     sync.Mutex
	stopCh chan struct{}
	paused atomic.Bool
}

// NewSimDecoder builds a simulator replaying script. With loop set the script
// repeats until Stop.
func NewSimDecoder(script []SimDetection, loop bool) *SimDecoder {
	return &SimDecoder{script: script, loop: loop}
}

func (s *SimDecoder) ListCameras(ctx context.Context) ([]Camera, error) {
	return []Camera{{ID: "sim-0", Label: "Simulated camera"}}, nil
}

func (s *SimDecoder) Init(ctx context.Context) error { return nil }

func (s *SimDecoder) Start(ctx context.Context, cameraID string, onDetect func(code string, errorMetric float64)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopCh := make(chan struct{})
	s.stopCh = stopCh
	s.paused.Store(false)

	go s.replay(stopCh, onDetect)
	return nil
}

func (s *SimDecoder) replay(stopCh chan struct{}, onDetect func(string, float64)) {
	for {
		for _, det := range s.script {
			delay := det.Delay
			if delay <= 0 {
				delay = 50 * time.Millisecond
			}
			select {
			case <-stopCh:
				return
			case <-time.After(delay):
			}
			if s.paused.Load() {
				continue
			}
			onDetect(det.Code, det.ErrorMetric)
		}
		if !s.loop {
			return
		}
	}
}

func (s *SimDecoder) Pause()  { s.paused.Store(true) }
func (s *SimDecoder) Resume() { s.paused.Store(false) }

func (s *SimDecoder) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
	return nil
}
