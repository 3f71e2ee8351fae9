package scanner

import (
	"context"
	"sync"
)

// PushDecoder is the live configuration: the actual barcode decoding runs in
// the UI (a browser page holding the camera), which forwards every raw
// detection to the terminal over the local HTTP API. From the adapter's point
// of view it behaves like any other Decoder; camera ownership and frame
// decoding stay on the UI side.
type PushDecoder struct {
	mu       sync.Mutex
	cameras  []Camera
	started  bool
	paused   bool
	onDetect func(code string, errorMetric float64)
}

// NewPushDecoder builds a push decoder advertising the given cameras. The UI
// decides which physical device each ID maps to.
func NewPushDecoder(cameras []Camera) *PushDecoder {
	if len(cameras) == 0 {
		cameras = []Camera{{ID: "default", Label: "UI camera"}}
	}
	return &PushDecoder{cameras: cameras}
}

func (p *PushDecoder) ListCameras(ctx context.Context) ([]Camera, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Camera, len(p.cameras))
	copy(out, p.cameras)
	return out, nil
}

func (p *PushDecoder) Init(ctx context.Context) error { return nil }

func (p *PushDecoder) Start(ctx context.Context, cameraID string, onDetect func(code string, errorMetric float64)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	p.paused = false
	p.onDetect = onDetect
	return nil
}

func (p *PushDecoder) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *PushDecoder) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

func (p *PushDecoder) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.paused = false
	p.onDetect = nil
	return nil
}

// Push feeds one raw detection from the UI. It reports whether the detection
// was forwarded; detections are dropped while stopped or paused, which is the
// backpressure the controller relies on after a scan is accepted.
func (p *PushDecoder) Push(code string, errorMetric float64) bool {
	p.mu.Lock()
	fn := p.onDetect
	accepting := p.started && !p.paused
	p.mu.Unlock()

	if !accepting || fn == nil {
		return false
	}
	fn(code, errorMetric)
	return true
}
