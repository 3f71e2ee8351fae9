// Package scanner wraps a barcode decoder behind a uniform lifecycle and
// filters its raw detections into accepted scans.
//
// The decoding itself always happens elsewhere (a browser page running a
// decoder library, or a scripted simulator); this package owns the state
// machine and the debounce pipeline in front of it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotInitialized is a programmer-contract violation: Start before Init.
	ErrNotInitialized = errors.New("scanner: start called before init")

	// ErrAlreadyScanning is a programmer-contract violation: Start while a
	// scanning session is active.
	ErrAlreadyScanning = errors.New("scanner: already scanning")
)

// DeviceError reports a camera that is unavailable or denied. It is
// user-facing and not retryable without user action.
type DeviceError struct {
	Reason string
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scanner: %s: %v", e.Reason, e.Err)
	}
	return "scanner: " + e.Reason
}

func (e *DeviceError) Unwrap() error { return e.Err }

// State is the adapter lifecycle position.
type State int

const (
	StateIdle State = iota
	StateInitialized
	StateScanning
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateScanning:
		return "scanning"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Camera identifies one video input the decoder can use.
type Camera struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Decoder is the contract a concrete decoding collaborator must satisfy.
//
// ListCameras must release any media stream acquired purely for enumeration
// before returning. Start must deliver every raw detection, however noisy,
// to onDetect; filtering is the adapter's job.
type Decoder interface {
	ListCameras(ctx context.Context) ([]Camera, error)
	Init(ctx context.Context) error
	Start(ctx context.Context, cameraID string, onDetect func(code string, errorMetric float64)) error
	Pause()
	Resume()
	Stop() error
}

// Adapter drives a Decoder through
// Idle → Initialized → Scanning → Paused → Scanning → Stopped
// and emits accepted codes only through its Debouncer, never raw detections.
type Adapter struct {
	mu sync.Mutex

	dec      Decoder
	deb      *Debouncer
	state    State
	cameraID string

	onAccepted func(code string)
}

// NewAdapter wires the decoder through the debouncer.
func NewAdapter(dec Decoder, deb *Debouncer) *Adapter {
	a := &Adapter{dec: dec, deb: deb}
	deb.OnAccepted(func(code string) {
		a.mu.Lock()
		fn := a.onAccepted
		a.mu.Unlock()
		if fn != nil {
			fn(code)
		}
	})
	return a
}

// OnAccepted registers the single consumer of accepted scans.
func (a *Adapter) OnAccepted(fn func(code string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onAccepted = fn
}

// ListCameras enumerates available cameras. Failures surface as *DeviceError.
func (a *Adapter) ListCameras(ctx context.Context) ([]Camera, error) {
	cams, err := a.dec.ListCameras(ctx)
	if err != nil {
		var devErr *DeviceError
		if errors.As(err, &devErr) {
			return nil, err
		}
		return nil, &DeviceError{Reason: "camera enumeration failed", Err: err}
	}
	if len(cams) == 0 {
		return nil, &DeviceError{Reason: "no camera found"}
	}
	return cams, nil
}

// Init allocates decoder resources. Calling it again while already
// initialized is a no-op.
func (a *Adapter) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateIdle, StateStopped:
		if err := a.dec.Init(ctx); err != nil {
			return fmt.Errorf("scanner: init: %w", err)
		}
		a.state = StateInitialized
		return nil
	default:
		return nil
	}
}

// Start begins a scanning session on the given camera.
func (a *Adapter) Start(ctx context.Context, cameraID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.state {
	case StateScanning, StatePaused:
		return ErrAlreadyScanning
	case StateIdle, StateStopped:
		return ErrNotInitialized
	}

	if err := a.dec.Start(ctx, cameraID, func(code string, errorMetric float64) {
		a.deb.Offer(code, errorMetric)
	}); err != nil {
		return fmt.Errorf("scanner: start camera %q: %w", cameraID, err)
	}

	a.cameraID = cameraID
	a.state = StateScanning
	return nil
}

// Pause suspends detection delivery. No-op outside Scanning.
func (a *Adapter) Pause() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateScanning {
		return
	}
	a.dec.Pause()
	a.state = StatePaused
}

// Resume restarts detection delivery. No-op outside Paused.
func (a *Adapter) Resume() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StatePaused {
		return
	}
	a.dec.Resume()
	a.state = StateScanning
}

// Stop releases decoder and camera resources. Safe to call from any state.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopLocked()
}

func (a *Adapter) stopLocked() error {
	var err error
	if a.state == StateScanning || a.state == StatePaused {
		err = a.dec.Stop()
	}
	a.cameraID = ""
	a.state = StateStopped
	if err != nil {
		return fmt.Errorf("scanner: stop: %w", err)
	}
	return nil
}

// SwitchCamera stops the current session and starts on the new camera. When
// the restart fails the adapter remains Stopped and the error propagates;
// it is never left half-stopped.
func (a *Adapter) SwitchCamera(ctx context.Context, cameraID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.stopLocked(); err != nil {
		return err
	}
	if err := a.dec.Init(ctx); err != nil {
		return fmt.Errorf("scanner: reinit for camera switch: %w", err)
	}
	if err := a.dec.Start(ctx, cameraID, func(code string, errorMetric float64) {
		a.deb.Offer(code, errorMetric)
	}); err != nil {
		a.state = StateStopped
		return fmt.Errorf("scanner: switch to camera %q: %w", cameraID, err)
	}

	a.cameraID = cameraID
	a.state = StateScanning
	return nil
}

// State reports the current lifecycle position.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CurrentCamera is the camera ID of the active session, empty when none.
func (a *Adapter) CurrentCamera() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cameraID
}
