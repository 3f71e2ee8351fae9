package scanner

import (
	"sync"
	"time"
)

// Defaults for the debounce pipeline. Tuned for a handheld camera pointed at
// real shelves: raw decoder output arrives at frame rate and is noisy.
const (
	DefaultWindow    = 300 * time.Millisecond
	DefaultThreshold = 2
	DefaultCooldown  = 500 * time.Millisecond
	DefaultMaxError  = 0.15
)

// DebouncerConfig tunes the three acceptance filters. Zero values fall back
// to the defaults above.
type DebouncerConfig struct {
	// Window is the trailing interval over which repeated raw detections are
	// counted toward acceptance.
	Window time.Duration

	// Threshold is how many times a code must appear within Window before it
	// is emitted. Minimum 1.
	Threshold int

	// Cooldown suppresses re-emission of an identical code after an emit, so
	// residual frames of the same physical scan do not re-add the item.
	Cooldown time.Duration

	// MaxError is the highest acceptable mean per-character decode error.
	MaxError float64

	// Now is the clock; defaults to time.Now. Injected in tests.
	Now func() time.Time
}

type detection struct {
	code string
	at   time.Time
}

// Debouncer filters a stream of raw decoded-barcode events into a
// deduplicated, confidence-checked stream of accepted scans.
type Debouncer struct {
	mu sync.Mutex

	window    time.Duration
	threshold int
	cooldown  time.Duration
	maxError  float64
	now       func() time.Time

	buffer   []detection
	lastCode string
	lastEmit time.Time

	onAccepted func(code string)
}

// NewDebouncer builds a debouncer with the given configuration.
func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.MaxError <= 0 {
		cfg.MaxError = DefaultMaxError
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Debouncer{
		window:    cfg.Window,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
		maxError:  cfg.MaxError,
		now:       cfg.Now,
	}
}

// OnAccepted registers the single hook invoked for every accepted scan.
func (d *Debouncer) OnAccepted(fn func(code string)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onAccepted = fn
}

// Offer feeds one raw detection through the filters. It returns true when the
// detection resulted in an accepted scan.
func (d *Debouncer) Offer(code string, errorMetric float64) bool {
	if code == "" {
		return false
	}

	d.mu.Lock()

	// 1. Confidence filter: a bad decode never counts toward the threshold.
	if errorMetric > d.maxError {
		d.mu.Unlock()
		return false
	}

	now := d.now()

	// 2. Repeat suppression: identical code within the cooldown after an emit.
	if code == d.lastCode && now.Sub(d.lastEmit) < d.cooldown {
		d.mu.Unlock()
		return false
	}

	// 3. Temporal confirmation: prune the window, count occurrences.
	kept := d.buffer[:0]
	for _, det := range d.buffer {
		if now.Sub(det.at) < d.window {
			kept = append(kept, det)
		}
	}
	d.buffer = append(kept, detection{code: code, at: now})

	count := 0
	for _, det := range d.buffer {
		if det.code == code {
			count++
		}
	}
	if count < d.threshold {
		d.mu.Unlock()
		return false
	}

	// Accepted. Clearing the buffer keeps the same burst from re-triggering.
	d.buffer = d.buffer[:0]
	d.lastCode = code
	d.lastEmit = now
	fn := d.onAccepted
	d.mu.Unlock()

	if fn != nil {
		fn(code)
	}
	return true
}
