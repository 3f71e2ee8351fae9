package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Speech is the contract for the speech collaborator. Recognition and
// synthesis always happen outside this process (browser Web Speech API, a
// dedicated device); implementations here only bridge or simulate it.
//
// StartListening delivers final transcripts to onText. onEnd fires when the
// recognition stream ends or errors; the bridge uses it to supervise
// restarts, so implementations must call it at most once per Start.
type Speech interface {
	StartListening(onText func(text string), onEnd func(err error)) error
	StopListening()
	Speak(ctx context.Context, text string) error
	StopSpeaking()
}

// loggedSpeech is the live configuration: the UI owns the microphone and the
// speakers, transcripts arrive over the local HTTP API, and replies travel
// back in the HTTP response. The terminal side only logs what would be said.
type loggedSpeech struct{}

// NewLoggedSpeech returns the Speech used when the UI handles audio.
func NewLoggedSpeech() Speech { return loggedSpeech{} }

func (loggedSpeech) StartListening(onText func(string), onEnd func(error)) error { return nil }
func (loggedSpeech) StopListening()                                              {}

func (loggedSpeech) Speak(ctx context.Context, text string) error {
	slog.DebugContext(ctx, "speak", "text", text)
	return nil
}

func (loggedSpeech) StopSpeaking() {}

// SimUtterance is one scripted transcript for the simulated speech device.
type SimUtterance struct {
	Text  string
	Delay time.Duration
}

// SimSpeech replays scripted transcripts, for development without a
// microphone. Speak logs the reply the assistant would voice.
type SimSpeech struct {
	script []SimUtterance

	mu     sync.Mutex
	stopCh chan struct{}
}

func NewSimSpeech(script []SimUtterance) *SimSpeech {
	return &SimSpeech{script: script}
}

func (s *SimSpeech) StartListening(onText func(string), onEnd func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopCh := make(chan struct{})
	s.stopCh = stopCh

	go func() {
		for _, u := range s.script {
			delay := u.Delay
			if delay <= 0 {
				delay = time.Second
			}
			select {
			case <-stopCh:
				return
			case <-time.After(delay):
			}
			onText(u.Text)
		}
		if onEnd != nil {
			onEnd(nil)
		}
	}()
	return nil
}

func (s *SimSpeech) StopListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func (s *SimSpeech) Speak(ctx context.Context, text string) error {
	slog.InfoContext(ctx, "assistant says", "text", text)
	return nil
}

func (s *SimSpeech) StopSpeaking() {}
