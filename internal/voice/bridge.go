// Package voice turns free-text transcripts into structured point-of-sale
// commands by way of the backend interpreter, and speaks the replies.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultMaxRestarts bounds recognizer restarts between successful
	// transcripts; past it the assistant deactivates instead of looping
	// forever on a persistent error.
	DefaultMaxRestarts = 5

	// DefaultRestartBackoff is the base delay before the first restart;
	// it doubles on every consecutive failure.
	DefaultRestartBackoff = time.Second
)

const (
	greeting           = "Asistente activado. Estoy listo para ayudarte."
	errorReply         = "Disculpa, hubo un error. Intenta de nuevo."
	interpreterTimeout = 10 * time.Second
)

// BridgeConfig tunes the restart supervision. Zero values use the defaults.
type BridgeConfig struct {
	MaxRestarts    int
	RestartBackoff time.Duration
}

// Bridge owns the voice assistant state: whether it is active, the
// conversation context sent with every interpretation, and the supervised
// restart policy for the recognition stream.
type Bridge struct {
	speech Speech
	interp Interpreter

	mu           sync.Mutex
	active       bool
	contexto     map[string]any
	restarts     int
	restartTimer *time.Timer

	maxRestarts int
	backoff     time.Duration

	onCommand func(Command)
}

// NewBridge wires the speech collaborator to the interpreter.
func NewBridge(speech Speech, interp Interpreter, cfg BridgeConfig) *Bridge {
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = DefaultRestartBackoff
	}
	return &Bridge{
		speech:      speech,
		interp:      interp,
		contexto:    make(map[string]any),
		maxRestarts: cfg.MaxRestarts,
		backoff:     cfg.RestartBackoff,
	}
}

// OnCommand registers the single consumer of interpreted commands.
func (b *Bridge) OnCommand(fn func(Command)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onCommand = fn
}

// Activate starts listening and greets the cashier.
func (b *Bridge) Activate(ctx context.Context) error {
	b.mu.Lock()
	if b.active {
		b.mu.Unlock()
		return nil
	}
	b.active = true
	b.restarts = 0
	b.mu.Unlock()

	if err := b.startListening(); err != nil {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
		return fmt.Errorf("voice: activate: %w", err)
	}

	if err := b.speech.Speak(ctx, greeting); err != nil {
		slog.WarnContext(ctx, "greeting failed", "error", err)
	}
	return nil
}

// Deactivate stops listening and speaking and cancels any pending restart.
func (b *Bridge) Deactivate() {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	b.active = false
	if b.restartTimer != nil {
		b.restartTimer.Stop()
		b.restartTimer = nil
	}
	b.mu.Unlock()

	b.speech.StopListening()
	b.speech.StopSpeaking()
}

// Active reports whether the assistant is currently enabled.
func (b *Bridge) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

func (b *Bridge) startListening() error {
	return b.speech.StartListening(
		func(text string) {
			ctx, cancel := context.WithTimeout(context.Background(), interpreterTimeout)
			defer cancel()
			if _, err := b.HandleTranscript(ctx, text); err != nil {
				slog.ErrorContext(ctx, "transcript handling failed", "error", err)
			}
		},
		b.handleStreamEnd,
	)
}

// handleStreamEnd supervises recognizer restarts with exponential backoff.
// Persistent failures deactivate the assistant instead of retrying forever.
func (b *Bridge) handleStreamEnd(err error) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}

	b.restarts++
	if b.restarts > b.maxRestarts {
		b.mu.Unlock()
		slog.Error("recognizer restart limit reached, deactivating assistant",
			"restarts", b.restarts-1, "last_error", err)
		b.Deactivate()
		return
	}

	delay := b.backoff << (b.restarts - 1)
	slog.Warn("recognition stream ended, restarting",
		"attempt", b.restarts, "delay", delay, "error", err)

	b.restartTimer = time.AfterFunc(delay, func() {
		b.mu.Lock()
		active := b.active
		b.mu.Unlock()
		if !active {
			return
		}
		if startErr := b.startListening(); startErr != nil {
			b.handleStreamEnd(startErr)
		}
	})
	b.mu.Unlock()
}

// HandleTranscript interprets one transcript, speaks the reply, and delivers
// the command to the registered hook. It is also the entry point for
// transcripts arriving over the local HTTP API.
func (b *Bridge) HandleTranscript(ctx context.Context, text string) (Command, error) {
	b.mu.Lock()
	// A successful transcript proves the stream is healthy again.
	b.restarts = 0
	b.mu.Unlock()

	cmd, err := b.interp.InterpretCommand(ctx, text, b.ContextSnapshot())
	if err != nil {
		if speakErr := b.speech.Speak(ctx, errorReply); speakErr != nil {
			slog.WarnContext(ctx, "error reply failed", "error", speakErr)
		}
		return Command{}, fmt.Errorf("voice: interpret %q: %w", text, err)
	}

	if cmd.Reply != "" {
		if err := b.speech.Speak(ctx, cmd.Reply); err != nil {
			slog.WarnContext(ctx, "reply failed", "error", err)
		}
	}

	b.mu.Lock()
	fn := b.onCommand
	b.mu.Unlock()
	if fn != nil {
		fn(cmd)
	}
	return cmd, nil
}

// Speak voices a message when the assistant is active; silent otherwise.
func (b *Bridge) Speak(ctx context.Context, text string) {
	if !b.Active() {
		return
	}
	if err := b.speech.Speak(ctx, text); err != nil {
		slog.WarnContext(ctx, "speak failed", "error", err)
	}
}

// UpdateContext merges the given keys into the conversation context.
func (b *Bridge) UpdateContext(kv map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range kv {
		b.contexto[k] = v
	}
}

// ClearContext drops all conversation context, as happens when a sale
// completes or is cancelled.
func (b *Bridge) ClearContext() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.contexto = make(map[string]any)
}

// ContextSnapshot returns a copy safe to hand to the interpreter.
func (b *Bridge) ContextSnapshot() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]any, len(b.contexto))
	for k, v := range b.contexto {
		out[k] = v
	}
	return out
}
