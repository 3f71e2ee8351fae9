package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/currency"

	"github.com/jcmexdev/pos-terminal/internal/backend"
	"github.com/jcmexdev/pos-terminal/internal/config"
	"github.com/jcmexdev/pos-terminal/internal/pkg/cache"
	"github.com/jcmexdev/pos-terminal/internal/pkg/telemetry"
	"github.com/jcmexdev/pos-terminal/internal/pos"
	"github.com/jcmexdev/pos-terminal/internal/pos/saleslog/sqlite"
	"github.com/jcmexdev/pos-terminal/internal/scanner"
	"github.com/jcmexdev/pos-terminal/internal/terminal/httpx"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

func main() {
	cfg := config.Load()

	telemetry.InitLogger("pos-terminal")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, "pos-terminal")
	if err != nil {
		slog.Error("failed to initialise tracer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			slog.Error("tracer shutdown error", "error", err)
		}
	}()

	saleLog, err := sqlite.Open(cfg.SalesLogPath)
	if err != nil {
		slog.Error("failed to open sales log", "path", cfg.SalesLogPath, "error", err)
		os.Exit(1)
	}
	defer saleLog.Close()

	finder, submitter, interp := buildBackend(cfg)

	push, decoder := buildDecoder(cfg)
	deb := scanner.NewDebouncer(scanner.DebouncerConfig{
		Window:    cfg.DebounceWindow,
		Threshold: cfg.DebounceThreshold,
		Cooldown:  cfg.ScanCooldown,
	})
	adapter := scanner.NewAdapter(decoder, deb)

	var bridge *voice.Bridge
	var speaker pos.Speaker
	if cfg.VoiceEnabled {
		bridge = voice.NewBridge(voice.NewLoggedSpeech(), interp, voice.BridgeConfig{})
		speaker = bridge
	}

	ctrl := pos.NewController(finder, submitter, saleLog, adapter, speaker, pos.ControllerConfig{
		Device:        cfg.Device,
		Currency:      currency.MXN,
		SettleDelay:   cfg.SettleDelay,
		LookupTimeout: cfg.LookupTimeout,
	})
	defer ctrl.Close()

	adapter.OnAccepted(func(code string) {
		ctrl.HandleScan(context.WithoutCancel(ctx), code)
	})
	if bridge != nil {
		bridge.OnCommand(func(cmd voice.Command) {
			if err := ctrl.DispatchCommand(context.WithoutCancel(ctx), cmd); err != nil {
				slog.Warn("voice command rejected", "accion", cmd.Action, "error", err)
			}
		})
		if err := bridge.Activate(ctx); err != nil {
			slog.Warn("voice assistant failed to activate, continuing without it", "error", err)
		}
		defer bridge.Deactivate()
	}

	handler := httpx.NewHandler(ctrl, adapter, push, bridge, saleLog)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: httpx.NewRouter(handler),
	}

	go func() {
		slog.Info("pos terminal running", "addr", cfg.ListenAddr, "decoder", cfg.DecoderMode, "device", cfg.Device)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	if err := adapter.Stop(); err != nil {
		slog.Warn("scanner stop failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
}

// buildBackend assembles the product finder, sale submitter and voice
// interpreter, either the real HTTP client or the in-memory fake.
func buildBackend(cfg *config.Config) (pos.ProductFinder, pos.SaleSubmitter, voice.Interpreter) {
	if cfg.UseFakeBackend {
		slog.Warn("running with the in-memory fake backend, sales are not persisted upstream")
		fake := backend.NewFake()
		return fake, fake, fake
	}

	var opts []backend.Option
	if cfg.RedisAddr != "" {
		lookupCache := cache.NewRedisCache(cfg.RedisAddr, "pos-terminal")
		opts = append(opts, backend.WithCache(lookupCache, cfg.LookupCacheTTL))
	}
	client := backend.NewClient(cfg.BackendBaseURL, opts...)
	return client, client, client
}

// buildDecoder picks the decoder configuration. The push decoder is also
// returned separately because the detections endpoint feeds it directly.
func buildDecoder(cfg *config.Config) (*scanner.PushDecoder, scanner.Decoder) {
	if cfg.DecoderMode == "sim" {
		script := []scanner.SimDetection{
			{Code: "7501055300891", ErrorMetric: 0.04, Delay: 2 * time.Second},
			{Code: "7501055300891", ErrorMetric: 0.06, Delay: 80 * time.Millisecond},
			{Code: "7500478025345", ErrorMetric: 0.05, Delay: 4 * time.Second},
			{Code: "7500478025345", ErrorMetric: 0.03, Delay: 90 * time.Millisecond},
		}
		return nil, scanner.NewSimDecoder(script, true)
	}

	push := scanner.NewPushDecoder([]scanner.Camera{
		{ID: "cam-0", Label: "Cámara frontal"},
		{ID: "cam-1", Label: "Cámara trasera"},
	})
	return push, push
}
