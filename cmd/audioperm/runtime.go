package main

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/audioperm/internal/config"
	"github.com/eliteGoblin/audioperm/internal/dispatch"
	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/emulator"
	"github.com/eliteGoblin/audioperm/internal/infra"
	"github.com/eliteGoblin/audioperm/internal/usecase"
)

type globalOptions struct {
	configPath string
	platform   string
	emulate    bool
	verbose    bool
}

// runtime is the wired mediation stack for one CLI invocation.
type runtime struct {
	info       *infra.PlatformInfo
	adapters   domain.AdapterSet
	dispatcher *dispatch.Dispatcher
	device     *emulator.Device // nil unless emulating
}

func (r *runtime) Close() error {
	if r.device != nil {
		return r.device.Close()
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	path := globals.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadOptional(path)
	if err != nil {
		return nil, err
	}
	if globals.platform != "" {
		cfg.Platform = globals.platform
	}
	if globals.emulate {
		cfg.Emulator.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openRuntime(serving bool) (*runtime, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := createLogger(cfg, globals.verbose, serving)

	rt, err := buildRuntime(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return rt, logger, nil
}

// buildRuntime selects the platform, attaches the native bridge (the
// emulated device, or none) and wires the mediator behind a dispatcher.
func buildRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	info := infra.DetectPlatform()
	forced, ok, err := cfg.ResolvePlatform()
	if err != nil {
		return nil, err
	}
	if ok {
		info = infra.PlatformFor(forced)
	}

	rt := &runtime{info: info}
	var native infra.NativeBridge
	if cfg.Emulator.Enabled {
		device, err := openDevice(cfg, info.Platform, logger.Named("emulator"))
		if err != nil {
			return nil, err
		}
		rt.device = device
		native = device
	}

	bridge := infra.NewBridge(native)
	rt.adapters = infra.NewAdapterSet(info.Platform, infra.BridgeNatives(bridge, logger.Named("bridge")), logger)
	mediator := usecase.NewMediator(rt.adapters, logger.Named("mediator"))
	rt.dispatcher = dispatch.New(mediator, logger.Named("dispatch"))

	logger.Debug("runtime ready",
		zap.String("platform", info.String()),
		zap.Bool("emulated", rt.device != nil))
	return rt, nil
}

func openDevice(cfg *config.Config, platform domain.Platform, logger *zap.Logger) (*emulator.Device, error) {
	policy, err := emulator.ParseConsentPolicy(cfg.Emulator.Consent)
	if err != nil {
		return nil, err
	}
	// Nothing in a CLI process can answer a manual dialog.
	if policy == emulator.ConsentManual {
		return nil, fmt.Errorf("consent policy %q needs a programmatic host", policy)
	}

	store, err := emulator.OpenStore(cfg.EmulatorDataDir(), cfg.Emulator.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("open emulator store: %w", err)
	}

	return emulator.NewDevice(emulator.Options{
		Platform:   platform,
		Policy:     policy,
		APILevel:   cfg.Emulator.APILevel,
		Microphone: cfg.Emulator.Microphone,
		Store:      store,
	}, logger), nil
}

func resetEmulator(cfg *config.Config) error {
	store, err := emulator.OpenStore(cfg.EmulatorDataDir(), cfg.Emulator.Encrypted)
	if err != nil {
		return fmt.Errorf("open emulator store: %w", err)
	}
	defer store.Close()
	return store.Reset()
}

// createLogger writes JSON logs to the configured file. Without a file,
// serve logs to stderr (stdout carries responses), --verbose logs to
// stderr in console form, and one-shot commands stay silent.
func createLogger(cfg *config.Config, verbose, serving bool) *zap.Logger {
	level := zapcore.InfoLevel
	if cfg.Logging.Level != "" {
		_ = level.UnmarshalText([]byte(strings.ToLower(cfg.Logging.Level)))
	}
	if verbose {
		level = zapcore.DebugLevel
	}

	switch {
	case cfg.Logging.File != "":
		zcfg := zap.NewProductionConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		zcfg.OutputPaths = []string{cfg.Logging.File}
		zcfg.ErrorOutputPaths = []string{cfg.Logging.File}
		zcfg.EncoderConfig.TimeKey = "time"
		zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

		logger, err := zcfg.Build()
		if err != nil {
			// Fallback to stderr if file logging fails
			fmt.Fprintf(os.Stderr, "audioperm: log file unavailable: %v\n", err)
			return stderrLogger(level)
		}
		return logger

	case verbose:
		zcfg := zap.NewDevelopmentConfig()
		zcfg.Level = zap.NewAtomicLevelAt(level)
		logger, err := zcfg.Build()
		if err != nil {
			return stderrLogger(level)
		}
		return logger

	case serving:
		return stderrLogger(level)

	default:
		return zap.NewNop()
	}
}

func stderrLogger(level zapcore.Level) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "time"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
