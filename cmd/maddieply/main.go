// Command maddieply runs the MaddiePly stream co-host server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/joho/godotenv"

	"github.com/Mizu36/maddieply/internal/app"
	"github.com/Mizu36/maddieply/internal/config"
	"github.com/Mizu36/maddieply/internal/observe"
	"github.com/Mizu36/maddieply/pkg/provider/llm"
	"github.com/Mizu36/maddieply/pkg/provider/llm/anyllm"
	"github.com/Mizu36/maddieply/pkg/provider/stt"
	"github.com/Mizu36/maddieply/pkg/provider/stt/whisper"
	"github.com/Mizu36/maddieply/pkg/provider/tts"
	"github.com/Mizu36/maddieply/pkg/provider/tts/azure"
	"github.com/Mizu36/maddieply/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "hot-reload the config file on change")
	flag.Parse()

	// Secrets live in .env during development; absence is fine in production
	// where they come from the real environment.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "maddieply: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "maddieply: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("maddieply starting",
		"config", *configPath,
		"channel", cfg.Twitch.Channel,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, clipDir(cfg))

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers, app.WithLogLevel(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer application.Shutdown()

	if *watch {
		if err := application.EnableHotReload(*configPath); err != nil {
			slog.Error("failed to watch config", "err", err)
			return 1
		}
	}

	slog.Info("co-host ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("shutdown signal received, stopping…")
	application.Shutdown()
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages. Synthesizers write their clips to
// clipDir.
func registerBuiltinProviders(reg *config.Registry, clipDir string) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// The hosted providers all share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	// ── Synthesis ─────────────────────────────────────────────────────────────

	reg.RegisterSynth("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		return elevenlabs.New(entry.APIKey, clipDir, opts...)
	})

	reg.RegisterSynth("azure", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []azure.Option
		if entry.BaseURL != "" {
			opts = append(opts, azure.WithEndpoint(entry.BaseURL))
		}
		return azure.New(entry.APIKey, optString(entry.Options, "region"), clipDir, opts...)
	})
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = p
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	if name := cfg.Providers.Synth.Primary.Name; name != "" {
		p, err := reg.CreateSynth(cfg.Providers.Synth.Primary)
		if err != nil {
			return nil, fmt.Errorf("create synth provider %q: %w", name, err)
		}
		ps.SynthPrimary = p
		slog.Info("provider created", "kind", "synth", "name", name)
	}

	if name := cfg.Providers.Synth.Backup.Name; name != "" {
		p, err := reg.CreateSynth(cfg.Providers.Synth.Backup)
		if err != nil {
			return nil, fmt.Errorf("create backup synth provider %q: %w", name, err)
		}
		ps.SynthBackup = p
		slog.Info("provider created", "kind", "synth-backup", "name", name)
	}

	return ps, nil
}

func clipDir(cfg *config.Config) string {
	if cfg.Clips.Dir != "" {
		return cfg.Clips.Dir
	}
	return "voice_clips"
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        MaddiePly — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("Channel", cfg.Twitch.Channel)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("STT", cfg.Providers.STT.Name, "")
	printProvider("Synth", cfg.Providers.Synth.Primary.Name, cfg.Providers.Synth.Primary.Voice)
	printProvider("Backup", cfg.Providers.Synth.Backup.Name, cfg.Providers.Synth.FallbackVoice)
	if cfg.OBS.URL != "" {
		printLine("Avatar", cfg.OBS.Source)
	} else {
		printLine("Avatar", "(disabled)")
	}
	printLine("Scheduled msgs", fmt.Sprintf("%d", len(cfg.Scheduled)))
	if cfg.Server.ListenAddr != "" {
		printLine("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", kind, value)
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	printLine(kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
