// Command greenroom is the main entry point for the greenroom interview
// rehearsal server.
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
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/greenroomhq/greenroom/internal/app"
	"github.com/greenroomhq/greenroom/internal/config"
	discordbot "github.com/greenroomhq/greenroom/internal/discord"
	"github.com/greenroomhq/greenroom/internal/mcpserver"
	"github.com/greenroomhq/greenroom/internal/resilience"
	"github.com/greenroomhq/greenroom/pkg/provider/embeddings"
	ollamaembed "github.com/greenroomhq/greenroom/pkg/provider/embeddings/ollama"
	oaembed "github.com/greenroomhq/greenroom/pkg/provider/embeddings/openai"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
	"github.com/greenroomhq/greenroom/pkg/provider/llm/anyllm"
	oallm "github.com/greenroomhq/greenroom/pkg/provider/llm/openai"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe/whisper"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe/whisperserver"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
	edgetts "github.com/greenroomhq/greenroom/pkg/provider/tts/edge"
	oatts "github.com/greenroomhq/greenroom/pkg/provider/tts/openai"
	"github.com/greenroomhq/greenroom/pkg/provider/vad"
	"github.com/greenroomhq/greenroom/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of running the HTTP server")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "greenroom: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "greenroom: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logOut := os.Stderr
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("greenroom starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The Discord surface doubles as the audio capture platform, so the bot is
	// created before the application and bound to it afterwards.
	var bot *discordbot.Bot
	if cfg.Discord.Token != "" && !*mcpMode {
		bot, err = discordbot.New(discordbot.Config{
			Token:   cfg.Discord.Token,
			GuildID: cfg.Discord.GuildID,
			VoiceID: cfg.Discord.VoiceID,
		})
		if err != nil {
			slog.Error("failed to create Discord bot", "err", err)
			return 1
		}
		providers.Audio = bot.Platform()
	}

	application, err := app.New(ctx, cfg, providers, app.WithLogLevelVar(&level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── MCP mode: tools over stdio, no HTTP, no Discord ───────────────────────
	if *mcpMode {
		err := mcpserver.Serve(ctx, mcpserver.Deps{
			Analyzer:  application,
			Questions: application.Questions(),
			Archive:   application.Archive(),
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("mcp server error", "err", err)
			return 1
		}
		return shutdownApp(application)
	}

	// ── Config watcher (hot reload) ───────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		application.ApplyDiff(config.Diff(old, new))
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Discord surface (optional) ────────────────────────────────────────────
	if bot != nil {
		bot.Bind(discordbot.Deps{
			Rooms:     application.Rooms(),
			Questions: application.Questions(),
			TTS:       providers.TTS,
			VAD:       providers.VAD,
			Archive:   application.Archive(),
		})
		slog.Info("discord bot bound", "guild_id", cfg.Discord.GuildID)
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	if bot != nil {
		go func() {
			if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("discord bot error", "err", err)
			}
		}()
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	// Close the Discord bot first (unregister commands, disconnect voice).
	if bot != nil {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}

	return shutdownApp(application)
}

func shutdownApp(application *app.App) int {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	// openai goes through the native SDK so base-URL overrides (Azure-style
	// gateways) work; everything else rides the any-llm adapter.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all share
	// the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			return newAnyLLM(providerName, entry.Model, entry.APIKey, entry.BaseURL)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		return newAnyLLM("ollama", entry.Model, "", entry.BaseURL)
	})

	// ── Transcriber ───────────────────────────────────────────────────────────

	// whisper runs the model in-process via whisper.cpp. Model is the path to
	// the ggml weights file.
	reg.RegisterTranscriber("whisper", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(modelPath, opts...)
	})

	// whisper-server talks to a whisper.cpp server instance over HTTP.
	reg.RegisterTranscriber("whisper-server", func(entry config.ProviderEntry) (transcribe.Transcriber, error) {
		var opts []whisperserver.Option
		if entry.Model != "" {
			opts = append(opts, whisperserver.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisperserver.WithLanguage(lang))
		}
		return whisperserver.New(entry.BaseURL, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("edge", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []edgetts.Option
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, edgetts.WithOutputFormat(outputFmt))
		}
		return edgetts.New(opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, oatts.WithFormat(format))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		return ollamaembed.New(entry.BaseURL, entry.Model)
	})

	// ── VAD ───────────────────────────────────────────────────────────────────

	reg.RegisterVAD("energy", func(_ config.ProviderEntry) (vad.Engine, error) {
		return energy.New(), nil
	})
}

// newAnyLLM builds an any-llm-go backed provider with the standard option set.
func newAnyLLM(providerName, model, apiKey, baseURL string) (llm.Provider, error) {
	var opts []anyllmlib.Option
	if apiKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(baseURL))
	}
	return anyllm.New(providerName, model, opts...)
}

// buildProviders instantiates all providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. Provider entries may name a fallback in their options block; the
// slot is then wrapped in a circuit-breaking failover group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Transcriber.Name; name != "" {
		p, err := reg.CreateTranscriber(cfg.Providers.Transcriber)
		if err != nil {
			return nil, fmt.Errorf("create transcriber %q: %w", name, err)
		}
		ps.Transcriber = p
		slog.Info("provider created", "kind", "transcriber", "name", name)

		// A whisper-server URL in the options adds a network fallback behind
		// the in-process model. Transcription failures are fatal to an
		// analysis, so this is the slot where failover pays for itself.
		if fallbackURL := optString(cfg.Providers.Transcriber.Options, "fallback_url"); fallbackURL != "" {
			ws, err := whisperserver.New(fallbackURL)
			if err != nil {
				return nil, fmt.Errorf("create transcriber fallback: %w", err)
			}
			group := resilience.NewTranscribeFallback(p, name, resilience.FallbackConfig{})
			group.AddFallback("whisper-server", ws)
			ps.Transcriber = group
			slog.Info("transcriber fallback enabled", "url", fallbackURL)
		}
	}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown llm provider — skipping", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)

			if fbName := optString(cfg.Providers.LLM.Options, "fallback"); fbName != "" {
				fb, err := newAnyLLM(fbName,
					optString(cfg.Providers.LLM.Options, "fallback_model"),
					optString(cfg.Providers.LLM.Options, "fallback_api_key"),
					optString(cfg.Providers.LLM.Options, "fallback_base_url"),
				)
				if err != nil {
					return nil, fmt.Errorf("create llm fallback %q: %w", fbName, err)
				}
				group := resilience.NewLLMFallback(p, name, resilience.FallbackConfig{})
				group.AddFallback(fbName, fb)
				ps.LLM = group
				slog.Info("llm fallback enabled", "name", fbName)
			}
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown tts provider — skipping", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		} else {
			ps.TTS = p
			slog.Info("provider created", "kind", "tts", "name", name)

			// Edge needs no credentials, which makes it a free safety net
			// behind a paid voice.
			if optString(cfg.Providers.TTS.Options, "fallback") == "edge" && name != "edge" {
				fb, err := edgetts.New()
				if err != nil {
					return nil, fmt.Errorf("create tts fallback: %w", err)
				}
				group := resilience.NewTTSFallback(p, name, resilience.FallbackConfig{})
				group.AddFallback("edge", fb)
				ps.TTS = group
				slog.Info("tts fallback enabled", "name", "edge")
			}
		}
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown embeddings provider — skipping", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		} else {
			ps.Embeddings = p
			slog.Info("provider created", "kind", "embeddings", "name", name)
		}
	}

	if name := cfg.Providers.VAD.Name; name != "" {
		p, err := reg.CreateVAD(cfg.Providers.VAD)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown vad provider — skipping", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create vad provider %q: %w", name, err)
		} else {
			ps.VAD = p
			slog.Info("provider created", "kind", "vad", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        greenroom — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Transcriber", cfg.Providers.Transcriber.Name, cfg.Providers.Transcriber.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printProvider("Embeddings", cfg.Providers.Embeddings.Name, cfg.Providers.Embeddings.Model)
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	if cfg.Discord.Token != "" {
		fmt.Printf("║  Discord         : %-19s ║\n", "enabled")
	} else {
		fmt.Printf("║  Discord         : %-19s ║\n", "(disabled)")
	}
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  Archive         : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Archive         : %-19s ║\n", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
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

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
