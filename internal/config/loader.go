package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Mizu36/maddieply/internal/control"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt":   {"whisper"},
	"synth": {"elevenlabs", "azure"},
}

// Load reads the YAML configuration file at path, overlays secrets from the
// environment, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlays secrets from the
// environment, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.FromEnv()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv overlays secret values from environment variables. A set variable
// always wins over the YAML value, so credentials can stay out of the config
// file entirely (main loads .env into the environment first).
func (c *Config) FromEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.Twitch.ClientSecret, "TWITCH_CLIENT_SECRET")
	overlay(&c.Twitch.RefreshToken, "TWITCH_REFRESH_TOKEN")
	overlay(&c.OBS.Password, "OBS_PASSWORD")
	overlay(&c.Providers.LLM.APIKey, "LLM_API_KEY")
	overlay(&c.Providers.STT.APIKey, "STT_API_KEY")
	overlay(&c.Providers.Synth.Primary.APIKey, "SYNTH_PRIMARY_API_KEY")
	overlay(&c.Providers.Synth.Backup.APIKey, "SYNTH_BACKUP_API_KEY")
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Twitch identity
	if cfg.Twitch.Channel == "" {
		errs = append(errs, errors.New("twitch.channel is required"))
	}
	if cfg.Twitch.BotNick == "" {
		errs = append(errs, errors.New("twitch.bot_nick is required"))
	}
	if cfg.Twitch.BroadcasterID == "" {
		errs = append(errs, errors.New("twitch.broadcaster_id is required"))
	}
	if cfg.Twitch.ClientID == "" {
		errs = append(errs, errors.New("twitch.client_id is required"))
	}
	if cfg.Twitch.RefreshToken == "" {
		slog.Warn("twitch.refresh_token is empty; set TWITCH_REFRESH_TOKEN before connecting")
	}

	// Queue
	if cfg.Queue.Cooldown < 0 {
		errs = append(errs, errors.New("queue.cooldown must not be negative"))
	}
	if cfg.Queue.MinCooldown < 0 {
		errs = append(errs, errors.New("queue.min_cooldown must not be negative"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("synth", cfg.Providers.Synth.Primary.Name)
	validateProviderName("synth", cfg.Providers.Synth.Backup.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; voiced reactions will not be generated")
	}
	if cfg.Providers.Synth.Primary.Name == "" {
		slog.Warn("no synthesizer configured; reactions will be dropped")
	}
	if cfg.Providers.Synth.Backup.Name != "" && cfg.Providers.Synth.FallbackVoice == "" {
		slog.Warn("providers.synth.backup is configured without a fallback_voice; the backup will use its default voice")
	}

	// Reaction tiers must ascend.
	b := cfg.Reactions.Bits
	if b.Normal != 0 || b.Impressed != 0 || b.Exaggerated != 0 || b.Screaming != 0 {
		if !(b.Normal < b.Impressed && b.Impressed < b.Exaggerated && b.Exaggerated < b.Screaming) {
			errs = append(errs, fmt.Errorf("reactions.bits tiers must be strictly ascending, got %d/%d/%d/%d",
				b.Normal, b.Impressed, b.Exaggerated, b.Screaming))
		}
	}
	rs := cfg.Reactions.Resub
	if rs.InternMaxMonths != 0 || rs.EmployeeMaxMonths != 0 || rs.SupervisorMaxMonths != 0 {
		if !(rs.InternMaxMonths < rs.EmployeeMaxMonths && rs.EmployeeMaxMonths < rs.SupervisorMaxMonths) {
			errs = append(errs, fmt.Errorf("reactions.resub month bounds must be strictly ascending, got %d/%d/%d",
				rs.InternMaxMonths, rs.EmployeeMaxMonths, rs.SupervisorMaxMonths))
		}
	}
	if cfg.Reactions.GiftWindow < 0 {
		errs = append(errs, errors.New("reactions.gift_window must not be negative"))
	}

	// Voice commands
	if t := cfg.Voice.Threshold; t != 0 && (t <= 0 || t > 1) {
		errs = append(errs, fmt.Errorf("voice_commands.threshold %.2f is out of range (0, 1]", t))
	}

	// Hotkeys must map to known signals.
	for key, name := range cfg.Hotkeys {
		if _, ok := control.ParseSignal(name); !ok {
			errs = append(errs, fmt.Errorf("hotkeys[%q]: unknown signal %q", key, name))
		}
	}

	// Scheduled messages
	idsSeen := make(map[string]int, len(cfg.Scheduled))
	for i, msg := range cfg.Scheduled {
		prefix := fmt.Sprintf("scheduled_messages[%d]", i)
		if msg.ID == "" {
			errs = append(errs, fmt.Errorf("%s.id is required", prefix))
		} else {
			if prev, ok := idsSeen[msg.ID]; ok {
				errs = append(errs, fmt.Errorf("%s.id %q is a duplicate of scheduled_messages[%d]", prefix, msg.ID, prev))
			}
			idsSeen[msg.ID] = i
		}
		if msg.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
		if msg.Every <= 0 && msg.MinMessages <= 0 {
			errs = append(errs, fmt.Errorf("%s needs a trigger: set every, min_messages, or both", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
