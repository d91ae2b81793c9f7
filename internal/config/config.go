// Package config provides the configuration schema, loader, provider
// registry, and hot-reload watcher for the Maddieply co-host server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written as "10s", "5m".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the plain time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader], with secrets overlaid from the
// environment by [Config.FromEnv].
type Config struct {
	Server    ServerConfig       `yaml:"server"`
	Twitch    TwitchConfig       `yaml:"twitch"`
	Queue     QueueConfig        `yaml:"queue"`
	OBS       OBSConfig          `yaml:"obs"`
	Audio     AudioConfig        `yaml:"audio"`
	Clips     ClipsConfig        `yaml:"clips"`
	Providers ProvidersConfig    `yaml:"providers"`
	Reactions ReactionsConfig    `yaml:"reactions"`
	Prompts   PromptsConfig      `yaml:"prompts"`
	Voice     VoiceConfig        `yaml:"voice_commands"`
	Hotkeys   map[string]string  `yaml:"hotkeys"`
	Scheduled []ScheduledMessage `yaml:"scheduled_messages"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP control surface
	// (e.g., "127.0.0.1:8440").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// TwitchConfig identifies the broadcaster session and the bot account.
type TwitchConfig struct {
	// Channel is the broadcaster's channel name the bot joins.
	Channel string `yaml:"channel"`

	// BotNick is the bot account's login name.
	BotNick string `yaml:"bot_nick"`

	// BroadcasterID is the numeric broadcaster user id used for EventSub
	// subscription conditions.
	BroadcasterID string `yaml:"broadcaster_id"`

	// ClientID identifies the registered Twitch application.
	ClientID string `yaml:"client_id"`

	// ClientSecret authenticates the token refresh grant. Normally supplied
	// via TWITCH_CLIENT_SECRET rather than the YAML file.
	ClientSecret string `yaml:"client_secret"`

	// RefreshToken is the long-lived OAuth refresh token. Normally supplied
	// via TWITCH_REFRESH_TOKEN.
	RefreshToken string `yaml:"refresh_token"`

	// ChatURL, EventSubURL, HelixURL and TokenURL override the Twitch
	// endpoints. Leave empty for production defaults; tests point them at
	// fakes.
	ChatURL     string `yaml:"chat_url"`
	EventSubURL string `yaml:"eventsub_url"`
	HelixURL    string `yaml:"helix_url"`
	TokenURL    string `yaml:"token_url"`
}

// QueueConfig tunes the playback scheduler.
type QueueConfig struct {
	// Cooldown is the delay between automatic plays. Default 5s.
	Cooldown Duration `yaml:"cooldown"`

	// MinCooldown replaces Cooldown while a priority event waits.
	// Default 500ms.
	MinCooldown Duration `yaml:"min_cooldown"`

	// AutoQueue enables the automatic two-lane mode.
	AutoQueue bool `yaml:"auto_queue"`
}

// OBSConfig connects the avatar animator to OBS.
type OBSConfig struct {
	// URL is the OBS WebSocket address (e.g., "ws://127.0.0.1:4455").
	// Empty disables the avatar; the co-host stays audible.
	URL string `yaml:"url"`

	// Password authenticates the WebSocket session. Normally supplied via
	// OBS_PASSWORD.
	Password string `yaml:"password"`

	// Scene and Source name the avatar scene item to animate.
	Scene  string `yaml:"scene"`
	Source string `yaml:"source"`
}

// AudioConfig selects the local devices.
type AudioConfig struct {
	// OutputDevice is a substring of the playback device name. Empty uses the
	// system default.
	OutputDevice string `yaml:"output_device"`

	// InputDevice is a substring of the microphone device name for the
	// ask-the-assistant flow. Empty uses the system default.
	InputDevice string `yaml:"input_device"`
}

// ClipsConfig controls retention of synthesized audio files.
type ClipsConfig struct {
	// Dir is the directory synthesized clips are written to.
	Dir string `yaml:"dir"`

	// Keep is how many recent clips survive a prune. Default 5.
	Keep int `yaml:"keep"`
}

// ProvidersConfig declares which implementation to use for each external
// collaborator. Each entry selects a named provider registered in [Registry].
type ProvidersConfig struct {
	LLM   ProviderEntry `yaml:"llm"`
	STT   ProviderEntry `yaml:"stt"`
	Synth SynthConfig   `yaml:"synth"`
}

// SynthConfig configures voice synthesis with an optional backup provider.
type SynthConfig struct {
	// Primary is the first-choice synthesizer.
	Primary ProviderEntry `yaml:"primary"`

	// Backup takes over when the primary fails or runs out of quota.
	// Leave the name empty to run without a backup.
	Backup ProviderEntry `yaml:"backup"`

	// FallbackVoice is the voice id used on the backup provider.
	FallbackVoice string `yaml:"fallback_voice"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key, if the provider needs one. Normally
	// supplied via the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o-mini").
	Model string `yaml:"model"`

	// Voice is the provider-specific voice identifier, for synthesizers.
	Voice string `yaml:"voice"`

	// Options holds provider-specific values not covered by the fields above.
	Options map[string]any `yaml:"options"`
}

// ReactionsConfig holds the thresholds that gate voiced reactions.
type ReactionsConfig struct {
	// RaidViewerThreshold is the minimum raid size for a voiced reaction.
	// Smaller raids still get the chat shout-out.
	RaidViewerThreshold int `yaml:"raid_viewer_threshold"`

	// Bits maps donation size to reaction intensity. Each bound is the
	// minimum bits amount for its tier; donations below Normal are ignored.
	Bits BitTiers `yaml:"bits"`

	// Resub maps cumulative months to the persona tiers.
	Resub ResubTiers `yaml:"resub"`

	// GiftWindow is how long a gift announcement waits to collect recipient
	// names before it goes stale. Default 10s.
	GiftWindow Duration `yaml:"gift_window"`
}

// BitTiers holds the four reaction thresholds, in ascending order.
type BitTiers struct {
	Normal      int `yaml:"normal"`
	Impressed   int `yaml:"impressed"`
	Exaggerated int `yaml:"exaggerated"`
	Screaming   int `yaml:"screaming"`
}

// ResubTiers holds the upper month bound of each persona tier. A resub above
// SupervisorMaxMonths lands in the tenured tier.
type ResubTiers struct {
	InternMaxMonths     int `yaml:"intern_max_months"`
	EmployeeMaxMonths   int `yaml:"employee_max_months"`
	SupervisorMaxMonths int `yaml:"supervisor_max_months"`
}

// PromptsConfig holds the system prompts for every reaction flow. All fields
// are free text; the resub prompts may contain the <RNG> placeholder.
type PromptsConfig struct {
	RespondToMessages      string `yaml:"respond_to_messages"`
	SummarizeChat          string `yaml:"summarize_chat"`
	RespondToStreamer      string `yaml:"respond_to_streamer"`
	BitDonation            string `yaml:"bit_donation"`
	BitDonationWithMessage string `yaml:"bit_donation_with_message"`
	BitScream              string `yaml:"bit_scream"`
	GiftedSub              string `yaml:"gifted_sub"`
	Raid                   string `yaml:"raid"`
	ResubIntern            string `yaml:"resub_intern"`
	ResubEmployee          string `yaml:"resub_employee"`
	ResubSupervisor        string `yaml:"resub_supervisor"`
	ResubTenured           string `yaml:"resub_tenured"`
}

// VoiceConfig configures the wake-phrase filter for mic transcripts.
type VoiceConfig struct {
	// WakePhrase starts the listen-and-respond flow (e.g., "hey maddie").
	WakePhrase string `yaml:"wake_phrase"`

	// StopPhrase ends it.
	StopPhrase string `yaml:"stop_phrase"`

	// Threshold is the minimum similarity score for a fuzzy token match,
	// in (0, 1]. Default 0.8.
	Threshold float64 `yaml:"threshold"`

	// MicTimeout bounds one recording. Default 30s.
	MicTimeout Duration `yaml:"mic_timeout"`
}

// ScheduledMessage describes one recurring chat message. At least one of
// Every and MinMessages must be set; when both are, the timer only fires if
// the chat was active enough since the last post.
type ScheduledMessage struct {
	// ID names the message for start/cancel/toggle operations.
	ID string `yaml:"id"`

	// Text is the chat line to post.
	Text string `yaml:"text"`

	// Every is the posting interval.
	Every Duration `yaml:"every"`

	// MinMessages is how many chat messages must arrive between posts.
	MinMessages int `yaml:"min_messages"`
}
