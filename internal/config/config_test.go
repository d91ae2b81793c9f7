package config

import (
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
server:
  listen_addr: "127.0.0.1:8440"
  log_level: info
twitch:
  channel: maddie
  bot_nick: maddieply
  broadcaster_id: "123"
  client_id: cid
`

func TestLoadFromReaderDecodesFullConfig(t *testing.T) {
	yaml := minimalYAML + `
queue:
  cooldown: 5s
  min_cooldown: 500ms
  auto_queue: true
obs:
  url: "ws://127.0.0.1:4455"
  scene: Main
  source: MaddieAvatar
clips:
  dir: voice_clips
  keep: 5
providers:
  llm:
    name: openai
    model: gpt-4o-mini
  stt:
    name: whisper
    base_url: "http://127.0.0.1:9000"
  synth:
    primary:
      name: elevenlabs
      voice: maddie-v2
    backup:
      name: azure
    fallback_voice: en-US-JennyNeural
reactions:
  raid_viewer_threshold: 10
  bits:
    normal: 100
    impressed: 500
    exaggerated: 2000
    screaming: 10000
  resub:
    intern_max_months: 5
    employee_max_months: 20
    supervisor_max_months: 50
  gift_window: 10s
prompts:
  raid: "React to a raid."
  resub_intern: "New hire month <RNG>."
voice_commands:
  wake_phrase: "hey maddie"
  stop_phrase: "that's all"
  threshold: 0.8
  mic_timeout: 30s
hotkeys:
  n: play-next
  s: skip
scheduled_messages:
  - id: socials
    text: "Follow on all the places!"
    every: 15m
    min_messages: 5
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Twitch.Channel != "maddie" || cfg.Twitch.BotNick != "maddieply" {
		t.Fatalf("twitch = %+v", cfg.Twitch)
	}
	if got := cfg.Queue.Cooldown.Std(); got != 5*time.Second {
		t.Fatalf("cooldown = %v", got)
	}
	if got := cfg.Queue.MinCooldown.Std(); got != 500*time.Millisecond {
		t.Fatalf("min_cooldown = %v", got)
	}
	if !cfg.Queue.AutoQueue {
		t.Fatal("auto_queue not decoded")
	}
	if cfg.Providers.Synth.Primary.Name != "elevenlabs" || cfg.Providers.Synth.Primary.Voice != "maddie-v2" {
		t.Fatalf("synth primary = %+v", cfg.Providers.Synth.Primary)
	}
	if cfg.Providers.Synth.FallbackVoice != "en-US-JennyNeural" {
		t.Fatalf("fallback voice = %q", cfg.Providers.Synth.FallbackVoice)
	}
	if cfg.Reactions.Bits.Exaggerated != 2000 {
		t.Fatalf("bits = %+v", cfg.Reactions.Bits)
	}
	if got := cfg.Reactions.GiftWindow.Std(); got != 10*time.Second {
		t.Fatalf("gift_window = %v", got)
	}
	if cfg.Prompts.ResubIntern != "New hire month <RNG>." {
		t.Fatalf("prompts = %+v", cfg.Prompts)
	}
	if cfg.Hotkeys["n"] != "play-next" {
		t.Fatalf("hotkeys = %v", cfg.Hotkeys)
	}
	if len(cfg.Scheduled) != 1 || cfg.Scheduled[0].Every.Std() != 15*time.Minute {
		t.Fatalf("scheduled = %+v", cfg.Scheduled)
	}
}

func TestUnknownFieldsAreRejected(t *testing.T) {
	t.Parallel()

	yaml := minimalYAML + `
tiwtch_extra:
  oops: true
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestInvalidDurationIsRejected(t *testing.T) {
	t.Parallel()

	yaml := minimalYAML + `
queue:
  cooldown: "five seconds"
`
	if _, err := LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("bad duration accepted")
	}
}

func TestEnvOverlayWinsOverYAML(t *testing.T) {
	t.Setenv("TWITCH_CLIENT_SECRET", "env-secret")
	t.Setenv("SYNTH_PRIMARY_API_KEY", "env-key")

	yaml := minimalYAML + `
providers:
  synth:
    primary:
      name: elevenlabs
      api_key: yaml-key
`
	cfg, err := LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Twitch.ClientSecret != "env-secret" {
		t.Fatalf("client secret = %q", cfg.Twitch.ClientSecret)
	}
	if cfg.Providers.Synth.Primary.APIKey != "env-key" {
		t.Fatalf("api key = %q; env must win over yaml", cfg.Providers.Synth.Primary.APIKey)
	}
}
