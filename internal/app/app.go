// Package app wires all Maddieply subsystems into a running co-host.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the playback loop and the platform connections,
// and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithSink, WithAnimator,
// WithRecorder). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/Mizu36/maddieply/internal/api"
	"github.com/Mizu36/maddieply/internal/chat"
	"github.com/Mizu36/maddieply/internal/clips"
	"github.com/Mizu36/maddieply/internal/cohost"
	"github.com/Mizu36/maddieply/internal/config"
	"github.com/Mizu36/maddieply/internal/control"
	"github.com/Mizu36/maddieply/internal/events"
	"github.com/Mizu36/maddieply/internal/eventsub"
	"github.com/Mizu36/maddieply/internal/giftsub"
	"github.com/Mizu36/maddieply/internal/health"
	"github.com/Mizu36/maddieply/internal/hotkeys"
	"github.com/Mizu36/maddieply/internal/obs"
	"github.com/Mizu36/maddieply/internal/observe"
	"github.com/Mizu36/maddieply/internal/queue"
	"github.com/Mizu36/maddieply/internal/resilience"
	"github.com/Mizu36/maddieply/internal/scheduled"
	"github.com/Mizu36/maddieply/internal/scheduler"
	"github.com/Mizu36/maddieply/internal/stage"
	"github.com/Mizu36/maddieply/internal/token"
	"github.com/Mizu36/maddieply/internal/voicecmd"
	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/llm"
	"github.com/Mizu36/maddieply/pkg/provider/stt"
	"github.com/Mizu36/maddieply/pkg/provider/tts"
)

// pruneInterval is how often idle clip pruning runs.
const pruneInterval = 5 * time.Minute

// Providers holds one interface value per provider slot. LLM and SynthPrimary
// are required; STT may be nil when no microphone flow is configured and
// SynthBackup may be nil to run without a backup voice. Populated by main.go
// via the config registry.
type Providers struct {
	LLM          llm.Provider
	STT          stt.Provider
	SynthPrimary tts.Provider
	SynthBackup  tts.Provider
}

// App owns all subsystem lifetimes and orchestrates the co-host pipeline.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems — initialised in New, torn down in Shutdown.
	queue     *queue.EventQueue
	sched     *scheduler.Scheduler
	store     *clips.Store
	sink      audio.Sink
	obsClient *obs.Client
	chat      *chat.Client
	esub      *eventsub.Client
	gifts     *giftsub.Aggregator
	responder *responderRef
	router    *control.Router
	keys      hotkeys.Listener
	messages  *scheduled.Runner
	server    *api.Server
	watcher   *config.Watcher

	// Long-lived responder collaborators that survive hot reloads.
	history  *llm.History
	synth    cohost.Synthesizer
	stt      stt.Provider
	recorder cohost.Recorder

	anim     stage.Animator
	logLevel *slog.LevelVar

	mu     sync.Mutex
	runCtx context.Context

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSink injects an audio sink instead of opening the output device.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// WithAnimator injects an avatar animator instead of dialing OBS.
func WithAnimator(anim stage.Animator) Option {
	return func(a *App) { a.anim = anim }
}

// WithRecorder injects a microphone recorder instead of capturing from the
// input device.
func WithRecorder(rec cohost.Recorder) Option {
	return func(a *App) { a.recorder = rec }
}

// WithLogLevel hands the app the level var behind the process logger so a
// hot reload can change verbosity.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New wires the co-host from config. The context is used for initial
// connections (OBS) only; Run has its own.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	if providers.SynthPrimary == nil {
		return nil, errors.New("app: a synthesis provider is required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		queue:     queue.New(),
		history:   llm.NewHistory(0),
	}
	for _, o := range opts {
		o(a)
	}

	store, err := clips.NewStore(clipDir(cfg), clips.WithKeep(cfg.Clips.Keep))
	if err != nil {
		return nil, fmt.Errorf("clip store: %w", err)
	}
	a.store = store
	if err := store.PurgeAll(); err != nil {
		slog.Warn("could not purge stale clips", "dir", store.Dir(), "error", err)
	}

	if a.sink == nil {
		sink, err := audio.NewDeviceSink(cfg.Audio.OutputDevice)
		if err != nil {
			return nil, fmt.Errorf("audio output: %w", err)
		}
		a.sink = sink
	}
	a.closers = append(a.closers, a.sink.Close)

	if a.anim == nil {
		if err := a.connectOBS(ctx); err != nil {
			return nil, err
		}
	}

	a.sched = scheduler.New(a.queue, stage.New(a.sink, a.anim), scheduler.Config{
		Cooldown:    cfg.Queue.Cooldown.Std(),
		MinCooldown: cfg.Queue.MinCooldown.Std(),
		AutoQueue:   cfg.Queue.AutoQueue,
	})

	if err := a.connectTwitch(cfg); err != nil {
		return nil, err
	}

	a.synth, err = buildSynth(cfg, providers)
	if err != nil {
		return nil, err
	}
	a.stt = wrapSTT(cfg.Voice, providers.STT)
	if a.recorder == nil && a.stt != nil {
		a.recorder = deviceRecorder(cfg)
	}

	a.responder = &responderRef{}
	resp, err := a.buildResponder(cfg)
	if err != nil {
		return nil, err
	}
	a.responder.swap(resp)

	a.router = control.NewRouter(a.sched, a.responder, 16)
	a.keys = hotkeys.NewLineListener(os.Stdin, keyBindings(cfg.Hotkeys), a.router.Send)
	a.messages = scheduled.NewRunner(a.chat)

	if err := observe.RegisterQueueDepth(otel.GetMeterProvider(), a.queue.Len); err != nil {
		slog.Warn("queue depth gauge not registered", "error", err)
	}

	a.server, err = api.New(api.Config{
		Addr:    cfg.Server.ListenAddr,
		Queue:   a.queue,
		Player:  a.sched,
		Send:    a.router.Send,
		Clips:   a.store,
		Reload:  a.reload,
		Metrics: observe.DefaultMetrics(),
		Health:  health.New(a.healthCheckers()...),
	})
	if err != nil {
		return nil, fmt.Errorf("control surface: %w", err)
	}

	return a, nil
}

// EnableHotReload watches path and applies safe config changes in place.
// Call before Run.
func (a *App) EnableHotReload(path string) error {
	w, err := config.NewWatcher(path, a.applyConfig)
	if err != nil {
		return err
	}
	a.watcher = w
	return nil
}

func clipDir(cfg *config.Config) string {
	if cfg.Clips.Dir != "" {
		return cfg.Clips.Dir
	}
	return "voice_clips"
}

func (a *App) connectOBS(ctx context.Context) error {
	if a.cfg.OBS.URL == "" {
		slog.Info("obs not configured, avatar disabled")
		a.anim = noopAnimator{}
		return nil
	}
	client, err := obs.Dial(ctx, a.cfg.OBS.URL, a.cfg.OBS.Password)
	if err != nil {
		return fmt.Errorf("obs: %w", err)
	}
	a.obsClient = client
	a.closers = append(a.closers, client.Close)
	a.anim = obs.NewAnimator(client, obs.AnimatorConfig{SourceName: a.cfg.OBS.Source})
	return nil
}

func (a *App) connectTwitch(cfg *config.Config) error {
	mgr, err := token.NewManager(token.Config{
		ClientID:     cfg.Twitch.ClientID,
		ClientSecret: cfg.Twitch.ClientSecret,
		RefreshToken: cfg.Twitch.RefreshToken,
		Endpoint:     cfg.Twitch.TokenURL,
	})
	if err != nil {
		return fmt.Errorf("twitch auth: %w", err)
	}

	a.gifts = giftAggregator(cfg)

	a.chat, err = chat.New(chat.Config{
		URL:     cfg.Twitch.ChatURL,
		Nick:    cfg.Twitch.BotNick,
		Channel: cfg.Twitch.Channel,
		Token:   mgr.Token,
	},
		chat.WithMessageHandler(func(events.ChatMessage) { a.countChatMessage() }),
		chat.WithGiftHandler(a.onGiftLine),
	)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}

	a.esub, err = eventsub.New(eventsub.Config{
		WebSocketURL:  cfg.Twitch.EventSubURL,
		HelixURL:      cfg.Twitch.HelixURL,
		ClientID:      cfg.Twitch.ClientID,
		BroadcasterID: cfg.Twitch.BroadcasterID,
		Token:         mgr.Token,
	}, eventsub.Handler{
		OnRaid: func(e events.Raid) {
			a.react("raid", func(ctx context.Context) error {
				return a.responder.current().HandleRaid(ctx, e)
			})
		},
		OnCheer: func(e events.Cheer) {
			a.react("cheer", func(ctx context.Context) error {
				return a.responder.current().HandleCheer(ctx, e)
			})
		},
		OnResub: func(e events.Resub) {
			a.react("resub", func(ctx context.Context) error {
				return a.responder.current().HandleResub(ctx, e)
			})
		},
		OnGiftTotals: func(e events.GiftTotals) {
			a.responder.current().HandleGiftTotals(e)
		},
		OnSubscribe: a.onSubscribe,
	})
	if err != nil {
		return fmt.Errorf("eventsub: %w", err)
	}
	return nil
}

func giftAggregator(cfg *config.Config) *giftsub.Aggregator {
	if w := cfg.Reactions.GiftWindow.Std(); w > 0 {
		return giftsub.New(giftsub.WithWindow(w))
	}
	return giftsub.New()
}

func buildSynth(cfg *config.Config, providers *Providers) (cohost.Synthesizer, error) {
	backends := []resilience.SynthBackend{{
		Provider: providers.SynthPrimary,
		Voice: tts.VoiceProfile{
			ID:       cfg.Providers.Synth.Primary.Voice,
			Provider: providers.SynthPrimary.Name(),
		},
	}}
	if providers.SynthBackup != nil {
		backends = append(backends, resilience.SynthBackend{
			Provider: providers.SynthBackup,
			Voice: tts.VoiceProfile{
				ID:       cfg.Providers.Synth.FallbackVoice,
				Provider: providers.SynthBackup.Name(),
			},
		})
	}
	synth, err := resilience.NewSynthFallback(resilience.FallbackConfig{}, backends...)
	if err != nil {
		return nil, fmt.Errorf("synthesis chain: %w", err)
	}
	return synth, nil
}

func deviceRecorder(cfg *config.Config) cohost.Recorder {
	device := cfg.Audio.InputDevice
	maxDur := cfg.Voice.MicTimeout.Std()
	if maxDur <= 0 {
		maxDur = 30 * time.Second
	}
	return func(ctx context.Context) (*audio.Clip, error) {
		return audio.Record(ctx, device, maxDur)
	}
}

func keyBindings(keys map[string]string) map[string]control.Signal {
	if len(keys) == 0 {
		return hotkeys.DefaultBindings()
	}
	bindings := make(map[string]control.Signal, len(keys))
	for key, name := range keys {
		sig, ok := control.ParseSignal(name)
		if !ok {
			slog.Warn("ignoring hotkey with unknown signal", "key", key, "signal", name)
			continue
		}
		bindings[key] = sig
	}
	return bindings
}

func (a *App) buildResponder(cfg *config.Config) (*cohost.Responder, error) {
	resp, err := cohost.New(cohost.Deps{
		Queue:     a.queue,
		Scheduler: a.sched,
		Chat:      a.chat,
		LLM:       a.providers.LLM,
		History:   a.history,
		Synth:     a.synth,
		STT:       a.stt,
		Record:    a.recorder,
		Gifts:     a.gifts,
	}, cohost.Config{
		Prompts:    promptsFromConfig(cfg.Prompts),
		Thresholds: thresholdsFromConfig(cfg.Reactions),
		MicTimeout: cfg.Voice.MicTimeout.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("responder: %w", err)
	}
	return resp, nil
}

func promptsFromConfig(p config.PromptsConfig) cohost.Prompts {
	return cohost.Prompts{
		RespondToMessages:      p.RespondToMessages,
		SummarizeChat:          p.SummarizeChat,
		RespondToStreamer:      p.RespondToStreamer,
		BitDonation:            p.BitDonation,
		BitDonationWithMessage: p.BitDonationWithMessage,
		BitScream:              p.BitScream,
		GiftedSub:              p.GiftedSub,
		Raid:                   p.Raid,
		ResubIntern:            p.ResubIntern,
		ResubEmployee:          p.ResubEmployee,
		ResubSupervisor:        p.ResubSupervisor,
		ResubTenured:           p.ResubTenured,
	}
}

func thresholdsFromConfig(r config.ReactionsConfig) cohost.Thresholds {
	return cohost.Thresholds{
		RaidViewers:         r.RaidViewerThreshold,
		BitsNormal:          r.Bits.Normal,
		BitsImpressed:       r.Bits.Impressed,
		BitsExaggerated:     r.Bits.Exaggerated,
		BitsScreaming:       r.Bits.Screaming,
		InternMaxMonths:     r.Resub.InternMaxMonths,
		EmployeeMaxMonths:   r.Resub.EmployeeMaxMonths,
		SupervisorMaxMonths: r.Resub.SupervisorMaxMonths,
	}
}

func (a *App) healthCheckers() []health.Checker {
	checkers := []health.Checker{{
		Name: "clips",
		Check: func(context.Context) error {
			_, err := os.Stat(a.store.Dir())
			return err
		},
	}}
	if a.obsClient != nil {
		checkers = append(checkers, health.Checker{
			Name: "obs",
			Check: func(ctx context.Context) error {
				_, err := a.obsClient.Call(ctx, "GetVersion", nil)
				return err
			},
		})
	}
	return checkers
}

// Run executes all subsystem loops until ctx is cancelled or one of them
// fails hard. A clean cancellation returns nil.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sched.Run(ctx) })
	g.Go(func() error { return a.router.Run(ctx) })
	g.Go(func() error { return a.gifts.Run(ctx) })
	g.Go(func() error { return a.chat.Run(ctx) })
	g.Go(func() error { return a.esub.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	g.Go(func() error { return a.pruneLoop(ctx) })

	// The line listener blocks on stdin reads and cannot be unblocked by
	// cancellation, so it runs outside the group.
	go func() {
		if err := a.keys.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("hotkey listener stopped", "error", err)
		}
	}()

	a.startScheduled(ctx, a.cfg.Scheduled)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops scheduled messages, the config watcher, and closes the
// audio and OBS connections. Safe to call more than once.
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		a.messages.CancelAll()
		if a.watcher != nil {
			a.watcher.Stop()
		}
		for _, c := range a.closers {
			if err := c(); err != nil {
				slog.Warn("close failed", "error", err)
			}
		}
	})
}

func (a *App) runContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCtx != nil {
		return a.runCtx
	}
	return context.Background()
}

// react runs one voiced reaction flow off the event loop. EventSub callbacks
// must not block, and a reaction can take seconds of LLM and synthesis time.
func (a *App) react(kind string, fn func(context.Context) error) {
	go func() {
		if err := fn(a.runContext()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("reaction failed", "kind", kind, "error", err)
		}
	}()
}

// onSubscribe thanks a fresh subscriber in chat. The voiced gift-sub
// announcement happens separately through the gift aggregator; the chat line
// goes out either way.
func (a *App) onSubscribe(e events.Subscribe) {
	slog.Info("new subscriber", "user", e.User, "tier", e.Tier, "gifted", e.Gifted)
	a.react("subscribe", func(ctx context.Context) error {
		return a.chat.Send(ctx, subscriberThanks(e))
	})
}

// subscriberThanks builds the chat line for a new subscription.
func subscriberThanks(e events.Subscribe) string {
	return fmt.Sprintf("Thanks for subscribing, %s! Enjoy your Tier %s subscription!", e.User, subTier(e.Tier))
}

// subTier maps the EventSub tier code ("1000", "2000", "3000") to the number
// viewers know ("1", "2", "3"). Unknown codes pass through untouched.
func subTier(tier string) string {
	switch tier {
	case "1000":
		return "1"
	case "2000":
		return "2"
	case "3000":
		return "3"
	default:
		return tier
	}
}

func (a *App) onGiftLine(g chat.GiftLine) {
	a.react("gift", func(ctx context.Context) error {
		return a.responder.current().HandleGiftRecipient(ctx, g.Recipient)
	})
}

func (a *App) countChatMessage() {
	a.messages.CountMessage()
}

func (a *App) startScheduled(ctx context.Context, msgs []config.ScheduledMessage) {
	for _, m := range msgs {
		err := a.messages.Start(ctx, scheduled.Message{
			ID:          m.ID,
			Text:        m.Text,
			Every:       m.Every.Std(),
			MinMessages: m.MinMessages,
		})
		if err != nil {
			slog.Warn("scheduled message not started", "id", m.ID, "error", err)
		}
	}
}

// pruneLoop trims old clips while the queue is quiet. Pruning during active
// playback could delete files that are still pending.
func (a *App) pruneLoop(ctx context.Context) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if a.queue.Len() > 0 || a.queue.IsPlaying() {
				continue
			}
			n, err := a.store.Prune()
			if err != nil {
				slog.Warn("clip prune failed", "error", err)
			} else if n > 0 {
				slog.Debug("pruned clips", "removed", n)
			}
		}
	}
}

// reload backs the POST /api/reload endpoint.
func (a *App) reload(context.Context) error {
	if a.watcher == nil {
		return errors.New("hot reload is not configured")
	}
	return a.watcher.Reload()
}

// applyConfig applies the safely-reloadable parts of a changed config:
// prompts, reaction thresholds, queue tuning, scheduled messages, and the
// log level. Connection settings require a restart.
func (a *App) applyConfig(old, next *config.Config) {
	d := config.Diff(old, next)
	if d.Empty() {
		return
	}
	slog.Info("applying config change", "diff", fmt.Sprintf("%+v", d))

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(d.NewLogLevel))
	}
	if d.QueueChanged {
		a.sched.Reconfigure(next.Queue.Cooldown.Std(), next.Queue.AutoQueue)
	}
	if d.PromptsChanged || d.ReactionsChanged {
		resp, err := a.buildResponder(next)
		if err != nil {
			slog.Error("keeping previous responder config", "error", err)
		} else {
			a.responder.swap(resp)
		}
	}
	if d.ScheduledChanged {
		a.messages.CancelAll()
		a.startScheduled(a.runContext(), next.Scheduled)
	}

	a.mu.Lock()
	a.cfg = next
	a.mu.Unlock()
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
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

// ─── Responder hot swap ──────────────────────────────────────────────────────

// responderRef lets a hot reload swap in a responder with new prompts or
// thresholds without restarting the router and event handlers that hold it.
type responderRef struct {
	v atomic.Pointer[cohost.Responder]
}

var _ control.Responder = (*responderRef)(nil)

func (r *responderRef) swap(resp *cohost.Responder) { r.v.Store(resp) }

func (r *responderRef) current() *cohost.Responder { return r.v.Load() }

func (r *responderRef) Ask(ctx context.Context) error { return r.current().Ask(ctx) }
func (r *responderRef) Summarize(ctx context.Context) error {
	return r.current().Summarize(ctx)
}
func (r *responderRef) RespondToChat(ctx context.Context) error {
	return r.current().RespondToChat(ctx)
}

// ─── Small adapters ──────────────────────────────────────────────────────────

// noopAnimator keeps the stage running without OBS. The co-host stays
// audible; there is just no avatar to move.
type noopAnimator struct{}

func (noopAnimator) Activate(context.Context) error   { return nil }
func (noopAnimator) Deactivate(context.Context) error { return nil }
func (noopAnimator) Bounce(context.Context, []float64, time.Duration) error {
	return nil
}

// wakeSTT filters mic transcripts through the wake/stop phrases: the wake
// phrase is stripped so only the actual question reaches the LLM, and a stop
// phrase mutes the transcript entirely.
type wakeSTT struct {
	inner stt.Provider
	det   *voicecmd.Detector
}

func wrapSTT(v config.VoiceConfig, inner stt.Provider) stt.Provider {
	if inner == nil || v.WakePhrase == "" {
		return inner
	}
	var opts []voicecmd.Option
	if v.Threshold > 0 {
		opts = append(opts, voicecmd.WithThreshold(v.Threshold))
	}
	return &wakeSTT{inner: inner, det: voicecmd.New(v.WakePhrase, v.StopPhrase, opts...)}
}

func (w *wakeSTT) Transcribe(ctx context.Context, clip *audio.Clip) (string, error) {
	text, err := w.inner.Transcribe(ctx, clip)
	if err != nil {
		return "", err
	}
	if w.det.IsStop(text) {
		return "", nil
	}
	if rest, ok := w.det.StripWake(text); ok {
		return rest, nil
	}
	return text, nil
}
