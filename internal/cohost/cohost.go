// Package cohost holds the reaction logic: it turns platform events (raids,
// cheers, resubs, gift bursts) and operator actions (ask, summarize, respond)
// into voiced clips on the playback queue or lines in chat.
//
// Every voiced reaction follows the same pipeline: build a prompt, complete it
// through the LLM, synthesize the reply through the TTS fallback chain, then
// either enqueue the clip or play it ad hoc under a transient pause.
package cohost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/Mizu36/maddieply/internal/control"
	"github.com/Mizu36/maddieply/internal/events"
	"github.com/Mizu36/maddieply/internal/giftsub"
	"github.com/Mizu36/maddieply/internal/queue"
	"github.com/Mizu36/maddieply/pkg/audio"
	"github.com/Mizu36/maddieply/pkg/provider/llm"
	"github.com/Mizu36/maddieply/pkg/provider/stt"
)

// Synthesizer renders text to a clip path. *resilience.SynthFallback
// implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (string, error)
}

// ChatRoom is the chat surface the responder talks through.
type ChatRoom interface {
	Send(ctx context.Context, text string) error
	Recent() []events.ChatMessage
	ClearRecent()
}

// Transients is the scheduler surface for the mic flows: a transient pause
// around an ad-hoc clip that never enters the queue.
type Transients interface {
	BeginTransient() (restore func(), err error)
	PlayAdHoc(ctx context.Context, ref string) error
}

// Recorder captures one utterance from the operator's microphone.
type Recorder func(ctx context.Context) (*audio.Clip, error)

// Prompts are the persona system prompts, one per reaction flow. The <RNG>
// placeholder in the resub prompts is replaced with a tier-specific random
// number before completion.
type Prompts struct {
	RespondToMessages string
	SummarizeChat     string
	RespondToStreamer string

	BitDonation            string
	BitDonationWithMessage string
	BitScream              string

	GiftedSub string
	Raid      string

	ResubIntern     string
	ResubEmployee   string
	ResubSupervisor string
	ResubTenured    string
}

// Thresholds gate which events earn a voiced reaction and how strong it is.
type Thresholds struct {
	// RaidViewers is the minimum raid size for a voiced reaction. The chat
	// alert is sent regardless.
	RaidViewers int

	// Bit reaction tiers, ascending. Cheers below BitsNormal are ignored.
	BitsNormal      int
	BitsImpressed   int
	BitsExaggerated int
	BitsScreaming   int

	// Resub persona tiers by cumulative months subscribed.
	InternMaxMonths     int
	EmployeeMaxMonths   int
	SupervisorMaxMonths int
}

// Config holds the responder's prompts and thresholds.
type Config struct {
	Prompts    Prompts
	Thresholds Thresholds

	// MicTimeout caps one ask-the-assistant recording. Zero means 30s.
	MicTimeout time.Duration
}

// Deps are the collaborators a Responder drives. All fields are required
// except Record and STT, which may be nil when no microphone is configured.
type Deps struct {
	Queue     *queue.EventQueue
	Scheduler Transients
	Chat      ChatRoom
	LLM       llm.Provider
	History   *llm.History
	Synth     Synthesizer
	STT       stt.Provider
	Record    Recorder
	Gifts     *giftsub.Aggregator
}

// Responder implements the reaction flows. Safe for concurrent use; colliding
// voiced flows are refused by the scheduler's playback and transient guards.
type Responder struct {
	deps Deps
	cfg  Config
	rng  func(min, max int) int
}

// Option customises a Responder.
type Option func(*Responder)

// WithRNG overrides the random number source, for tests.
func WithRNG(rng func(min, max int) int) Option {
	return func(r *Responder) { r.rng = rng }
}

// New creates a Responder.
func New(deps Deps, cfg Config, opts ...Option) (*Responder, error) {
	switch {
	case deps.Queue == nil:
		return nil, errors.New("cohost: queue is required")
	case deps.Scheduler == nil:
		return nil, errors.New("cohost: scheduler is required")
	case deps.Chat == nil:
		return nil, errors.New("cohost: chat is required")
	case deps.LLM == nil:
		return nil, errors.New("cohost: llm provider is required")
	case deps.Synth == nil:
		return nil, errors.New("cohost: synthesizer is required")
	case deps.Gifts == nil:
		return nil, errors.New("cohost: gift aggregator is required")
	}
	if deps.History == nil {
		deps.History = llm.NewHistory(0)
	}
	if cfg.MicTimeout == 0 {
		cfg.MicTimeout = 30 * time.Second
	}
	r := &Responder{
		deps: deps,
		cfg:  cfg,
		rng: func(min, max int) int {
			return rand.IntN(max-min+1) + min
		},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

var _ control.Responder = (*Responder)(nil)

// ─── Platform events ─────────────────────────────────────────────────────────

// HandleRaid announces a raid in chat and, past the viewer threshold, voices
// a reaction on the priority lane.
func (r *Responder) HandleRaid(ctx context.Context, raid events.Raid) error {
	alert := fmt.Sprintf("RAID ALERT: %s has raided with %d viewers!", raid.FromBroadcaster, raid.Viewers)
	if err := r.deps.Chat.Send(ctx, alert); err != nil {
		slog.Warn("raid chat alert failed", "err", err)
	}
	if raid.Viewers < r.cfg.Thresholds.RaidViewers {
		slog.Debug("raid below reaction threshold",
			"from", raid.FromBroadcaster, "viewers", raid.Viewers)
		return nil
	}

	reply, err := r.complete(ctx, r.cfg.Prompts.Raid,
		fmt.Sprintf("%s has raided with %d viewers!", raid.FromBroadcaster, raid.Viewers))
	if err != nil {
		return err
	}
	return r.enqueue(ctx, reply, queue.Item{
		Kind:       queue.KindPriorityEvent,
		SourceUser: raid.FromBroadcaster,
		Category:   "Raid",
	})
}

// HandleCheer voices a bit-donation reaction on the ordinary lane. The
// reaction escalates with the amount; cheers below the lowest threshold get
// nothing.
func (r *Responder) HandleCheer(ctx context.Context, cheer events.Cheer) error {
	name := cheer.User
	if cheer.Anonymous {
		name = "An anonymous user"
	}
	th := r.cfg.Thresholds
	if cheer.Bits < th.BitsNormal {
		slog.Debug("cheer below reaction threshold", "user", name, "bits", cheer.Bits)
		return nil
	}
	if err := r.deps.Chat.Send(ctx, fmt.Sprintf("%s donated %d bits!", name, cheer.Bits)); err != nil {
		slog.Warn("cheer chat alert failed", "err", err)
	}

	var reaction string
	switch {
	case cheer.Bits >= th.BitsScreaming:
		reaction = ""
	case cheer.Bits >= th.BitsExaggerated:
		reaction = "Exaggerated"
	case cheer.Bits >= th.BitsImpressed:
		reaction = "Impressed"
	default:
		reaction = "Normal"
	}

	var system, user string
	switch {
	case reaction == "":
		system = r.cfg.Prompts.BitScream
		user = fmt.Sprintf("%s donated %d bits. Just yell! Scream, freak out, and be as loud as possible!", name, cheer.Bits)
	case cheer.Message == "":
		system = r.cfg.Prompts.BitDonation
		user = fmt.Sprintf("%s donated %d bits. In response to the amount of bits, you should respond with a %s reaction.", name, cheer.Bits, reaction)
	default:
		system = r.cfg.Prompts.BitDonationWithMessage
		user = fmt.Sprintf("%s donated %d bits.\n%s's message: %s In response to the amount of bits, you should respond with a %s reaction.",
			name, cheer.Bits, name, cheer.Message, reaction)
	}

	reply, err := r.complete(ctx, system, user)
	if err != nil {
		return err
	}
	if cheer.Message != "" {
		reply = fmt.Sprintf("'%s.' %s", cheer.Message, reply)
	}
	return r.enqueue(ctx, reply, queue.Item{
		Kind:       queue.KindOrdinaryAudio,
		SourceUser: name,
		Category:   fmt.Sprintf("Bit Donation of %d", cheer.Bits),
	})
}

// HandleResub voices a resub reaction on the priority lane. The persona
// escalates with cumulative months; the <RNG> placeholder in the tier prompt
// is replaced with a tier-specific random number.
func (r *Responder) HandleResub(ctx context.Context, resub events.Resub) error {
	th := r.cfg.Thresholds
	var system string
	var lo, hi int
	switch {
	case resub.CumulativeMonths <= th.InternMaxMonths:
		system, lo, hi = r.cfg.Prompts.ResubIntern, 1, 5
	case resub.CumulativeMonths <= th.EmployeeMaxMonths:
		system, lo, hi = r.cfg.Prompts.ResubEmployee, 6, 20
	case resub.CumulativeMonths <= th.SupervisorMaxMonths:
		system, lo, hi = r.cfg.Prompts.ResubSupervisor, 21, 50
	default:
		system, lo, hi = r.cfg.Prompts.ResubTenured, 51, 100
	}
	system = strings.ReplaceAll(system, "<RNG>", fmt.Sprintf("%d", r.rng(lo, hi)))

	tier := tierNumber(resub.Tier)
	var user string
	if resub.StreakMonths > 1 {
		user = fmt.Sprintf("%s resubscribed for %d months in a row for a total of %d months! Tier %s with message: %s",
			resub.User, resub.StreakMonths, resub.CumulativeMonths, tier, resub.Message)
	} else {
		user = fmt.Sprintf("%s resubscribed for a total of %d months! Tier %s with message: %s",
			resub.User, resub.CumulativeMonths, tier, resub.Message)
	}

	reply, err := r.complete(ctx, system, user)
	if err != nil {
		return err
	}
	if resub.Message != "" {
		reply = fmt.Sprintf("%s says: %s. %s", resub.User, resub.Message, reply)
	}
	return r.enqueue(ctx, reply, queue.Item{
		Kind:       queue.KindPriorityEvent,
		SourceUser: resub.User,
		Category:   fmt.Sprintf("Resub for %d months", resub.CumulativeMonths),
	})
}

// HandleGiftTotals records a gifter's declared burst with the aggregator.
func (r *Responder) HandleGiftTotals(g events.GiftTotals) {
	gifter := g.Gifter
	if g.Anonymous || gifter == "" {
		gifter = "Anonymous"
	}
	r.deps.Gifts.Open(gifter, g.Count, g.Tier, g.CumulativeTotal)
}

// HandleGiftRecipient records one gifted recipient. When the burst completes
// it is voiced as a single combined announcement on the priority lane.
func (r *Responder) HandleGiftRecipient(ctx context.Context, recipient string) error {
	ann, done := r.deps.Gifts.AddRecipient(recipient)
	if !done {
		return nil
	}
	return r.announceGifts(ctx, ann)
}

func (r *Responder) announceGifts(ctx context.Context, ann *giftsub.Announcement) error {
	gifter := ann.Gifter
	if gifter == "Anonymous" {
		gifter = "An anonymous gifter"
	}
	recipients := strings.Join(ann.Recipients, ", ")
	var user string
	if ann.CumulativeTotal > 0 {
		user = fmt.Sprintf("%s gifted %d tier %s subs to the following users: %s! They have gifted a total of %d subs.",
			gifter, ann.Count, tierNumber(ann.Tier), recipients, ann.CumulativeTotal)
	} else {
		user = fmt.Sprintf("%s gifted %d subs to: %s.", gifter, ann.Count, recipients)
	}

	reply, err := r.complete(ctx, r.cfg.Prompts.GiftedSub, user)
	if err != nil {
		return err
	}
	return r.enqueue(ctx, reply, queue.Item{
		Kind:       queue.KindPriorityEvent,
		SourceUser: ann.Gifter,
		Category:   fmt.Sprintf("%d gifted subs", ann.Count),
	})
}

// ─── Operator actions ────────────────────────────────────────────────────────

// RespondToChat completes a reply to the recent chat messages and posts it
// back to chat as text. The consumed log is cleared.
func (r *Responder) RespondToChat(ctx context.Context) error {
	lines := r.chatLog()
	if lines == "" {
		slog.Debug("respond requested with no recent messages")
		return nil
	}
	reply, err := r.complete(ctx, r.cfg.Prompts.RespondToMessages, lines)
	if err != nil {
		return err
	}
	if err := r.deps.Chat.Send(ctx, reply); err != nil {
		return fmt.Errorf("cohost: send chat response: %w", err)
	}
	r.deps.Chat.ClearRecent()
	return nil
}

// Summarize voices a summary of recent chat as an ad-hoc clip under a
// transient pause.
func (r *Responder) Summarize(ctx context.Context) error {
	restore, err := r.deps.Scheduler.BeginTransient()
	if err != nil {
		return err
	}
	defer restore()

	lines := r.chatLog()
	if lines == "" {
		slog.Debug("summarize requested with no recent messages")
		return nil
	}
	reply, err := r.complete(ctx, r.cfg.Prompts.SummarizeChat, lines)
	if err != nil {
		return err
	}
	return r.speakAdHoc(ctx, reply)
}

// Ask records the operator's microphone, transcribes it, completes a reply
// with conversation history, and voices it ad hoc under a transient pause.
func (r *Responder) Ask(ctx context.Context) error {
	if r.deps.Record == nil || r.deps.STT == nil {
		return errors.New("cohost: no microphone configured")
	}
	restore, err := r.deps.Scheduler.BeginTransient()
	if err != nil {
		return err
	}
	defer restore()

	slog.Info("listening to microphone")
	micCtx, cancel := context.WithTimeout(ctx, r.cfg.MicTimeout)
	defer cancel()
	clip, err := r.deps.Record(micCtx)
	if err != nil {
		return fmt.Errorf("cohost: record mic: %w", err)
	}
	heard, err := r.deps.STT.Transcribe(ctx, clip)
	if err != nil {
		return fmt.Errorf("cohost: transcribe: %w", err)
	}
	heard = strings.TrimSpace(heard)
	if heard == "" {
		slog.Info("no speech detected, nothing to answer")
		return nil
	}

	r.deps.History.Append("user", heard)
	resp, err := r.deps.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: r.cfg.Prompts.RespondToStreamer,
		Messages:     r.deps.History.Messages(),
	})
	if err != nil {
		return fmt.Errorf("cohost: complete: %w", err)
	}
	r.deps.History.Append("assistant", resp.Content)
	return r.speakAdHoc(ctx, resp.Content)
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// complete runs one single-turn completion with a system prompt.
func (r *Responder) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := r.deps.LLM.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: user}},
	})
	if err != nil {
		return "", fmt.Errorf("cohost: complete: %w", err)
	}
	return resp.Content, nil
}

// enqueue synthesizes reply and adds the finished clip to the queue. A spent
// synthesis chain drops the reaction with a log line rather than erroring up.
func (r *Responder) enqueue(ctx context.Context, reply string, it queue.Item) error {
	path, err := r.deps.Synth.Synthesize(ctx, reply)
	if err != nil {
		slog.Error("reaction dropped, synthesis chain down",
			"category", it.Category, "err", err)
		return nil
	}
	it.AudioRef = path
	if it.Kind == queue.KindPriorityEvent {
		r.deps.Queue.AddEvent(it)
	} else {
		r.deps.Queue.AddAudio(it)
	}
	slog.Info("reaction queued", "category", it.Category, "from", it.SourceUser)
	return nil
}

// speakAdHoc synthesizes reply and plays it immediately, bypassing the queue.
func (r *Responder) speakAdHoc(ctx context.Context, reply string) error {
	path, err := r.deps.Synth.Synthesize(ctx, reply)
	if err != nil {
		return fmt.Errorf("cohost: synthesize: %w", err)
	}
	return r.deps.Scheduler.PlayAdHoc(ctx, path)
}

// chatLog formats the recent chat messages one per line.
func (r *Responder) chatLog() string {
	msgs := r.deps.Chat.Recent()
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.User, m.Text))
	}
	return strings.Join(lines, "\n")
}

// tierNumber maps the wire tier ("1000") to its display number ("1").
func tierNumber(tier string) string {
	switch tier {
	case "1000":
		return "1"
	case "2000":
		return "2"
	case "3000":
		return "3"
	}
	return tier
}
