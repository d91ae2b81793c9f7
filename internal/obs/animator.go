package obs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Caller is the request surface the Animator drives. *Client implements it;
// tests substitute a recorder.
type Caller interface {
	Call(ctx context.Context, requestType string, data any) (json.RawMessage, error)
}

// AnimatorConfig positions the avatar source on screen. The zero value is
// replaced by the layout the overlay was designed for.
type AnimatorConfig struct {
	// SourceName is the avatar's scene item source name.
	SourceName string

	// OffscreenX is the avatar's parked X position, past the canvas edge.
	OffscreenX float64

	// OnscreenX is the speaking X position.
	OnscreenX float64

	// RestY is the baseline Y position.
	RestY float64

	// BounceHeight is the maximum upward displacement in pixels while
	// talking.
	BounceHeight float64

	// Scale is applied to both axes on every transform.
	Scale float64

	// SlideStep is how many pixels the avatar moves per slide frame.
	SlideStep float64

	// SlideInterval is the delay between slide frames.
	SlideInterval time.Duration
}

func (c *AnimatorConfig) applyDefaults() {
	if c.OffscreenX == 0 {
		c.OffscreenX = 2562
	}
	if c.OnscreenX == 0 {
		c.OnscreenX = 1200
	}
	if c.BounceHeight == 0 {
		c.BounceHeight = 25
	}
	if c.Scale == 0 {
		c.Scale = 0.5
	}
	if c.SlideStep == 0 {
		c.SlideStep = 40
	}
	if c.SlideInterval == 0 {
		c.SlideInterval = 10 * time.Millisecond
	}
}

// Animator slides the avatar in and out of the current scene and bounces it
// in time with a clip's volume envelope. A missing scene source is a logged
// no-op on every operation, so a mislabeled overlay never breaks playback.
type Animator struct {
	caller Caller
	cfg    AnimatorConfig
}

// NewAnimator creates an Animator driving caller.
func NewAnimator(caller Caller, cfg AnimatorConfig) *Animator {
	cfg.applyDefaults()
	return &Animator{caller: caller, cfg: cfg}
}

type sceneItem struct {
	scene string
	id    float64
}

// lookup finds the avatar's scene item in the current program scene.
func (a *Animator) lookup(ctx context.Context) (*sceneItem, error) {
	raw, err := a.caller.Call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return nil, err
	}
	var scene struct {
		CurrentProgramSceneName string `json:"currentProgramSceneName"`
	}
	if err := json.Unmarshal(raw, &scene); err != nil {
		return nil, err
	}

	raw, err = a.caller.Call(ctx, "GetSceneItemList", map[string]any{
		"sceneName": scene.CurrentProgramSceneName,
	})
	if err != nil {
		return nil, err
	}
	var list struct {
		SceneItems []struct {
			SourceName  string  `json:"sourceName"`
			SceneItemID float64 `json:"sceneItemId"`
		} `json:"sceneItems"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	for _, it := range list.SceneItems {
		if it.SourceName == a.cfg.SourceName {
			return &sceneItem{scene: scene.CurrentProgramSceneName, id: it.SceneItemID}, nil
		}
	}
	slog.Warn("avatar source not found in scene",
		"source", a.cfg.SourceName, "scene", scene.CurrentProgramSceneName)
	return nil, nil
}

func (a *Animator) setTransform(ctx context.Context, it *sceneItem, x, y float64) error {
	_, err := a.caller.Call(ctx, "SetSceneItemTransform", map[string]any{
		"sceneName":   it.scene,
		"sceneItemId": it.id,
		"sceneItemTransform": map[string]any{
			"positionX": x,
			"positionY": y,
			"scaleX":    a.cfg.Scale,
			"scaleY":    a.cfg.Scale,
		},
	})
	return err
}

func (a *Animator) setEnabled(ctx context.Context, it *sceneItem, enabled bool) error {
	_, err := a.caller.Call(ctx, "SetSceneItemEnabled", map[string]any{
		"sceneName":        it.scene,
		"sceneItemId":      it.id,
		"sceneItemEnabled": enabled,
	})
	return err
}

// Activate parks the avatar off screen, enables it, and slides it in.
func (a *Animator) Activate(ctx context.Context) error {
	it, err := a.lookup(ctx)
	if err != nil || it == nil {
		return err
	}
	if err := a.setTransform(ctx, it, a.cfg.OffscreenX, a.cfg.RestY); err != nil {
		return err
	}
	if err := a.setEnabled(ctx, it, true); err != nil {
		return err
	}
	return a.slide(ctx, it, a.cfg.OffscreenX, a.cfg.OnscreenX)
}

// Deactivate slides the avatar out and disables it.
func (a *Animator) Deactivate(ctx context.Context) error {
	it, err := a.lookup(ctx)
	if err != nil || it == nil {
		return err
	}
	if err := a.slide(ctx, it, a.cfg.OnscreenX, a.cfg.OffscreenX); err != nil {
		return err
	}
	return a.setEnabled(ctx, it, false)
}

func (a *Animator) slide(ctx context.Context, it *sceneItem, from, to float64) error {
	step := a.cfg.SlideStep
	if to < from {
		step = -step
	}
	for x := from; (step > 0 && x < to) || (step < 0 && x > to); x += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.setTransform(ctx, it, x, a.cfg.RestY); err != nil {
			return err
		}
		sleep(ctx, a.cfg.SlideInterval)
	}
	return a.setTransform(ctx, it, to, a.cfg.RestY)
}

// Bounce moves the avatar vertically in time with the clip's normalised
// volume envelope (one value per 50 ms) for the given duration. The avatar is
// returned to its rest transform on every exit path, including cancellation.
func (a *Animator) Bounce(ctx context.Context, envelope []float64, duration time.Duration) error {
	it, err := a.lookup(ctx)
	if err != nil || it == nil {
		return err
	}
	if len(envelope) == 0 {
		return nil
	}

	defer func() {
		// Rest restore must survive cancellation of ctx.
		restCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.setTransform(restCtx, it, a.cfg.OnscreenX, a.cfg.RestY); err != nil {
			slog.Warn("failed to restore avatar rest transform", "err", err)
		}
	}()

	const frame = 50 * time.Millisecond
	start := time.Now()
	for {
		elapsed := time.Since(start)
		if elapsed >= duration {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		idx := int(elapsed/frame) % len(envelope)
		y := a.cfg.RestY - envelope[idx]*a.cfg.BounceHeight
		if err := a.setTransform(ctx, it, a.cfg.OnscreenX, y); err != nil {
			return err
		}
		sleep(ctx, frame/2)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
