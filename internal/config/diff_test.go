package config

import "testing"

func TestDiffEmptyForIdenticalConfigs(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	if d := Diff(a, b); !d.Empty() {
		t.Fatalf("diff = %+v; want empty", d)
	}
}

func TestDiffDetectsPromptChange(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	b.Prompts.Raid = "React with more hype."
	d := Diff(a, b)
	if !d.PromptsChanged {
		t.Fatal("prompt change not detected")
	}
	if d.ReactionsChanged || d.QueueChanged || d.ScheduledChanged || d.LogLevelChanged {
		t.Fatalf("unrelated changes flagged: %+v", d)
	}
}

func TestDiffDetectsReactionThresholds(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	b.Reactions.RaidViewerThreshold = 50
	if d := Diff(a, b); !d.ReactionsChanged {
		t.Fatal("threshold change not detected")
	}
}

func TestDiffDetectsQueueTuning(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	b.Queue.AutoQueue = true
	if d := Diff(a, b); !d.QueueChanged {
		t.Fatal("queue change not detected")
	}
}

func TestDiffDetectsScheduledMessages(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	b.Scheduled = []ScheduledMessage{{ID: "socials", Text: "hi", MinMessages: 1}}
	if d := Diff(a, b); !d.ScheduledChanged {
		t.Fatal("scheduled message change not detected")
	}
}

func TestDiffDetectsLogLevel(t *testing.T) {
	t.Parallel()

	a := validConfig()
	b := validConfig()
	b.Server.LogLevel = LogDebug
	d := Diff(a, b)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Fatalf("diff = %+v", d)
	}
}
