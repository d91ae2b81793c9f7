package config

import "slices"

// ConfigDiff describes what changed between two configs. Only fields that can
// be safely hot-reloaded are tracked; everything else needs a restart.
type ConfigDiff struct {
	// PromptsChanged is true when any reaction prompt text changed.
	PromptsChanged bool

	// ReactionsChanged is true when a threshold or the gift window changed.
	ReactionsChanged bool

	// QueueChanged is true when the cooldowns or auto-queue flag changed.
	QueueChanged bool

	// ScheduledChanged is true when the scheduled message set changed in any
	// way (added, removed, retimed or reworded).
	ScheduledChanged bool

	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// Empty reports whether nothing reloadable changed.
func (d ConfigDiff) Empty() bool {
	return !d.PromptsChanged && !d.ReactionsChanged && !d.QueueChanged &&
		!d.ScheduledChanged && !d.LogLevelChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Prompts != new.Prompts {
		d.PromptsChanged = true
	}

	if old.Reactions != new.Reactions {
		d.ReactionsChanged = true
	}

	if old.Queue != new.Queue {
		d.QueueChanged = true
	}

	if !slices.Equal(old.Scheduled, new.Scheduled) {
		d.ScheduledChanged = true
	}

	return d
}
