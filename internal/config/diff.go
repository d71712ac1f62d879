package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VoiceChanged  bool
	VoicesChanged bool

	JokesFileChanged  bool
	YoMamaFileChanged bool
	LinksFileChanged  bool

	DedupChanged  bool
	StreamChanged bool

	// RestartRequired names changed sections that only take effect after a
	// restart.
	RestartRequired []string
}

// Any reports whether anything hot-reloadable changed.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.VoicesChanged ||
		d.JokesFileChanged || d.YoMamaFileChanged || d.LinksFileChanged ||
		d.DedupChanged || d.StreamChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.VoiceChanged = old.Speech.Voice != new.Speech.Voice
	d.VoicesChanged = !slices.Equal(old.Speech.Voices, new.Speech.Voices)
	d.JokesFileChanged = old.Commands.JokesFile != new.Commands.JokesFile
	d.YoMamaFileChanged = old.Commands.YoMamaFile != new.Commands.YoMamaFile
	d.LinksFileChanged = old.Links.File != new.Links.File
	d.DedupChanged = old.Dedup != new.Dedup
	d.StreamChanged = old.Stream.ID != new.Stream.ID

	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Retry != new.Retry {
		d.RestartRequired = append(d.RestartRequired, "retry")
	}
	oldSp, newSp := old.Speech, new.Speech
	oldSp.Voice, newSp.Voice = "", ""
	oldSp.Voices, newSp.Voices = nil, nil
	if !reflect.DeepEqual(oldSp, newSp) {
		d.RestartRequired = append(d.RestartRequired, "speech")
	}

	return d
}
