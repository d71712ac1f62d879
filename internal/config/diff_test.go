package config_test

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/streamtts/internal/config"
)

func mustLoad(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	a := mustLoad(t, fullYAML)
	b := mustLoad(t, fullYAML)
	d := config.Diff(a, b)
	if d.Any() || len(d.RestartRequired) != 0 {
		t.Errorf("diff = %+v, want empty", d)
	}
}

func TestDiff_HotReloadable(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, fullYAML)
	new := mustLoad(t, fullYAML)
	new.Server.LogLevel = config.LogWarn
	new.Speech.Voice = "nova"
	new.Speech.Voices = append(new.Speech.Voices, config.VoiceEntry{Label: "Echo", ID: "echo"})
	new.Commands.JokesFile = "other.txt"
	new.Links.File = "l2.txt"
	new.Dedup.ResetInterval = time.Minute
	new.Stream.ID = "someoneelse"

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogWarn {
		t.Errorf("log level not detected: %+v", d)
	}
	if !d.VoiceChanged || !d.VoicesChanged || !d.JokesFileChanged || !d.LinksFileChanged || !d.DedupChanged || !d.StreamChanged {
		t.Errorf("diff = %+v", d)
	}
	if d.YoMamaFileChanged {
		t.Error("yo mama file reported changed")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := mustLoad(t, fullYAML)
	new := mustLoad(t, fullYAML)
	new.Providers.TTS.APIKey = "rotated"
	new.Retry.MaxAttempts = 9
	new.Speech.Workers = 4
	new.Server.ListenAddr = ":9999"

	d := config.Diff(old, new)
	for _, want := range []string{"providers", "retry", "speech", "server"} {
		if !slices.Contains(d.RestartRequired, want) {
			t.Errorf("RestartRequired = %v, missing %q", d.RestartRequired, want)
		}
	}
	if d.Any() {
		t.Errorf("hot-reloadable changes reported: %+v", d)
	}
}
