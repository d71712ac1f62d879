package app

import (
	"context"
	"log/slog"

	"github.com/MrWong99/streamtts/internal/config"
	"github.com/MrWong99/streamtts/internal/filewatch"
)

// watchFiles invalidates the word lists and reloads the links file when
// they change on disk. It restarts after a config reload moved any of them
// and returns when ctx is cancelled.
func (a *App) watchFiles(ctx context.Context) {
	for {
		cfg := a.Config()
		paths := []string{cfg.Commands.JokesFile, cfg.Commands.YoMamaFile, cfg.Links.File}

		wctx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- filewatch.Watch(wctx, paths, a.fileChanged) }()

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return
		case <-a.rewatch:
			cancel()
			<-errCh
			continue
		case err := <-errCh:
			cancel()
			if err != nil {
				slog.Warn("data file watching disabled", "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-a.rewatch:
		}
	}
}

func (a *App) fileChanged(path string) {
	cfg := a.Config()
	switch path {
	case cfg.Commands.JokesFile:
		a.jokes.Invalidate()
		slog.Info("word list changed", "path", path)
	case cfg.Commands.YoMamaFile:
		a.yoMama.Invalidate()
		slog.Info("word list changed", "path", path)
	case cfg.Links.File:
		doc, err := a.links.Reload()
		if err != nil {
			slog.Warn("links reload failed", "path", path, "err", err)
			return
		}
		slog.Info("links reloaded", "path", path, "links", len(doc.Links()))
	}
}

// applyConfig is the config watcher callback. It applies the hot-reloadable
// settings and warns about the rest.
func (a *App) applyConfig(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.level != nil {
		a.level.Set(SlogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.VoicesChanged {
		a.bot.SetVoices(voiceProfiles(new))
	}
	if d.VoiceChanged || d.VoicesChanged {
		if v, ok := initialVoice(new, voiceProfiles(new)); ok {
			if _, err := a.bot.SetVoice(v.ID); err != nil {
				slog.Warn("configured voice not applied", "voice", v.ID, "err", err)
			}
		}
	}
	if d.JokesFileChanged {
		a.jokes.SetPath(new.Commands.JokesFile)
	}
	if d.YoMamaFileChanged {
		a.yoMama.SetPath(new.Commands.YoMamaFile)
	}
	if d.LinksFileChanged {
		a.links.SetPath(new.Links.File)
	}
	if d.DedupChanged {
		a.dedup.SetResetInterval(new.Dedup.ResetInterval)
	}
	if d.StreamChanged {
		if err := a.bot.SetStreamID(new.Stream.ID); err != nil {
			slog.Warn("stream change applies after the bot is stopped", "stream_id", new.Stream.ID, "err", err)
		}
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires a restart", "section", section)
	}

	a.mu.Lock()
	a.cfg = new
	a.mu.Unlock()

	if d.JokesFileChanged || d.YoMamaFileChanged || d.LinksFileChanged {
		select {
		case a.rewatch <- struct{}{}:
		default:
		}
	}
	if d.Any() {
		slog.Info("config reloaded")
	}
}
