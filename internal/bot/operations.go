package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrWong99/streamtts/internal/chat"
	"github.com/MrWong99/streamtts/internal/livecheck"
	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/internal/speech"
	"github.com/MrWong99/streamtts/internal/stats"
	"github.com/MrWong99/streamtts/internal/supervisor"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

// Start begins accepting chat and launches the connection loop and the
// live-status monitor. A cooldown refusal from the connection is returned
// as is, leaving the bot stopped.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	runCtx := b.runCtx
	b.mu.Unlock()
	if runCtx == nil {
		return ErrNotRunning
	}
	if !b.accepting.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := b.conn.Start(runCtx); err != nil {
		b.accepting.Store(false)
		var cd *supervisor.CooldownError
		switch {
		case errors.As(err, &cd):
			b.logf(stats.LevelWarning, "⏳ Rate limit cooldown: %ds remaining", int(cd.Remaining.Round(time.Second).Seconds()))
		case errors.Is(err, supervisor.ErrNoStream):
			b.logf(stats.LevelError, "❌ Please enter a stream username first")
		default:
			b.logf(stats.LevelError, "❌ Failed to start: %v", err)
		}
		b.publish()
		return err
	}

	b.stats.Start()
	streamID := b.conn.Status().StreamID
	observe.Logger(ctx).Info("bot started", "stream_id", streamID)
	b.logf(stats.LevelInfo, "🚀 Starting bot for @%s", streamID)
	if b.monitor != nil {
		if err := b.monitor.Start(runCtx, streamID); err != nil {
			b.logf(stats.LevelWarning, "⚠️ Live status monitoring unavailable: %v", err)
		} else {
			b.logf(stats.LevelInfo, "🔍 Started online status monitoring")
		}
	}
	b.publish()
	return nil
}

// Stop stops accepting chat, cancels any retry countdown and closes the
// session. Speech jobs already submitted still finish.
func (b *Bot) Stop() error {
	wasAccepting := b.accepting.Swap(false)
	if b.monitor != nil {
		b.monitor.Stop()
	}
	err := b.conn.Stop()
	b.stats.Stop()
	b.stats.SetConnection(supervisor.StateDisconnected.String(), 0)
	if wasAccepting {
		b.logf(stats.LevelWarning, "⏹️ Stopping bot and online monitoring...")
	}
	b.publish()
	return err
}

// ResetRateLimit clears the connection cooldown and attempt counter.
func (b *Bot) ResetRateLimit() error {
	if err := b.conn.ResetRateLimit(); err != nil {
		b.logf(stats.LevelWarning, "⚠️ Cannot reset rate limit: %v", err)
		return err
	}
	b.stats.SetConnection(b.conn.Status().State.String(), 0)
	b.logf(stats.LevelSuccess, "🔄 Rate limit reset. You can try connecting again.")
	b.publish()
	return nil
}

// SetStreamID changes the stream to connect to. It fails while the
// connection loop is running.
func (b *Bot) SetStreamID(id string) error {
	id = strings.TrimPrefix(strings.TrimSpace(id), "@")
	if err := b.conn.SetStreamID(id); err != nil {
		return err
	}
	b.logf(stats.LevelInfo, "🎯 Stream set to @%s", id)
	return nil
}

// TestSpeech speaks text with the current voice, bypassing chat and the
// queue. An empty text speaks a short sample naming the voice.
func (b *Bot) TestSpeech(ctx context.Context, text string) error {
	voice := b.Voice()
	label := voice.Name
	if label == "" {
		label = voice.ID
	}
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("Hello! This is a test using the %s voice.", label)
	}
	b.logf(stats.LevelInfo, "🔊 Testing TTS with %s...", label)
	if err := b.speaker.Speak(ctx, speech.NewJob(speech.KindTest, text, voice)); err != nil {
		return err
	}
	b.logf(stats.LevelSuccess, "✅ TTS played successfully")
	return nil
}

// TestConnection runs connection diagnostics for the configured stream and
// logs every step.
func (b *Bot) TestConnection(ctx context.Context) (livecheck.Report, error) {
	if b.diagnoser == nil {
		return livecheck.Report{}, ErrNoDiagnostics
	}
	streamID := b.conn.Status().StreamID
	if streamID == "" {
		b.logf(stats.LevelError, "❌ Please enter a stream username first")
		return livecheck.Report{}, supervisor.ErrNoStream
	}

	b.logf(stats.LevelInfo, "🔗 Testing connection for @%s...", streamID)
	rep, err := b.diagnoser.Diagnose(ctx, streamID)
	for i, step := range rep.Steps {
		b.logf(outcomeLevel(step.Outcome), "%d. %s: %s", i+1, step.Name, step.Message)
	}
	if err != nil {
		b.logf(stats.LevelError, "❌ Connection test failed: %v", err)
		return rep, err
	}
	if rep.OK() {
		b.logf(stats.LevelSuccess, "🔗 Connection test completed!")
	} else {
		b.logf(stats.LevelWarning, "🔗 Connection test completed with problems")
	}
	return rep, nil
}

func outcomeLevel(o livecheck.Outcome) stats.Level {
	switch o {
	case livecheck.OutcomeOK:
		return stats.LevelSuccess
	case livecheck.OutcomeWarning:
		return stats.LevelWarning
	default:
		return stats.LevelError
	}
}

// Voice returns the current voice.
func (b *Bot) Voice() tts.VoiceProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// Voices returns the voice catalogue.
func (b *Bot) Voices() []tts.VoiceProfile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]tts.VoiceProfile(nil), b.voices...)
}

// SetVoices replaces the voice catalogue. The current voice is kept when it
// is still listed, otherwise the first entry is selected.
func (b *Bot) SetVoices(voices []tts.VoiceProfile) {
	b.mu.Lock()
	b.voices = append([]tts.VoiceProfile(nil), voices...)
	keep := len(voices) == 0
	for _, v := range voices {
		if v.ID == b.voice.ID {
			keep = true
			break
		}
	}
	if !keep {
		b.voice = voices[0]
	}
	id := b.voice.ID
	b.mu.Unlock()
	b.stats.SetVoice(id)
}

// SetVoice selects a voice by its ID or display name. With an empty
// catalogue any non-empty ID is accepted.
func (b *Bot) SetVoice(nameOrID string) (tts.VoiceProfile, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	b.mu.Lock()
	var (
		found tts.VoiceProfile
		ok    bool
	)
	for _, v := range b.voices {
		if v.ID == nameOrID || strings.EqualFold(v.Name, nameOrID) {
			found, ok = v, true
			break
		}
	}
	if !ok && len(b.voices) == 0 && nameOrID != "" {
		found, ok = tts.VoiceProfile{ID: nameOrID}, true
	}
	if ok {
		b.voice = found
	}
	b.mu.Unlock()

	if !ok {
		return tts.VoiceProfile{}, fmt.Errorf("%w: %q", ErrUnknownVoice, nameOrID)
	}
	b.stats.SetVoice(found.ID)
	label := found.Name
	if label == "" {
		label = found.ID
	}
	b.logf(stats.LevelSuccess, "🎵 Voice changed to: %s", label)
	b.publish()
	return found, nil
}

// ExportUsers writes the joined-users list and returns the file path.
func (b *Bot) ExportUsers() (string, error) {
	path, err := b.stats.Roster().Export(b.exportDir, b.exportTitle)
	switch {
	case errors.Is(err, stats.ErrNoUsers):
		b.logf(stats.LevelWarning, "❌ No users to export")
	case err != nil:
		b.logf(stats.LevelError, "❌ Export failed: %v", err)
	default:
		b.logf(stats.LevelSuccess, "💾 Users list exported to: %s", path)
	}
	return path, err
}

// ClearUsers empties the joined-users list.
func (b *Bot) ClearUsers() {
	b.stats.Roster().Clear()
	b.logf(stats.LevelInfo, "🗑️ User list cleared")
	b.publish()
}

// HandleTransition reports a connection state change to the operator. Wire
// it with [supervisor.WithOnTransition].
func (b *Bot) HandleTransition(t supervisor.Transition) {
	b.stats.SetConnection(t.To.String(), 0)
	streamID := b.conn.Status().StreamID

	switch t.To {
	case supervisor.StateConnecting:
		b.logf(stats.LevelInfo, "🔄 Attempting to connect to @%s...", streamID)
	case supervisor.StateDisconnected:
		b.logf(stats.LevelInfo, "🔌 Disconnected")
	case supervisor.StateRateLimited:
		b.logf(stats.LevelError, "❌ Connection Error: live API rate limited (attempt %d)", t.Attempts)
		b.logf(stats.LevelWarning, "💡 Waiting %s before retry", t.Cooldown.Round(time.Second))
	case supervisor.StateError:
		b.logFailure(t, streamID)
	}
	if t.Final {
		b.connectionEnded()
	}
	b.publish()
}

// connectionEnded returns the bot to stopped after the connection loop gave
// up, so the operator can start it again.
func (b *Bot) connectionEnded() {
	if !b.accepting.Swap(false) {
		return
	}
	if b.monitor != nil {
		b.monitor.Stop()
	}
	b.stats.Stop()
	b.logf(stats.LevelWarning, "⏹️ Bot stopped, start it again to reconnect")
}

func (b *Bot) logFailure(t supervisor.Transition, streamID string) {
	switch t.Class {
	case chat.ClassNotFound:
		b.logf(stats.LevelError, "❌ Connection Error: @%s cannot go live or doesn't exist", streamID)
		b.logf(stats.LevelWarning, "💡 Make sure the username is correct and the user can broadcast live")
	case chat.ClassBlocked:
		b.logf(stats.LevelError, "❌ Connection Error: Blocked by the platform")
		b.logf(stats.LevelWarning, "💡 You may be temporarily blocked. Waiting %s before the next attempt", t.Cooldown.Round(time.Second))
	case chat.ClassRateLimited:
		b.logf(stats.LevelError, "❌ Still rate limited after %d attempts, giving up", t.Attempts)
		b.logf(stats.LevelWarning, "💡 Use reset-rate-limit or wait %s, then start again", t.Cooldown.Round(time.Second))
	case chat.ClassTransient:
		b.transient.Do(func() {
			b.logf(stats.LevelWarning, "🌐 Network error: %v", t.Err)
		})
	default:
		b.logf(stats.LevelError, "❌ Connection Error: %v", t.Err)
		b.logf(stats.LevelWarning, "💡 Check your internet connection and try again")
	}
}

// HandleCountdown reports the remaining retry wait. Wire it with
// [supervisor.WithOnCountdown].
func (b *Bot) HandleCountdown(remaining time.Duration) {
	b.stats.SetConnection(b.conn.Status().State.String(), remaining)
	if remaining > 0 {
		b.logf(stats.LevelInfo, "⏳ Retrying in %ds...", int(remaining.Round(time.Second).Seconds()))
	}
	b.publish()
}

// HandleLiveChange reports a change of the stream's live status. Wire it
// with [livecheck.WithOnChange].
func (b *Bot) HandleLiveChange(c livecheck.Change) {
	b.stats.SetStreamStatus(string(c.To))
	switch c.To {
	case livecheck.StatusOnline:
		b.logf(stats.LevelSuccess, "🟢 Stream is LIVE - Chat bot ready")
	case livecheck.StatusOffline:
		b.logf(stats.LevelWarning, "🔴 Stream appears to be OFFLINE")
		b.logf(stats.LevelInfo, "💡 Start your live stream for the bot to receive messages")
	case livecheck.StatusError:
		b.logf(stats.LevelWarning, "⚠️ Cannot check stream status: %v", c.Err)
	}
	b.publish()
}

// HandleLiveCheck counts a live-status probe. Wire it with
// [livecheck.WithOnCheck].
func (b *Bot) HandleLiveCheck(livecheck.Status, error) {
	b.stats.AddConnectionCheck()
}

// HandleSpeechResult reports failed speech jobs. Wire it with
// [speech.WithOnResult].
func (b *Bot) HandleSpeechResult(r speech.Result) {
	if r.Err == nil {
		return
	}
	b.logf(stats.LevelError, "❌ TTS Error: %v", r.Err)
}
