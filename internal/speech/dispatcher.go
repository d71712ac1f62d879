// Package speech turns text into audible speech.
//
// A [Dispatcher] owns a bounded queue drained by a fixed pool of workers.
// Each job is synthesized by a [tts.Provider], written to a uniquely named
// temporary file in the audio directory, played synchronously by an
// [audio.Player], and the file is removed on every exit path. Failures are
// reported through the result callback and never reach the caller of
// [Dispatcher.Submit].
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/streamtts/internal/observe"
	"github.com/MrWong99/streamtts/pkg/audio"
	"github.com/MrWong99/streamtts/pkg/provider/tts"
)

const (
	defaultWorkers   = 1
	defaultQueueSize = 32
)

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithWorkers sets the number of concurrent speech workers. Values below 1
// are ignored.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// WithQueueSize sets how many jobs may wait for a worker.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queueSize = n
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithOnResult registers a callback invoked after every job, from the worker
// goroutine that ran it.
func WithOnResult(fn func(Result)) Option {
	return func(d *Dispatcher) { d.onResult = fn }
}

// WithClock overrides the clock used to stamp temporary file names.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// Dispatcher runs speech jobs on a bounded worker pool.
type Dispatcher struct {
	provider tts.Provider
	player   audio.Player
	dir      string

	workers   int
	queueSize int
	metrics   *observe.Metrics
	onResult  func(Result)
	now       func() time.Time

	// ctx is the parent of every job. It is cancelled only when Close gives
	// up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	queue  chan Job
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its workers. Clips are
// written below dir; an empty dir means [os.TempDir].
func NewDispatcher(provider tts.Provider, player audio.Player, dir string, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider:  provider,
		player:    player,
		dir:       dir,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		now:       time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	if d.metrics == nil {
		d.metrics = observe.DefaultMetrics()
	}
	if d.dir == "" {
		d.dir = os.TempDir()
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.queue = make(chan Job, d.queueSize)

	d.wg.Add(d.workers)
	for range d.workers {
		go d.work()
	}
	return d
}

// Submit enqueues job without blocking. It returns [ErrQueueFull] when the
// queue is saturated and [ErrClosed] after Close.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- job:
		d.metrics.QueueDepth.Add(d.ctx, 1)
		return nil
	default:
		d.metrics.RecordSpeechJob(d.ctx, string(job.Kind), "dropped")
		return ErrQueueFull
	}
}

// Pending returns the number of queued jobs not yet picked up by a worker.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Close stops accepting jobs and waits for queued and in-flight jobs to
// finish. If ctx ends first, running jobs are cancelled and ctx.Err is
// returned. Close is idempotent.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for job := range d.queue {
		d.metrics.QueueDepth.Add(d.ctx, -1)
		d.run(d.ctx, job)
	}
}

// run executes one job and reports its result.
func (d *Dispatcher) run(ctx context.Context, job Job) {
	d.report(ctx, d.speak(ctx, job))
}

// Speak runs job synchronously on the caller's goroutine. It is used for
// operator test speech, which must not be dropped by a busy queue.
func (d *Dispatcher) Speak(ctx context.Context, job Job) error {
	res := d.speak(ctx, job)
	d.report(ctx, res)
	return res.Err
}

func (d *Dispatcher) report(ctx context.Context, res Result) {
	status := "ok"
	if res.Err != nil {
		status = "error"
		var se *Error
		if errors.As(res.Err, &se) {
			status = string(se.Stage) + "_error"
		}
		observe.Logger(ctx).Warn("speech job failed",
			"job_id", res.Job.ID.String(),
			"kind", string(res.Job.Kind),
			"err", res.Err,
		)
	}
	d.metrics.RecordSpeechJob(ctx, string(res.Job.Kind), status)
	if d.onResult != nil {
		d.onResult(res)
	}
}

func (d *Dispatcher) speak(ctx context.Context, job Job) (res Result) {
	res.Job = job
	ctx, span := observe.StartSpan(ctx, "speech.speak",
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.kind", string(job.Kind)),
			attribute.String("voice", job.Voice.ID),
		),
	)
	defer func() { observe.EndSpan(span, res.Err) }()
	// A panicking backend fails the job instead of the worker or the caller.
	defer func() {
		if r := recover(); r != nil {
			res.Err = &Error{Stage: StagePlay, JobID: job.ID, Err: panicError{r}}
		}
	}()

	voice := job.Voice
	if voice.LanguageCode == "" {
		voice.LanguageCode = voice.ResolveLanguage()
	}

	start := time.Now()
	clip, err := d.synthesize(ctx, job.Text, voice)
	res.Synthesis = time.Since(start)
	d.metrics.TTSDuration.Record(ctx, res.Synthesis.Seconds())
	if err != nil {
		res.Err = &Error{Stage: StageSynthesize, JobID: job.ID, Err: err}
		return res
	}

	path, err := d.writeClip(clip)
	if err != nil {
		res.Err = &Error{Stage: StageWrite, JobID: job.ID, Err: err}
		return res
	}
	defer func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("speech: failed to remove clip", "path", path, "err", err)
		}
	}()

	start = time.Now()
	err = d.player.Play(ctx, path)
	res.Playback = time.Since(start)
	d.metrics.PlaybackDuration.Record(ctx, res.Playback.Seconds())
	if err != nil {
		res.Err = &Error{Stage: StagePlay, JobID: job.ID, Err: err}
	}
	return res
}

func (d *Dispatcher) synthesize(ctx context.Context, text string, voice tts.VoiceProfile) (clip *tts.Audio, err error) {
	defer func() {
		if r := recover(); r != nil {
			clip, err = nil, panicError{r}
		}
	}()
	clip, err = d.provider.Synthesize(ctx, text, voice)
	if err == nil && (clip == nil || len(clip.Data) == 0) {
		err = errors.New("provider returned no audio")
	}
	return clip, err
}

// writeClip stores clip as tts-<unix>-<random>.<ext> in the audio directory.
func (d *Dispatcher) writeClip(clip *tts.Audio) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	f, err := os.CreateTemp(d.dir, fmt.Sprintf("tts-%d-*%s", d.now().Unix(), clip.Format.Ext()))
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close clip file: %w", err)
	}
	return f.Name(), nil
}
