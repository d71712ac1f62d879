package livecheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// Outcome grades one diagnostic step.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeWarning Outcome = "warning"
	OutcomeFailed  Outcome = "failed"
)

// Step is the result of one diagnostic probe.
type Step struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
}

// Report is the full diagnostic result, steps in execution order.
type Report struct {
	StreamID string `json:"stream_id"`
	Steps    []Step `json:"steps"`
	Live     bool   `json:"live"`
}

// OK reports whether no step failed.
func (r Report) OK() bool {
	for _, s := range r.Steps {
		if s.Outcome == OutcomeFailed {
			return false
		}
	}
	return true
}

// Diagnose checks internet connectivity, platform reachability, the
// broadcaster profile and live indicators. The first two probes run
// concurrently. A probe failure is recorded in the report, not returned;
// the error return is reserved for an empty stream id or a cancelled ctx.
func (c *Checker) Diagnose(ctx context.Context, streamID string) (Report, error) {
	rep := Report{StreamID: streamID}
	if streamID == "" {
		return rep, errors.New("livecheck: stream id must not be empty")
	}

	var internet, platform Step
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		internet = c.reachable(egCtx, "internet", c.cfg.ConnectivityURL)
		return nil
	})
	eg.Go(func() error {
		platform = c.reachable(egCtx, "platform", c.cfg.PlatformURL)
		return nil
	})
	_ = eg.Wait()
	rep.Steps = append(rep.Steps, internet, platform)
	if err := ctx.Err(); err != nil {
		return rep, err
	}

	profile, body := c.profile(ctx, streamID)
	rep.Steps = append(rep.Steps, profile)
	if profile.Outcome == OutcomeOK {
		live := Step{Name: "live"}
		if c.hasIndicator(body) {
			live.Outcome, live.Message = OutcomeOK, "live stream detected"
			rep.Live = true
		} else {
			live.Outcome, live.Message = OutcomeWarning, "no live stream detected; start streaming before starting the bot"
		}
		rep.Steps = append(rep.Steps, live)
	}
	return rep, ctx.Err()
}

func (c *Checker) reachable(ctx context.Context, name, url string) Step {
	if url == "" {
		return Step{Name: name, Outcome: OutcomeWarning, Message: "no url configured, skipped"}
	}
	code, _, err := c.get(ctx, url)
	switch {
	case err != nil:
		return Step{Name: name, Outcome: OutcomeFailed, Message: err.Error()}
	case code != http.StatusOK:
		return Step{Name: name, Outcome: OutcomeWarning, Message: fmt.Sprintf("%s answered status %d", url, code)}
	default:
		return Step{Name: name, Outcome: OutcomeOK, Message: url + " is reachable"}
	}
}

func (c *Checker) profile(ctx context.Context, streamID string) (Step, string) {
	step := Step{Name: "profile"}
	tmpl := c.cfg.ProfileURL
	if tmpl == "" {
		tmpl = c.cfg.LiveURL
	}
	if tmpl == "" {
		step.Outcome, step.Message = OutcomeWarning, "no profile url configured, skipped"
		return step, ""
	}
	url := expand(tmpl, streamID)
	code, body, err := c.get(ctx, url)
	switch {
	case err != nil:
		step.Outcome, step.Message = OutcomeFailed, err.Error()
	case code == http.StatusNotFound:
		step.Outcome, step.Message = OutcomeFailed, fmt.Sprintf("%v: %q, check the spelling", ErrNotFound, streamID)
	case code != http.StatusOK:
		step.Outcome, step.Message = OutcomeWarning, fmt.Sprintf("profile check answered status %d", code)
	default:
		step.Outcome, step.Message = OutcomeOK, "profile exists and is accessible"
	}
	return step, body
}
