// Package metrics defines shared helpers for emitting standardised bot job
// metrics across services.
package metrics

import (
	"time"

	obserrors "github.com/followscope/followscope/internal/observability/errors"
	"github.com/followscope/followscope/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// BotMetric captures details about a bot job lifecycle event for metric
// emission.
type BotMetric struct {
	Kind     string
	Result   string
	Duration time.Duration
	Err      error
}

// EmitBotLifecycle emits standardised bot lifecycle metrics.
func EmitBotLifecycle(sink statsd.Sink, in BotMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"kind":   in.Kind,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("bot.run", 1, tags)

	if in.Duration > 0 {
		sink.Timing("bot.run_duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
