// Package metrics names the auth and navigation metrics emitted through a statsd.Sink.
package metrics

import (
	"time"

	obserrors "github.com/target/bookshelf/internal/observability/errors"
	"github.com/target/bookshelf/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultTimeout = "timeout"
)

// SessionResolved counts how an initial session lookup settled (present or absent).
func SessionResolved(sink statsd.Sink, kind string, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"state": kind, "result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("session.resolve", 1, tags)
}

// AuthTransition counts an identity-state change delivered to subscribers.
func AuthTransition(sink statsd.Sink, from, to string) {
	if sink == nil {
		return
	}
	sink.Count("session.transition", 1, map[string]string{"from": from, "to": to})
}

// SignOutMetric describes one sign-out attempt.
type SignOutMetric struct {
	Result   string
	Duration time.Duration
	Err      error
}

// SignOut emits the sign-out counter and, for attempts that reached the collaborator, its latency.
func SignOut(sink statsd.Sink, in SignOutMetric) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": in.Result}
	if in.Err != nil && in.Result != ResultSuccess {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count("session.signout", 1, tags)
	if in.Duration > 0 {
		sink.Timing("session.signout.duration", in.Duration, CloneTags(tags))
	}
}

// NavDenied counts a route refused by the navigation guard.
func NavDenied(sink statsd.Sink, reason string) {
	if sink == nil {
		return
	}
	sink.Count("nav.denied", 1, map[string]string{"reason": reason})
}

// HubSessions reports how many browser sessions the hub is tracking.
func HubSessions(sink statsd.Sink, n int) {
	if sink == nil {
		return
	}
	sink.Gauge("hub.sessions", float64(n), nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// SessionsPurged records one purge pass over expired sessions.
func SessionsPurged(sink statsd.Sink, count int64, duration time.Duration, err error) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if err != nil {
		tags["result"] = ResultError
		tags["error_class"] = obserrors.Classify(err)
	}
	sink.Count("session.purged", count, tags)
	sink.Timing("session.purge.duration", duration, CloneTags(tags))
}
