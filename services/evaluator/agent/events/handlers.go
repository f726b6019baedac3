// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// LoggingHandler creates a handler that logs events via slog.
//
// Inputs:
//
//	logger - The slog logger to use.
//	level - The log level for events.
//
// Outputs:
//
//	Handler - A handler function that logs events.
func LoggingHandler(logger *slog.Logger, level slog.Level) Handler {
	return func(event *Event) {
		attrs := []any{
			slog.String("event_id", event.ID),
			slog.String("event_type", string(event.Type)),
			slog.String("session_id", event.SessionID),
			slog.Int("iteration", event.Iteration),
		}

		switch data := event.Data.(type) {
		case *ToolStartData:
			attrs = append(attrs,
				slog.String("tool_name", data.ToolName),
				slog.String("invocation_id", data.InvocationID),
				slog.String("preview", data.Preview),
			)

		case *ToolResultData:
			attrs = append(attrs,
				slog.String("tool_name", data.ToolName),
				slog.String("invocation_id", data.InvocationID),
				slog.String("outcome", data.Outcome),
				slog.Duration("duration", data.Duration),
			)
			if data.RejectReason != "" {
				attrs = append(attrs, slog.String("reject_reason", data.RejectReason))
			}
			if data.Error != "" {
				attrs = append(attrs, slog.String("error", data.Error))
			}

		case *ThinkingData:
			attrs = append(attrs, slog.String("message", data.Message))

		case *StateTransitionData:
			attrs = append(attrs,
				slog.String("from_state", data.FromState),
				slog.String("to_state", data.ToState),
			)
			if data.Reason != "" {
				attrs = append(attrs, slog.String("reason", data.Reason))
			}

		case *SessionCompleteData:
			attrs = append(attrs,
				slog.String("final_state", data.FinalState),
				slog.Bool("degraded", data.Degraded),
				slog.Int("total_calls", data.TotalCalls),
				slog.Duration("duration", data.Duration),
			)
		}

		logger.Log(nil, level, "session event", attrs...)
	}
}

// PrometheusCollector exposes session activity as Prometheus metrics.
//
// Thread Safety: the underlying prometheus types are safe for
// concurrent use, so the collector's Handler is too.
type PrometheusCollector struct {
	toolCalls     *prometheus.CounterVec
	toolRejects   *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	sessionsTotal *prometheus.CounterVec
	sessionTime   prometheus.Histogram
}

// NewPrometheusCollector creates a collector and registers its metrics.
//
// Inputs:
//
//	reg - Registry to register with. Pass prometheus.DefaultRegisterer
//	      for the process-wide registry.
//
// Outputs:
//
//	*PrometheusCollector - The collector.
//	error - Non-nil if registration fails (duplicate metrics).
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	c := &PrometheusCollector{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commitlens",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commitlens",
			Name:      "tool_rejections_total",
			Help:      "Gate rejections by tool name and limit kind.",
		}, []string{"tool", "reason"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "commitlens",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "commitlens",
			Name:      "sessions_total",
			Help:      "Completed evaluation sessions by terminal state.",
		}, []string{"state"}),
		sessionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "commitlens",
			Name:      "session_duration_seconds",
			Help:      "Full session wall time.",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 120},
		}),
	}

	for _, collector := range []prometheus.Collector{
		c.toolCalls, c.toolRejects, c.toolDuration, c.sessionsTotal, c.sessionTime,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Handler returns an event handler feeding the collector.
func (c *PrometheusCollector) Handler() Handler {
	return func(event *Event) {
		switch data := event.Data.(type) {
		case *ToolResultData:
			c.toolCalls.WithLabelValues(data.ToolName, data.Outcome).Inc()
			if data.RejectReason != "" {
				c.toolRejects.WithLabelValues(data.ToolName, data.RejectReason).Inc()
			} else {
				c.toolDuration.WithLabelValues(data.ToolName).Observe(data.Duration.Seconds())
			}

		case *SessionCompleteData:
			c.sessionsTotal.WithLabelValues(data.FinalState).Inc()
			c.sessionTime.Observe(data.Duration.Seconds())
		}
	}
}
