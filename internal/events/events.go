// Package events fans pipeline events out to any number of sinks.
package events

import (
	"github.com/forPelevin/scenecut/internal/platform/logger"
	"github.com/forPelevin/scenecut/internal/ports"
	"github.com/forPelevin/scenecut/internal/types"
)

type multi []ports.EventSink

// Multi delivers every event to each non-nil sink in order.
func Multi(sinks ...ports.EventSink) ports.EventSink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Progress(ev types.ProgressEvent) {
	for _, s := range m {
		s.Progress(ev)
	}
}

func (m multi) SceneResult(res types.SceneResult) {
	for _, s := range m {
		s.SceneResult(res)
	}
}

func (m multi) JobResult(res types.JobResult) {
	for _, s := range m {
		s.JobResult(res)
	}
}

// LogSink writes events to a structured logger.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	if log == nil {
		log = logger.Nop()
	}
	return &LogSink{log: log.With("component", "events")}
}

func (l *LogSink) Progress(ev types.ProgressEvent) {
	l.log.Debug("scene progress", "job_id", ev.JobID, "scene_id", ev.SceneID, "step", string(ev.Step), "pct", ev.Percentage, "msg", ev.Message)
}

func (l *LogSink) SceneResult(res types.SceneResult) {
	if res.Success {
		l.log.Info("scene done", "job_id", res.JobID, "scene_id", res.SceneID, "path", deref(res.FootagePath), "ranking", res.Strategy)
		return
	}
	l.log.Warn("scene failed", "job_id", res.JobID, "scene_id", res.SceneID, "step", string(res.FailedStep), "kind", string(res.ErrorKind), "error", deref(res.Error))
}

func (l *LogSink) JobResult(res types.JobResult) {
	l.log.Info("job finished",
		"job_id", res.JobID,
		"status", string(res.Status),
		"scenes_total", res.ScenesTotal,
		"scenes_succeeded", res.ScenesSucceeded,
		"final_video", deref(res.FinalVideoPath),
	)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
