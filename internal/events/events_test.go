package events

import (
	"sync"
	"testing"

	"github.com/forPelevin/scenecut/internal/types"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.events = append(r.events, s)
	r.mu.Unlock()
}

func (r *recorder) Progress(types.ProgressEvent)  { r.add("progress") }
func (r *recorder) SceneResult(types.SceneResult) { r.add("scene") }
func (r *recorder) JobResult(types.JobResult)     { r.add("job") }

func TestMulti_FansOutAndSkipsNil(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := Multi(a, nil, b)
	m.Progress(types.ProgressEvent{})
	m.SceneResult(types.SceneResult{})
	m.JobResult(types.JobResult{})

	for _, r := range []*recorder{a, b} {
		if len(r.events) != 3 || r.events[0] != "progress" || r.events[2] != "job" {
			t.Fatalf("unexpected events %v", r.events)
		}
	}
}

func TestLogSink_DoesNotPanic(t *testing.T) {
	s := NewLogSink(nil)
	msg := "boom"
	s.Progress(types.ProgressEvent{SceneID: 1})
	s.SceneResult(types.SceneResult{SceneID: 1, Error: &msg})
	s.SceneResult(types.SceneResult{SceneID: 2, Success: true})
	s.JobResult(types.JobResult{})
}
