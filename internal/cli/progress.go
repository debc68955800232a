package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/forPelevin/scenecut/internal/types"
)

// progressSink renders the job as one bar: the mean of every scene's own
// percentage over all scenes of the job. Scenes not yet started count as 0.
type progressSink struct {
	out    io.Writer
	nScene int

	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	scenes map[int]int
}

func newProgressSink(out io.Writer, scenes int) *progressSink {
	return &progressSink{out: out, nScene: scenes, scenes: map[int]int{}}
}

func (p *progressSink) Progress(ev types.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	if ev.Percentage > p.scenes[ev.SceneID] {
		p.scenes[ev.SceneID] = ev.Percentage
	}
	p.bar.Describe(fmt.Sprintf("scene %d: %s", ev.SceneID, ev.Step))
	_ = p.bar.Set(p.total())
}

func (p *progressSink) SceneResult(res types.SceneResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	p.scenes[res.SceneID] = 100
	_ = p.bar.Set(p.total())
}

func (p *progressSink) JobResult(types.JobResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		return
	}
	_ = p.bar.Finish()
	fmt.Fprintln(p.out)
}

func (p *progressSink) ensureBar() {
	if p.bar != nil {
		return
	}
	p.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription("assembling"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// total is the mean scene percentage over the job's scenes.
func (p *progressSink) total() int {
	n := max(p.nScene, len(p.scenes))
	if n == 0 {
		return 0
	}
	sum := 0
	for _, v := range p.scenes {
		sum += v
	}
	return sum / n
}
