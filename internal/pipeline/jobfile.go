package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/scenecut/internal/types"
)

// Job is the on-disk description of one assembly run.
//
//	name: city-tour
//	script_context: A short tour through a rainy city.
//	quality: 720p
//	orientation: portrait
//	scenes:
//	  - id: 1
//	    audio: audio/scene_001.wav
//	    keywords: [rainy street, umbrella]
//	    clip_seconds: 4
type Job struct {
	Name          string                       `yaml:"name"`
	ScriptContext string                       `yaml:"script_context"`
	Quality       types.Quality                `yaml:"quality"`
	Orientation   types.Orientation            `yaml:"orientation"`
	Scenes        []types.SceneAssemblyRequest `yaml:"scenes"`
}

// LoadJob reads a job file. Relative audio paths are resolved against the
// file's directory.
func LoadJob(path string) (Job, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	var job Job
	if err := dec.Decode(&job); err != nil {
		return Job{}, fmt.Errorf("parse job %s: %w", path, err)
	}
	if len(job.Scenes) == 0 {
		return Job{}, errors.New("job has no scenes")
	}

	base := filepath.Dir(path)
	for i := range job.Scenes {
		s := &job.Scenes[i]
		s.NarrationAudioPath = strings.TrimSpace(s.NarrationAudioPath)
		if s.NarrationAudioPath != "" && !filepath.IsAbs(s.NarrationAudioPath) {
			s.NarrationAudioPath = filepath.Join(base, s.NarrationAudioPath)
		}
	}
	if job.Name == "" {
		job.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return job, nil
}
