package types

import "fmt"

type Source string

const (
	SourcePexels  Source = "pexels"
	SourcePixabay Source = "pixabay"
)

type Orientation string

const (
	Landscape Orientation = "landscape"
	Portrait  Orientation = "portrait"
)

func (o Orientation) Valid() bool {
	return o == Landscape || o == Portrait
}

// FootageResult is a provider-agnostic stock clip descriptor. Values are never
// mutated after the provider client builds them.
type FootageResult struct {
	ID              string   `json:"id"`
	Source          Source   `json:"source"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	PreviewURL      string   `json:"preview_url,omitempty"`
	DownloadURL     string   `json:"download_url,omitempty"`
	Width           int      `json:"width"`
	Height          int      `json:"height"`
	DurationSeconds float64  `json:"duration_seconds"`
	Title           string   `json:"title,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

func (r FootageResult) Key() Key { return Key{Source: r.Source, ID: r.ID} }

// Key identifies a clip across providers. It doubles as the cache key.
type Key struct {
	Source Source `json:"source"`
	ID     string `json:"id"`
}

func (k Key) String() string { return fmt.Sprintf("%s_%s", k.Source, k.ID) }

type Query struct {
	Text        string
	Orientation Orientation
	PageSize    int
	Page        int
}

type SceneAssemblyRequest struct {
	SceneID            int         `json:"scene_id" yaml:"id"`
	NarrationAudioPath string      `json:"narration_audio_path" yaml:"audio"`
	SearchKeywords     []string    `json:"search_keywords" yaml:"keywords"`
	TargetClipDuration float64     `json:"target_clip_duration,omitempty" yaml:"clip_seconds"`
	Orientation        Orientation `json:"orientation" yaml:"orientation"`
	// Description is optional scene context forwarded to the ranking model.
	Description string `json:"description,omitempty" yaml:"description"`
}

type ScoredCandidate struct {
	Result FootageResult
	Score  float64
}

type Quality string

const (
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
)

// Preset is the encoding target of a quality level for landscape output.
type Preset struct {
	Width   int
	Height  int
	Bitrate string
}

var presets = map[Quality]Preset{
	Quality480p:  {Width: 854, Height: 480, Bitrate: "1500k"},
	Quality720p:  {Width: 1280, Height: 720, Bitrate: "3000k"},
	Quality1080p: {Width: 1920, Height: 1080, Bitrate: "6000k"},
}

func (q Quality) Valid() bool {
	_, ok := presets[q]
	return ok
}

// Preset returns the frame geometry for q, swapped for portrait output.
// Unknown qualities fall back to 720p.
func (q Quality) Preset(o Orientation) Preset {
	p, ok := presets[q]
	if !ok {
		p = presets[Quality720p]
	}
	if o == Portrait {
		p.Width, p.Height = p.Height, p.Width
	}
	return p
}
