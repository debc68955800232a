package types

type SceneState string

const (
	ScenePending     SceneState = "pending"
	SceneSearching   SceneState = "searching"
	SceneRanking     SceneState = "ranking"
	SceneSelecting   SceneState = "selecting"
	SceneDownloading SceneState = "downloading"
	SceneCutting     SceneState = "cutting"
	SceneMuxed       SceneState = "muxed"
	SceneDone        SceneState = "done"
	SceneFailed      SceneState = "failed"
)

type JobStatus string

const (
	JobSuccess        JobStatus = "success"
	JobPartialSuccess JobStatus = "partial_success"
	JobFailed         JobStatus = "failed"
)

// StatusFor derives the terminal job status from scene counts.
func StatusFor(succeeded, failed int) JobStatus {
	switch {
	case succeeded == 0:
		return JobFailed
	case failed == 0:
		return JobSuccess
	default:
		return JobPartialSuccess
	}
}

type ProgressEvent struct {
	JobID      string     `json:"job_id"`
	SceneID    int        `json:"scene_id"`
	Step       SceneState `json:"step"`
	Percentage int        `json:"percentage"`
	Message    string     `json:"message"`
}

type SceneResult struct {
	JobID       string     `json:"job_id"`
	SceneID     int        `json:"scene_id"`
	Success     bool       `json:"success"`
	FootagePath *string    `json:"footage_path"`
	Error       *string    `json:"error"`
	ErrorKind   ErrorKind  `json:"error_kind,omitempty"`
	FailedStep  SceneState `json:"failed_step,omitempty"`
	Footage     []Key      `json:"footage,omitempty"`
	Strategy    string     `json:"ranking_strategy,omitempty"`
}

type JobResult struct {
	JobID           string        `json:"job_id"`
	Status          JobStatus     `json:"status"`
	Success         bool          `json:"success"`
	ScenesTotal     int           `json:"scenes_total"`
	ScenesSucceeded int           `json:"scenes_succeeded"`
	FinalVideoPath  *string       `json:"final_video_path"`
	Scenes          []SceneResult `json:"scenes"`
}
