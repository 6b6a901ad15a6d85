package domain

import "time"

// AnalysisStage identifies which phase of the pipeline a job is in
type AnalysisStage string

const (
	StageQueued      AnalysisStage = "queued"
	StageOrganizing  AnalysisStage = "organizing"
	StageEvaluating  AnalysisStage = "evaluating"
	StageAggregating AnalysisStage = "aggregating"
	StageCompleted   AnalysisStage = "completed"
	StageFailed      AnalysisStage = "failed"
)

// InterimResult is one per-control result surfaced to observers while the
// job is still running.
type InterimResult struct {
	ControlID   string         `json:"control_id"`
	ControlCode string         `json:"control_code"`
	Title       string         `json:"title"`
	Status      EvidenceStatus `json:"status"`
	Confidence  int            `json:"confidence"`
}

// ProgressState is the transient per-job progress snapshot. It lives only in
// process memory for the job's lifetime and is lost on restart; the analysis
// row remains the durable record.
type ProgressState struct {
	AnalysisID     string          `json:"analysis_id"`
	Stage          AnalysisStage   `json:"stage"`
	Percent        int             `json:"percent"`
	Message        string          `json:"message"`
	ControlsTotal  int             `json:"controls_total"`
	ControlsDone   int             `json:"controls_done"`
	CompliantCount int             `json:"compliant_count"`
	PartialCount   int             `json:"partial_count"`
	MissingCount   int             `json:"missing_count"`
	InterimResults []InterimResult `json:"interim_results,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ProgressUpdate is a partial update merged into a job's ProgressState. Nil
// fields leave the current value untouched; set fields override it.
type ProgressUpdate struct {
	Stage          *AnalysisStage
	Percent        *int
	Message        *string
	ControlsTotal  *int
	ControlsDone   *int
	CompliantCount *int
	PartialCount   *int
	MissingCount   *int
}

// Apply merges the update into the state. The percentage is clamped so it
// never decreases within a job.
func (s *ProgressState) Apply(u ProgressUpdate) {
	if u.Stage != nil {
		s.Stage = *u.Stage
	}
	if u.Percent != nil && *u.Percent > s.Percent {
		s.Percent = *u.Percent
	}
	if u.Message != nil {
		s.Message = *u.Message
	}
	if u.ControlsTotal != nil {
		s.ControlsTotal = *u.ControlsTotal
	}
	if u.ControlsDone != nil {
		s.ControlsDone = *u.ControlsDone
	}
	if u.CompliantCount != nil {
		s.CompliantCount = *u.CompliantCount
	}
	if u.PartialCount != nil {
		s.PartialCount = *u.PartialCount
	}
	if u.MissingCount != nil {
		s.MissingCount = *u.MissingCount
	}
}

// StagePtr returns a pointer to the given stage, for building updates
func StagePtr(s AnalysisStage) *AnalysisStage { return &s }

// IntPtr returns a pointer to the given int, for building updates
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to the given string, for building updates
func StringPtr(v string) *string { return &v }
