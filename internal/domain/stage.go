package domain

import "time"

// Stage is a state of one ingestion run.
type Stage string

const (
	StageReceived   Stage = "received"
	StageExtracted  Stage = "extracted"
	StageNormalized Stage = "normalized"
	StageSegmented  Stage = "segmented"
	StageValidated  Stage = "validated"
	StageEmbedded   Stage = "embedded"
	StagePersisted  Stage = "persisted"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Step names the operation that moves a run into s. It is what a failure
// is reported against.
func (s Stage) Step() string {
	switch s {
	case StageExtracted:
		return "extraction"
	case StageNormalized:
		return "normalization"
	case StageSegmented:
		return "segmentation"
	case StageValidated:
		return "validation"
	case StageEmbedded:
		return "embedding"
	case StagePersisted:
		return "persistence"
	default:
		return string(s)
	}
}

// StageEvent describes one transition of a run. Chunks is set from
// StageSegmented onwards. Step and Err are set only on a transition to
// StageFailed.
type StageEvent struct {
	DocumentID string
	From       Stage
	To         Stage
	Step       string
	Chunks     int
	Gaps       int
	Err        error
	Elapsed    time.Duration
}
