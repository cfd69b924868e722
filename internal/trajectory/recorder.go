// Package trajectory implements component L: an append-only log of every
// step taken while building one document's reasoning tree.
//
// Grounded on internal/brain/findings_persister.go's accumulate-then-flush
// shape and common/id/snowflake.go for step/trajectory identifiers.
package trajectory

import (
	"encoding/json"
	"sync"
	"time"

	"deepquery.app/engine/common/id"
	"deepquery.app/engine/internal/model"
)

// Recorder accumulates TrajectoryStep entries for one document. The
// orchestrator calls Start once, Record for every step, and Finalize once.
// A Recorder is safe for concurrent Record calls but the orchestrator's own
// single-threaded-per-document contract means this is belt-and-suspenders,
// not a requirement.
type Recorder struct {
	mu     sync.Mutex
	record model.TrajectoryRecord
}

func New() *Recorder {
	return &Recorder{}
}

// Start opens a new trajectory for documentID and returns its id.
func (r *Recorder) Start(documentID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	trajectoryID := id.New()
	r.record = model.TrajectoryRecord{
		TrajectoryID: trajectoryID,
		DocumentID:   documentID,
		Status:       model.TrajectoryOpen,
		OpenedAt:     time.Now(),
	}
	return trajectoryID
}

// StepInput is the raw input/output of one step before digesting, kept
// separate from model.TrajectoryStep so callers don't have to precompute
// digests themselves.
type StepInput struct {
	StepName  string
	StepType  model.StepType
	Input     any
	Output    any
	Success   bool
	StartedAt time.Time
	EndedAt   time.Time
	Scores    map[string]float64
	Metadata  map[string]any
	Err       error
}

// Record appends a step. Serialization failure of a single step never
// drops it: it is replaced with a {step_type=error, error=...} entry per
// spec.md §4.L.
func (r *Recorder) Record(in StepInput) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stepID := id.New()

	inputDigest, inErr := digest(in.Input)
	outputDigest, outErr := digest(in.Output)

	step := model.TrajectoryStep{
		StepID:       stepID,
		StepName:     in.StepName,
		StepType:     in.StepType,
		InputDigest:  inputDigest,
		OutputDigest: outputDigest,
		Success:      in.Success,
		StartedAt:    in.StartedAt,
		EndedAt:      in.EndedAt,
		Scores:       in.Scores,
		Metadata:     in.Metadata,
	}
	if in.Err != nil {
		step.Error = in.Err.Error()
	}

	if inErr != nil || outErr != nil {
		step = model.TrajectoryStep{
			StepID:    stepID,
			StepName:  in.StepName,
			StepType:  model.StepError,
			Success:   false,
			StartedAt: in.StartedAt,
			EndedAt:   in.EndedAt,
			Error:     "step serialization failed",
		}
	}

	r.record.Steps = append(r.record.Steps, step)
}

// Finalize closes the trajectory with the given status and attaches
// treeID, if one was built.
func (r *Recorder) Finalize(status model.TrajectoryStatus, treeID *int64) model.TrajectoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.record.Status = status
	r.record.ClosedAt = &now
	r.record.TreeID = treeID

	return r.record
}

func digest(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	const cap = 2000
	if len(b) > cap {
		b = b[:cap]
	}
	return string(b), nil
}
