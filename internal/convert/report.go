package convert

import (
	"sort"
	"time"

	"metapipe/internal/assets"
)

// Status is the result of one asset's conversion step.
type Status string

const (
	StatusConverted Status = "converted"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// Outcome records what happened to one asset.
type Outcome struct {
	Kind     assets.Kind
	Key      string
	Status   Status
	Err      error
	Elapsed  time.Duration
	Warnings []string
}

// Report aggregates outcomes across assets and kinds.
type Report struct {
	Outcomes []Outcome
}

// Merge appends other's outcomes.
func (r *Report) Merge(other Report) {
	r.Outcomes = append(r.Outcomes, other.Outcomes...)
}

// Count returns the number of outcomes with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Failures returns failed outcomes sorted by key.
func (r Report) Failures() []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Sorted returns outcomes ordered by kind then key.
func (r Report) Sorted() []Outcome {
	out := append([]Outcome(nil), r.Outcomes...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Observer receives per-asset progress. Implementations must be safe for
// concurrent use.
type Observer interface {
	AssetStarted(kind assets.Kind, key string)
	AssetFinished(outcome Outcome)
}

type nopObserver struct{}

func (nopObserver) AssetStarted(assets.Kind, string) {}

func (nopObserver) AssetFinished(Outcome) {}
