// Package sync holds the planning value objects for index synchronization.
package sync

import "time"

// Decision is the outcome of sync planning.
type Decision string

// Plan decisions, in order of cost.
const (
	DecisionSkip        Decision = "skip"
	DecisionIncremental Decision = "incremental"
	DecisionRebuild     Decision = "rebuild"
)

// Options are the caller-supplied flags for one sync request.
type Options struct {
	Force       bool
	DryRun      bool
	MaxAgeHours float64  // 0 = no staleness bound
	PageScope   []string // empty = all pages in the notebook
}

// Plan is the ephemeral planning decision. Never persisted.
type Plan struct {
	decision Decision
	units    []string
	opts     Options
}

// NewPlan creates a plan for the affected unit ids.
func NewPlan(decision Decision, units []string, opts Options) Plan {
	return Plan{decision: decision, units: units, opts: opts}
}

// Decision returns the planned action.
func (p *Plan) Decision() Decision { return p.decision }

// Units returns the affected source unit ids (empty for skip).
func (p *Plan) Units() []string { return p.units }

// Options returns the flags that produced this plan.
func (p *Plan) Options() Options { return p.opts }

// Report is the outcome of one sync invocation.
type Report struct {
	RunID     string
	Decision  Decision
	Units     []string
	Executed  bool
	Processed int
	Skipped   int
	Failed    int
	Duration  time.Duration
}
