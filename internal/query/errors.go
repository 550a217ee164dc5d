package query

import "fmt"

// Phase names a pipeline stage.
type Phase string

const (
	PhaseParse     Phase = "parse"
	PhaseTransform Phase = "transform"
	PhaseRender    Phase = "render"
	PhaseExecute   Phase = "execute"
)

// PipelineError wraps the error of the phase that stopped the pipeline. Err is
// a *syntax.ParseError, *transform.Error or *render.Error for the first three
// phases.
type PipelineError struct {
	Phase Phase
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("query: %s: %v", e.Phase, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
