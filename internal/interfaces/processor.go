package interfaces

import (
	"context"

	"github.com/ternarybob/curo/internal/models"
)

// ProgressFunc reports processing progress as a percentage in [0,100].
// Operations call it zero or more times with non-decreasing values.
type ProgressFunc func(percent int)

// Processor is the opaque content-processing operation consumed by the
// scheduler. It is not part of this engine; implementations turn one input
// into one output and return a reference to that output.
//
// A cancelled context is advisory: the engine marks the job cancelled and
// ignores any progress or result the operation still delivers, but does not
// guarantee the operation stops consuming resources.
type Processor interface {
	Process(ctx context.Context, job *models.Job, report ProgressFunc) (string, error)
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc func(ctx context.Context, job *models.Job, report ProgressFunc) (string, error)

func (f ProcessorFunc) Process(ctx context.Context, job *models.Job, report ProgressFunc) (string, error) {
	return f(ctx, job, report)
}
