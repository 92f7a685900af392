package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/mlengine"
)

// SubmitOptions describe a managed training job submission.
type SubmitOptions struct {
	Spec *mlengine.TrainingJobSpec
	// Wait blocks until the job reaches a terminal state
	Wait bool
}

// Submit sends a training job to the managed training service. A
// missing job id gets a generated one so resubmissions never collide.
func Submit(ctx context.Context, cfg *config.BaseConfig, opts *SubmitOptions) (*mlengine.JobStatus, error) {
	client, err := mlengine.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if opts.Spec.JobID == "" {
		opts.Spec.JobID = fmt.Sprintf("training_%s_%s",
			time.Now().UTC().Format("20060102_150405"),
			uuid.NewString()[:8])
	}

	status, err := client.SubmitTraining(ctx, opts.Spec)
	if err != nil {
		return nil, err
	}

	if !opts.Wait {
		return status, nil
	}
	return client.WaitForJob(ctx, opts.Spec.JobID)
}
