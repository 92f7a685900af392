// Package mlengine submits and tracks training jobs on the Cloud ML
// training service. Training code is packaged separately and uploaded
// to Cloud Storage; this package only drives the job lifecycle.
package mlengine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	ml "google.golang.org/api/ml/v1"
	"google.golang.org/api/option"

	"github.com/zenithml/zenith/pkg/config"
	"github.com/zenithml/zenith/pkg/errors"
	"github.com/zenithml/zenith/pkg/logger"
	"github.com/zenithml/zenith/pkg/metrics"
)

// Terminal job states as reported by the service.
const (
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCancelled = "CANCELLED"
)

// TrainingJobSpec describes a training job submission.
type TrainingJobSpec struct {
	// JobID uniquely names the job within the project
	JobID string
	// PackageURIs are Cloud Storage paths to the packaged trainer
	PackageURIs []string
	// PythonModule is the trainer entry point, e.g. trainer.task
	PythonModule string
	// Args are passed through to the trainer
	Args []string
	// Region to run in, e.g. us-central1
	Region string
	// JobDir is the Cloud Storage path for checkpoints and exports
	JobDir string
	// ScaleTier selects the machine configuration; BASIC when empty
	ScaleTier string
	// RuntimeVersion pins the training runtime
	RuntimeVersion string
	// PythonVersion pins the interpreter
	PythonVersion string
}

// Validate checks that required fields are set.
func (s *TrainingJobSpec) Validate() error {
	if s.JobID == "" {
		return errors.New(errors.ErrorTypeValidation, "job id is required")
	}
	if len(s.PackageURIs) == 0 {
		return errors.New(errors.ErrorTypeValidation, "at least one package uri is required")
	}
	if s.PythonModule == "" {
		return errors.New(errors.ErrorTypeValidation, "python module is required")
	}
	if s.Region == "" {
		return errors.New(errors.ErrorTypeValidation, "region is required")
	}
	return nil
}

// JobStatus is a snapshot of a job's progress.
type JobStatus struct {
	JobID        string    `json:"job_id"`
	State        string    `json:"state"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreateTime   string    `json:"create_time,omitempty"`
	StartTime    string    `json:"start_time,omitempty"`
	EndTime      string    `json:"end_time,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Terminal reports whether the job has stopped running.
func (s *JobStatus) Terminal() bool {
	switch s.State {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Client drives training jobs for one project.
type Client struct {
	service      *ml.Service
	projectID    string
	pollInterval time.Duration
	jobTimeout   time.Duration
	logger       *zap.Logger
}

// NewClient creates an ML training client for the configured project.
func NewClient(ctx context.Context, cfg *config.BaseConfig) (*Client, error) {
	if cfg.GCP.ProjectID == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "gcp project_id is required")
	}

	var opts []option.ClientOption
	if cfg.GCP.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCP.CredentialsFile))
	}

	service, err := ml.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create ml service")
	}

	pollInterval := cfg.Timeouts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}

	return &Client{
		service:      service,
		projectID:    cfg.GCP.ProjectID,
		pollInterval: pollInterval,
		jobTimeout:   cfg.Timeouts.Job,
		logger:       logger.Get().With(zap.String("component", "mlengine")),
	}, nil
}

// SubmitTraining submits a training job and returns its initial status.
func (c *Client) SubmitTraining(ctx context.Context, spec *TrainingJobSpec) (*JobStatus, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	scaleTier := spec.ScaleTier
	if scaleTier == "" {
		scaleTier = "BASIC"
	}

	job := &ml.GoogleCloudMlV1__Job{
		JobId: spec.JobID,
		TrainingInput: &ml.GoogleCloudMlV1__TrainingInput{
			ScaleTier:      scaleTier,
			PackageUris:    spec.PackageURIs,
			PythonModule:   spec.PythonModule,
			Args:           spec.Args,
			Region:         spec.Region,
			JobDir:         spec.JobDir,
			RuntimeVersion: spec.RuntimeVersion,
			PythonVersion:  spec.PythonVersion,
		},
	}

	parent := "projects/" + c.projectID
	created, err := c.service.Projects.Jobs.Create(parent, job).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTraining, "failed to submit training job")
	}

	c.logger.Info("training job submitted",
		zap.String("job_id", created.JobId),
		zap.String("state", created.State),
		zap.String("region", spec.Region),
		zap.String("scale_tier", scaleTier))

	return statusFromJob(created), nil
}

// GetJob fetches the current status of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobStatus, error) {
	name := fmt.Sprintf("projects/%s/jobs/%s", c.projectID, jobID)

	job, err := c.service.Projects.Jobs.Get(name).Context(ctx).Do()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "failed to get job "+jobID)
	}
	return statusFromJob(job), nil
}

// CancelJob requests cancellation of a running job.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	name := fmt.Sprintf("projects/%s/jobs/%s", c.projectID, jobID)

	_, err := c.service.Projects.Jobs.Cancel(name, &ml.GoogleCloudMlV1__CancelJobRequest{}).
		Context(ctx).Do()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTraining, "failed to cancel job "+jobID)
	}

	c.logger.Info("job cancellation requested", zap.String("job_id", jobID))
	return nil
}

// WaitForJob polls until the job reaches a terminal state. It returns
// the final status, with a non-nil error when the job failed or was
// cancelled.
func (c *Client) WaitForJob(ctx context.Context, jobID string) (*JobStatus, error) {
	if c.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if status.Terminal() {
			elapsed := time.Since(start)
			metrics.TrainingDuration.WithLabelValues(jobID).Observe(elapsed.Seconds())

			c.logger.Info("job finished",
				zap.String("job_id", jobID),
				zap.String("state", status.State),
				zap.Duration("elapsed", elapsed))

			switch status.State {
			case StateFailed:
				return status, errors.Newf(errors.ErrorTypeTraining,
					"job %s failed: %s", jobID, status.ErrorMessage)
			case StateCancelled:
				return status, errors.Newf(errors.ErrorTypeTraining,
					"job %s was cancelled", jobID)
			}
			return status, nil
		}

		c.logger.Debug("job running",
			zap.String("job_id", jobID),
			zap.String("state", status.State))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return status, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout,
				"gave up waiting for job "+jobID)
		}
	}
}

func statusFromJob(job *ml.GoogleCloudMlV1__Job) *JobStatus {
	return &JobStatus{
		JobID:        job.JobId,
		State:        job.State,
		ErrorMessage: job.ErrorMessage,
		CreateTime:   job.CreateTime,
		StartTime:    job.StartTime,
		EndTime:      job.EndTime,
		ObservedAt:   time.Now().UTC(),
	}
}
