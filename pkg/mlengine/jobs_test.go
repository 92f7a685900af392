package mlengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validJobSpec() *TrainingJobSpec {
	return &TrainingJobSpec{
		JobID:        "babyweight_20250101_120000",
		PackageURIs:  []string{"gs://my-bucket/trainer-0.1.tar.gz"},
		PythonModule: "trainer.task",
		Region:       "us-central1",
	}
}

func TestTrainingJobSpecValidate(t *testing.T) {
	assert.NoError(t, validJobSpec().Validate())

	tests := []struct {
		name   string
		mutate func(*TrainingJobSpec)
	}{
		{"missing job id", func(s *TrainingJobSpec) { s.JobID = "" }},
		{"missing packages", func(s *TrainingJobSpec) { s.PackageURIs = nil }},
		{"missing module", func(s *TrainingJobSpec) { s.PythonModule = "" }},
		{"missing region", func(s *TrainingJobSpec) { s.Region = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validJobSpec()
			tt.mutate(spec)
			assert.Error(t, spec.Validate())
		})
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []string{StateSucceeded, StateFailed, StateCancelled}
	for _, state := range terminal {
		assert.True(t, (&JobStatus{State: state}).Terminal(), state)
	}

	running := []string{"QUEUED", "PREPARING", "RUNNING", ""}
	for _, state := range running {
		assert.False(t, (&JobStatus{State: state}).Terminal(), state)
	}
}
