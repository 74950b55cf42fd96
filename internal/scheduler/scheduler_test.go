package scheduler

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	ran := false
	job := NewJob("demo", func() error {
		ran = true
		return nil
	})

	assert.Equal(t, "demo", job.Name())
	require.NoError(t, job.Run())
	assert.True(t, ran)
}

func TestAddJobRejectsBadSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("not a cron expression", NewJob("demo", func() error { return nil }))
	assert.Error(t, err)
}

func TestAddJobAcceptsSixFieldSchedule(t *testing.T) {
	s := New(zerolog.Nop())
	err := s.AddJob("0 0 7 * * *", NewJob("demo", func() error { return nil }))
	assert.NoError(t, err)
}

func TestRunNow(t *testing.T) {
	s := New(zerolog.Nop())
	wantErr := errors.New("job failed")
	err := s.RunNow(NewJob("demo", func() error { return wantErr }))
	assert.ErrorIs(t, err, wantErr)
}
