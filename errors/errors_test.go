package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelWrapping(t *testing.T) {
	t.Run("wrapped sentinel is still detectable", func(t *testing.T) {
		err := Wrapf(ErrAlreadyRunning, "active=1 waiting=0")
		assert.True(t, IsAlreadyRunning(err))
		assert.False(t, IsJobNotFound(err))
	})

	t.Run("details survive wrapping", func(t *testing.T) {
		err := WithDetail(Wrap(ErrJobNotFound, "lookup failed"), "job_id: 123")
		details := GetAllDetails(err)
		require.Len(t, details, 1)
		assert.Equal(t, "job_id: 123", details[0])
	})
}

func TestNewJobNotFound(t *testing.T) {
	err := NewJobNotFound("1756400000-abcd1234")
	require.Error(t, err)
	assert.True(t, IsJobNotFound(err))
	assert.Contains(t, err.Error(), "1756400000-abcd1234")
}

func TestStackTraces(t *testing.T) {
	err := New("boom")
	assert.NotNil(t, GetStack(err), "errors should carry stack traces")
}
