package errclass

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
	"github.com/cuemby/agentcage/pkg/types"
)

func TestClassifyKnownPatterns(t *testing.T) {
	c := NewClassifier(nil)

	cases := []struct {
		err   error
		class types.ErrorClass
	}{
		{errors.New("connection timed out"), types.ClassTimeout},
		{errors.New("rate limit exceeded"), types.ClassRateLimit},
		{errors.New("dial tcp: connection refused"), types.ClassNetwork},
		{errors.New("401 unauthorized"), types.ClassAuth},
		{errors.New("no such file or directory"), types.ClassFilesystem},
	}
	for _, tc := range cases {
		got := c.Classify(tc.err, nil)
		assert.Equal(t, tc.class, got.Class, tc.err.Error())
	}
}

func TestClassifyUnknownDefaultsNonRetryable(t *testing.T) {
	c := NewClassifier(nil)
	got := c.Classify(errors.New("something bespoke"), nil)
	assert.Equal(t, types.ClassUnknown, got.Class)
	assert.False(t, got.Retryable)
}

func TestHistoryIsBounded(t *testing.T) {
	c := NewClassifier(nil)
	for i := 0; i < MaxHistory+10; i++ {
		c.Classify(errors.New("timeout waiting"), nil)
	}
	require.Len(t, c.History(), MaxHistory)
}

func TestCorrelateErrorsWithinWindow(t *testing.T) {
	clock := idgen.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewClassifier(clock)

	c.Classify(errors.New("connection timed out"), nil)
	clock.Advance(time.Second)
	c.Classify(errors.New("rate limit exceeded"), nil)

	correlations := c.CorrelateErrors(5000)
	require.NotEmpty(t, correlations)
	assert.Greater(t, correlations[0].Confidence, 0.0)
}

func TestDetectPatternsGroupsByClass(t *testing.T) {
	c := NewClassifier(nil)
	c.Classify(errors.New("connection timed out"), nil)
	c.Classify(errors.New("request timed out"), nil)

	patterns := c.DetectPatterns()
	require.NotEmpty(t, patterns)
	var timeoutPattern *types.ErrorPattern
	for i := range patterns {
		if patterns[i].Class == types.ClassTimeout {
			timeoutPattern = &patterns[i]
		}
	}
	require.NotNil(t, timeoutPattern)
	assert.Equal(t, 2, timeoutPattern.Count)
}
