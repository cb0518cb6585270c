package offline

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/agentcage/pkg/idgen"
)

func newTestStore(t *testing.T, mutator Mutator) *Store {
	t.Helper()
	dir := t.TempDir()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	s, err := New(Config{
		DataDir:          dir,
		ProbeURL:         srv.URL,
		MaxRetryAttempts: 2,
		Mutator:          mutator,
		Clock:            idgen.SystemClock{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t, nil)
	require.NoError(t, s.Put("ns", "key", map[string]any{"v": 1.0}))

	rec, err := s.Get("ns", "key")
	require.NoError(t, err)
	assert.Equal(t, "ns", rec.Namespace)
}

func TestEnqueueAndFlushSucceeds(t *testing.T) {
	s := newTestStore(t, func(path string, args map[string]any) error { return nil })

	_, err := s.Enqueue("m/create", map[string]any{"k": 1.0})
	require.NoError(t, err)
	_, err = s.Enqueue("m/create", map[string]any{"k": 2.0})
	require.NoError(t, err)

	result, err := s.Flush()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)

	pending, err := s.PendingCount()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestFlushFailsAfterMaxRetries(t *testing.T) {
	s := newTestStore(t, func(path string, args map[string]any) error {
		return errors.New("boom")
	})

	_, err := s.Enqueue("m/create", map[string]any{"k": 1.0})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := s.Flush()
		require.NoError(t, err)
	}

	failed, err := s.FailedCount()
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func TestConnectivityTransitionTriggersFlush(t *testing.T) {
	s := newTestStore(t, func(path string, args map[string]any) error { return nil })

	_, err := s.Enqueue("m/create", map[string]any{"k": 1.0})
	require.NoError(t, err)

	state := s.CheckConnectivity()
	assert.Equal(t, Online, state)
}
