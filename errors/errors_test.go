package errors_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowruntime/flowruntime/errors"
)

func TestKindErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		kind errors.Kind
		want int
	}{
		{errors.CycleDetected, http.StatusBadRequest},
		{errors.NodeNotFound, http.StatusNotFound},
		{errors.AlreadyRunning, http.StatusConflict},
		{errors.ChannelClosed, http.StatusGone},
	}
	for _, c := range cases {
		err := errors.New(c.kind, "boom %d", 1)
		assert.Equal(t, c.want, err.HTTPStatus())
		assert.Contains(t, err.Error(), "boom 1")
	}
}

func TestAsExtractsKindError(t *testing.T) {
	err := errors.New(errors.DuplicateEdge, "already connected")
	ke, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, errors.DuplicateEdge, ke.Kind)
}

func TestWrapPreservesClassification(t *testing.T) {
	base := errors.WrapFatal(errTest("boom"), "Channel", "publish", "drop oldest")
	wrapped := errors.Wrap(base, "Scheduler", "run", "step")
	assert.True(t, errors.IsFatal(wrapped))
	assert.False(t, errors.IsTransient(wrapped))
}

type errTest string

func (e errTest) Error() string { return string(e) }
