package failures

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_KindAndReason(t *testing.T) {
	err := New(KindRevert, "withdraw", "transaction reverted").WithReason("Only the owner can withdraw")
	wrapped := fmt.Errorf("failed to call withdraw: %w", err)

	assert.True(t, Is(wrapped, KindRevert))
	assert.False(t, Is(wrapped, KindCallReverted))
	assert.True(t, IsRejected(wrapped))

	reason, ok := ReasonOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, "Only the owner can withdraw", reason)
	assert.Contains(t, wrapped.Error(), `reason: "Only the owner can withdraw"`)
}

func TestError_EmptyReasonIsKept(t *testing.T) {
	err := New(KindCallReverted, "get", "").WithReason("")

	reason, ok := ReasonOf(err)
	assert.True(t, ok)
	assert.Empty(t, reason)

	_, ok = ReasonOf(New(KindCallReverted, "get", ""))
	assert.False(t, ok)
}

func TestError_ErrdefsClasses(t *testing.T) {
	tests := []struct {
		kind  Kind
		class error
	}{
		{KindArtifactNotFound, errdefs.ErrNotFound},
		{KindEncoding, errdefs.ErrInvalidArgument},
		{KindDecoding, errdefs.ErrInvalidArgument},
		{KindCompilation, errdefs.ErrFailedPrecondition},
		{KindSimulation, errdefs.ErrAborted},
		{KindSubmission, errdefs.ErrUnavailable},
		{KindTimeout, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := New(tt.kind, "op", "detail")
			assert.ErrorIs(t, err, tt.class)
		})
	}

	assert.True(t, errdefs.IsNotFound(New(KindArtifactNotFound, "compile", "Missing")))
	assert.True(t, errdefs.IsDeadlineExceeded(New(KindTimeout, "wait", "receipt")))
}

func TestError_UnwrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindSubmission, "send", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindSubmission, KindOf(err))
	assert.Equal(t, KindUnknown, KindOf(cause))
}

func TestFromTransport(t *testing.T) {
	assert.Equal(t, KindTimeout, FromTransport("wait", fmt.Errorf("rpc: %w", context.DeadlineExceeded)).Kind)
	assert.Equal(t, KindSubmission, FromTransport("send", errors.New("dial tcp: refused")).Kind)
}

func TestError_FatalDiagnosticsInMessage(t *testing.T) {
	err := &Error{
		Kind: KindCompilation,
		Op:   "compile",
		Diagnostics: []Diagnostic{
			{Severity: "warning", Message: "unused variable"},
			{Severity: "error", Message: "expected ';'", Location: Location{File: "A.sol", Start: 10, End: 11}},
		},
	}

	msg := err.Error()
	assert.Contains(t, msg, "A.sol:10-11: error: expected ';'")
	assert.NotContains(t, msg, "unused variable")
}
