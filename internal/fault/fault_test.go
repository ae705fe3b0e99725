package fault_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nlebel/vocalis/internal/fault"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	err := fault.New(fault.KindValidation, "text cannot be empty")
	assert.Equal(t, fault.KindValidation, fault.KindOf(err))

	wrapped := fmt.Errorf("handling request: %w", err)
	assert.Equal(t, fault.KindValidation, fault.KindOf(wrapped))

	assert.Equal(t, fault.KindUnknown, fault.KindOf(errors.New("plain")))
	assert.Equal(t, fault.KindUnknown, fault.KindOf(nil))
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := fault.Wrap(fault.KindEngine, cause, "synthesis failed")

	require.ErrorIs(t, err, cause)
	assert.Equal(t, fault.KindEngine, fault.KindOf(err))
	assert.Equal(t, "synthesis failed: connection refused", err.Error())
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "validation", fault.KindValidation.String())
	assert.Equal(t, "not_found", fault.KindNotFound.String())
	assert.Equal(t, "engine", fault.KindEngine.String())
	assert.Equal(t, "storage", fault.KindStorage.String())
	assert.Equal(t, "unknown", fault.KindUnknown.String())
}
