package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	err := NotFound("data.GroupGet", "group %q does not exist", "g1")
	assert.Equal(t, KindNotFound, err.Kind)
	assert.Contains(t, err.Error(), "data.GroupGet")
	assert.Contains(t, err.Error(), `group "g1" does not exist`)
}

func TestWrapAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Storage("storage.save", "failed to write document", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "disk full")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("op", "bad")))
	assert.Equal(t, Kind(""), KindOf(fmt.Errorf("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))

	// IsKind sees through stdlib wrapping.
	wrapped := fmt.Errorf("outer: %w", Conflict("op", "taken"))
	assert.True(t, IsKind(wrapped, KindConflict))
	assert.False(t, IsKind(wrapped, KindNotFound))
}
