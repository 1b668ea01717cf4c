package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("direct coded error", func(t *testing.T) {
		err := New(CodeNotFound, "cv not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeConflict))
	})

	t.Run("wrapped coded error", func(t *testing.T) {
		inner := New(CodeConflict, "duplicate qualification")
		outer := fmt.Errorf("creating qualification: %w", inner)
		assert.True(t, HasCode(outer, CodeConflict))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeInternal, "failed to load cv")

	require.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeInternal))
	assert.Contains(t, err.Error(), "failed to load cv")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidTransition, CodeOf(New(CodeInvalidTransition, "already locked")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("unclassified")))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "already retired", MessageOf(New(CodeInvalidTransition, "already retired")))
	assert.Equal(t, "", MessageOf(errors.New("plain")))
}
