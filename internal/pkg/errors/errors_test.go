package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIs_MatchesByKind(t *testing.T) {
	err := fmt.Errorf("load document: %w", NotFound("document not found"))
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, IsNotFound(err))
	require.False(t, errors.Is(err, ErrConflict))
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, "document not found", MessageOf(err))
}

func TestKindOf_Untyped(t *testing.T) {
	err := errors.New("boom")
	require.Equal(t, KindInternal, KindOf(err))
	require.Equal(t, "internal error", MessageOf(err))
	require.Equal(t, "internal error", MessageOf(Internal("db down", err)))
}

func TestTransientExtraction(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := TransientExtraction("ocr page 3", cause)
	require.True(t, IsTransient(err))
	require.True(t, errors.Is(err, ErrExtraction))
	require.True(t, errors.Is(err, cause))
	require.False(t, IsTransient(Extraction("no text", nil)))
}
