package errs

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapKeepsKindAndCause(t *testing.T) {
	cause := io.ErrUnexpectedEOF
	err := Wrap(ErrConversion, cause, "engine stream broke")
	require.ErrorIs(t, err, ErrConversion)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "engine stream broke")
}

func TestWrapNilCause(t *testing.T) {
	require.NoError(t, Wrap(ErrDatabase, nil, "ignored"))
	require.NoError(t, Wrapf(ErrDatabase, nil, "ignored %d", 1))
}

func TestKindsAreDistinct(t *testing.T) {
	err := New(ErrEmptyDocument, "no chunks")
	require.True(t, IsEmptyDocument(err))
	require.False(t, IsNotFound(err))
	require.False(t, errors.Is(err, ErrBackend))
}

func TestNewf(t *testing.T) {
	err := Newf(ErrNotFound, "course not found: %s", "c-1")
	require.True(t, IsNotFound(err))
	require.Contains(t, err.Error(), "course not found: c-1")
}

func TestMessageStripsKindPrefix(t *testing.T) {
	err := New(ErrConversion, "engine crashed")
	require.Equal(t, "conversion failed: engine crashed", err.Error())
	require.Equal(t, "engine crashed", Message(err))

	wrapped := Wrap(ErrEmbedding, io.ErrUnexpectedEOF, "call embeddings api")
	require.Equal(t, "call embeddings api: unexpected EOF", Message(wrapped))

	plain := errors.New("plain failure")
	require.Equal(t, "plain failure", Message(plain))
}
