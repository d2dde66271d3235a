package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := New(strings.NewReader("\ny\nno\nN\nwhatever\n"), &out)
	ctx := context.Background()

	for _, want := range []bool{true, true, false, false, true} {
		got, err := p.Confirm(ctx, "ready to request 'https://a.example.com'?")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Contains(t, out.String(), "ready to request 'https://a.example.com'? ")

	got, err := p.Confirm(ctx, "again?")
	require.NoError(t, err)
	require.False(t, got, "EOF declines")
}

func TestPause(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := New(strings.NewReader("\n"), &out)
	require.NoError(t, p.Pause(context.Background(), "press enter"))
	require.Equal(t, "press enter ", out.String())
	require.ErrorIs(t, p.Pause(context.Background(), "again"), ErrClosed)
}

func TestPromptHonorsCancellation(t *testing.T) {
	t.Parallel()

	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(reader, io.Discard).Confirm(ctx, "ready?")
	require.ErrorIs(t, err, context.Canceled)
}

func TestAnswerAfterCanceledPromptGoesToNextPrompt(t *testing.T) {
	t.Parallel()

	reader, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })
	p := New(reader, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Confirm(ctx, "ready?")
	require.ErrorIs(t, err, context.Canceled)

	go func() { _, _ = writer.Write([]byte("no\n")) }()
	got, err := p.Confirm(context.Background(), "ready again?")
	require.NoError(t, err)
	require.False(t, got)

	require.NoError(t, writer.Close())
	got, err = p.Confirm(context.Background(), "still there?")
	require.NoError(t, err)
	require.False(t, got, "closed input declines")
}
