package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(settings map[string]Settings) (*Router, *int) {
	constructed := 0
	r := NewRouter(settings)
	r.RegisterProvider("mock", func(s Settings, model string) (ChatModel, error) {
		constructed++
		if model == "" {
			model = s.DefaultModel
		}
		return NewMockModel("mock", model), nil
	})
	return r, &constructed
}

func TestRouter_ClientCachesPerPair(t *testing.T) {
	r, constructed := newTestRouter(map[string]Settings{"mock": {APIKey: "k", DefaultModel: "m-default"}})

	a, err := r.Client("mock", "m1")
	require.NoError(t, err)
	b, err := r.Client("mock", "m1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, *constructed)

	c, err := r.Client("mock", "m2")
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, *constructed)
}

func TestRouter_EmptyModelUsesDefault(t *testing.T) {
	r, _ := newTestRouter(map[string]Settings{"mock": {APIKey: "k", DefaultModel: "m-default"}})

	client, err := r.Client("mock", "")
	require.NoError(t, err)
	assert.Equal(t, "m-default", client.Info().Model)

	// The default-model pair and the explicit pair are cached separately.
	explicit, err := r.Client("mock", "m-default")
	require.NoError(t, err)
	assert.NotSame(t, client, explicit)
}

func TestRouter_NotSupported(t *testing.T) {
	r, _ := newTestRouter(map[string]Settings{"mock": {APIKey: "k"}})

	_, err := r.Client("cohere", "command")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotSupported)
}

func TestRouter_NotConfigured(t *testing.T) {
	r, _ := newTestRouter(nil)

	_, err := r.Client("mock", "m1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestRouter_BaseURLAloneIsEnough(t *testing.T) {
	r, _ := newTestRouter(map[string]Settings{"mock": {BaseURL: "http://localhost:11434"}})

	_, err := r.Client("mock", "local-model")
	assert.NoError(t, err)
}

func TestRouter_NamesAreCaseInsensitive(t *testing.T) {
	r, constructed := newTestRouter(map[string]Settings{"Mock": {APIKey: "k"}})

	a, err := r.Client("MOCK", "m1")
	require.NoError(t, err)
	b, err := r.Client("mock", "m1")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, *constructed)
}

func TestRouter_ConstructorFailure(t *testing.T) {
	r := NewRouter(map[string]Settings{"bad": {APIKey: "k"}})
	r.RegisterProvider("bad", func(Settings, string) (ChatModel, error) {
		return nil, errors.New("bad handshake")
	})

	_, err := r.Client("bad", "m1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad handshake")
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(error) bool { return true }, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("invalid request")
	attempts := 0
	err := Retry(context.Background(), 5, time.Millisecond, func(err error) bool { return false }, func() error {
		attempts++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func(error) bool { return true }, func() error {
		attempts++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, time.Millisecond, func(error) bool { return true }, func() error {
		t.Fatal("op must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
