package retry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/SlpAus/fedivote/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errTransient = errors.New("transient")
	errFatal     = errors.New("fatal")
)

func isTransient(err error) bool { return errors.Is(err, errTransient) }

var fast = retry.Options{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

func TestDoRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	attempts := 0
	got, err := retry.Do(t.Context(), fast, isTransient, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, errTransient
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := retry.Do(t.Context(), fast, isTransient, func() (int, error) {
		attempts++
		return 0, errFatal
	})
	assert.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, attempts)
}

func TestDoGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	_, err := retry.Do(t.Context(), fast, isTransient, func() (int, error) {
		attempts++
		return 0, errTransient
	})
	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, attempts)
}
