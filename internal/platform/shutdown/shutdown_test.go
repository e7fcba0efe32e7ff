package shutdown_test

import (
	"context"
	"errors"
	"testing"

	"github.com/SlpAus/fedivote/internal/platform/shutdown"
	"github.com/SlpAus/fedivote/pkg/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdownStopsServicesThenFinalizes(t *testing.T) {
	t.Parallel()
	graceful := lifecycle.NewManager(zap.NewNop())
	forceful := lifecycle.NewManager(zap.NewNop())

	handle, err := graceful.NewServiceHandle("worker")
	require.NoError(t, err)
	stopped := make(chan struct{})
	go func() {
		defer handle.Close()
		<-handle.Done()
		close(stopped)
	}()

	var order []string
	coord := shutdown.NewCoordinator(graceful, forceful, zap.NewNop(),
		shutdown.Finalizer{Name: "first", Fn: func(context.Context) error {
			select {
			case <-stopped:
				order = append(order, "first")
			default:
				order = append(order, "too-early")
			}
			return errors.New("ignored")
		}},
		shutdown.Finalizer{Name: "second", Fn: func(context.Context) error {
			order = append(order, "second")
			return nil
		}},
	)

	coord.Shutdown(nil)
	assert.Equal(t, []string{"first", "second"}, order, "a failing finalizer does not stop the rest")
}
