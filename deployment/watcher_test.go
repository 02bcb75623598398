package deployment

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestWatcherRegeneratesOnMetadataChange(t *testing.T) {
	d, _ := newTestDeployment(t)
	require.NoError(t, d.Genesis(3, 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &Watcher{
		Deployment: d,
		Logger:     zaptest.NewLogger(t),
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher a moment to establish its watch.
	time.Sleep(200 * time.Millisecond)

	// Mutate the topology behind the watcher's back, the way a second
	// invocation on the same deployment would.
	topo, err := d.store.Load()
	require.NoError(t, err)
	topo.AddKeeper()
	require.NoError(t, d.store.Save(topo))

	// The watcher should project a config for the new keeper.
	newConfig := filepath.Join(d.Dir(), "keeper-4", "keeper-config.xml")
	require.Eventually(t, func() bool {
		_, err := os.Stat(newConfig)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
