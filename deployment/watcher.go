package deployment

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Watcher re-projects every node's configuration whenever the metadata file
// changes out from under this process, for example when another invocation
// on the same deployment mutates the topology. It never signals processes;
// the nodes pick up rewritten configs through their own hot reload.
type Watcher struct {
	Deployment *Deployment
	Logger     *zap.Logger
}

// Run blocks until ctx is canceled, regenerating configs on every write to
// the metadata file.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create watcher")
	}
	defer func() { _ = fsw.Close() }()

	// Watch the directory rather than the file: editors and atomic writers
	// replace the file, which would silently drop a file-level watch.
	if err := fsw.Add(w.Deployment.Dir()); err != nil {
		return errors.Wrapf(err, "failed to watch %s", w.Deployment.Dir())
	}

	w.Logger.Info("watching deployment metadata",
		zap.String("dir", w.Deployment.Dir()))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if event.Name != w.Deployment.store.Path() {
				continue
			}

			w.Logger.Info("metadata change detected, regenerating configs")
			if err := w.regenerate(); err != nil {
				w.Logger.Error("failed to regenerate configs", zap.Error(err))
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.Logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) regenerate() error {
	t, err := w.Deployment.store.Load()
	if err != nil {
		return err
	}

	if err := w.Deployment.writeKeeperConfigs(t); err != nil {
		return err
	}
	if err := w.Deployment.writeServerConfigs(t); err != nil {
		return err
	}

	w.Logger.Info("configs regenerated",
		zap.Int("keepers", t.Keepers.Len()),
		zap.Int("servers", t.Servers.Len()))
	return nil
}
