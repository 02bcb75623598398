// Package deployment orchestrates a local clickhouse test cluster: it owns
// the deployment directory, mutates the persisted topology, regenerates
// per-node configuration, and starts or stops node processes in an order
// that keeps every node's view of the cluster converging.
package deployment

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"clickherd/chconfig"
	"clickherd/metastore"
	"clickherd/topology"
)

// DirName is the subdirectory of the user-supplied path everything lives
// under, so a deployment can be cleaned up with a single rm -rf.
const DirName = "deployment"

// Options configures a Deployment.
type Options struct {
	Logger *zap.Logger

	// Path is the user-supplied root; the deployment directory is created
	// directly below it.
	Path string

	// BasePorts overrides the default port scheme. Zero value means
	// topology.DefaultBasePorts.
	BasePorts topology.BasePorts

	// Lifecycle overrides process control, used by tests. Nil means real
	// processes via ProcessLifecycle.
	Lifecycle Lifecycle

	// Binary is the clickhouse executable for the default lifecycle.
	// Empty means "clickhouse".
	Binary string
}

// Deployment drives all provisioning and reconfiguration operations for one
// local test cluster.
//
// Operations are not transactional: persisting the mutated topology,
// rewriting node configs, and signaling processes are separate steps, and a
// crash between them leaves a recoverable intermediate state. Re-running the
// operation is safe for additions because id allocation is monotonic; a
// re-run removal of an already-removed id reports ErrNotFound.
type Deployment struct {
	logger    *zap.Logger
	dir       string
	projector *chconfig.Projector
	store     *metastore.Store
	lifecycle Lifecycle
}

// New creates a Deployment rooted at opts.Path.
func New(opts *Options) *Deployment {
	dir := filepath.Join(opts.Path, DirName)

	basePorts := opts.BasePorts
	if basePorts == (topology.BasePorts{}) {
		basePorts = topology.DefaultBasePorts()
	}

	projector := &chconfig.Projector{
		Root:      dir,
		BasePorts: basePorts,
	}

	lifecycle := opts.Lifecycle
	if lifecycle == nil {
		binary := opts.Binary
		if binary == "" {
			binary = "clickhouse"
		}
		lifecycle = &ProcessLifecycle{
			Binary:    binary,
			Projector: projector,
			Logger:    opts.Logger.Named("lifecycle"),
		}
	}

	return &Deployment{
		logger:    opts.Logger,
		dir:       dir,
		projector: projector,
		store:     &metastore.Store{Dir: dir},
		lifecycle: lifecycle,
	}
}

// Dir returns the deployment directory.
func (d *Deployment) Dir() string {
	return d.dir
}

// BasePorts returns the port scheme in effect.
func (d *Deployment) BasePorts() topology.BasePorts {
	return d.projector.BasePorts
}

// Genesis creates a fresh cluster with keepers 1..=numKeepers and server
// replicas 1..=numReplicas, writes every node's configuration, and persists
// the initial topology. Both counts must be at least one.
func (d *Deployment) Genesis(numKeepers, numReplicas uint64) error {
	t, err := topology.New(numKeepers, numReplicas, uuid.NewString())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", d.dir)
	}

	unlock, err := d.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := d.writeServerConfigs(t); err != nil {
		return err
	}
	if err := d.writeKeeperConfigs(t); err != nil {
		return err
	}

	return d.store.Save(t)
}

// Deploy starts every node of an already-generated cluster, keepers first so
// the ensemble is forming while the servers come up. A node that fails to
// start is logged and skipped; the rest still start.
func (d *Deployment) Deploy() error {
	t, err := d.store.Load()
	if err != nil {
		return err
	}

	for _, id := range t.Keepers.IDs() {
		if err := d.lifecycle.StartKeeper(id); err != nil {
			d.logger.Error("failed to start keeper",
				zap.Uint64("id", uint64(id)), zap.Error(err))
		}
	}
	for _, id := range t.Servers.IDs() {
		if err := d.lifecycle.StartServer(id); err != nil {
			d.logger.Error("failed to start clickhouse server",
				zap.Uint64("id", uint64(id)), zap.Error(err))
		}
	}

	return nil
}

// AddKeeper grows the keeper ensemble by one and returns the new id.
//
// The new keeper is configured and started before any peer learns about it:
// ensemble reconfiguration requires the joining member to be reachable, so
// telling the peers first would wedge the raft group on an absent node. The
// existing keepers then pick the new member up by hot-reloading their
// rewritten configs, and finally every server learns the new keeper list.
func (d *Deployment) AddKeeper() (topology.NodeID, error) {
	unlock, err := d.store.Lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	t, err := d.store.Load()
	if err != nil {
		return 0, err
	}

	newID := t.AddKeeper()
	if err := topology.CheckID(newID); err != nil {
		return 0, err
	}

	d.logger.Info("updating config to include new keeper",
		zap.Uint64("id", uint64(newID)))

	if err := d.store.Save(t); err != nil {
		return 0, err
	}

	if err := d.writeKeeperConfig(t, newID); err != nil {
		return 0, err
	}
	if err := d.lifecycle.StartKeeper(newID); err != nil {
		return 0, err
	}

	for _, id := range t.Keepers.IDs() {
		if id == newID {
			continue
		}
		if err := d.writeKeeperConfig(t, id); err != nil {
			return 0, err
		}
	}

	if err := d.writeServerConfigs(t); err != nil {
		return 0, err
	}

	return newID, nil
}

// RemoveKeeper shrinks the keeper ensemble. Every remaining keeper's config
// is rewritten before the departing process is killed, so no live config
// ever names a keeper that can no longer respond. Removing an id that is not
// a live keeper fails with topology.ErrNotFound before anything is persisted.
func (d *Deployment) RemoveKeeper(id topology.NodeID) error {
	unlock, err := d.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	t, err := d.store.Load()
	if err != nil {
		return err
	}

	if err := t.RemoveKeeper(id); err != nil {
		return err
	}

	d.logger.Info("updating config to remove keeper",
		zap.Uint64("id", uint64(id)))

	if err := d.store.Save(t); err != nil {
		return err
	}

	if err := d.writeKeeperConfigs(t); err != nil {
		return err
	}

	if err := d.lifecycle.StopKeeper(id); err != nil {
		return err
	}

	return d.writeServerConfigs(t)
}

// AddServer grows the replica set by one and returns the new id. Servers are
// independent query endpoints rather than a consensus group, so the only
// ordering that matters is that every replica's config reflects the new
// membership before the new process starts serving.
func (d *Deployment) AddServer() (topology.NodeID, error) {
	unlock, err := d.store.Lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	t, err := d.store.Load()
	if err != nil {
		return 0, err
	}

	newID := t.AddServer()
	if err := topology.CheckID(newID); err != nil {
		return 0, err
	}

	d.logger.Info("updating config to include new replica",
		zap.Uint64("id", uint64(newID)))

	if err := d.store.Save(t); err != nil {
		return 0, err
	}

	if err := d.writeServerConfigs(t); err != nil {
		return 0, err
	}

	if err := d.lifecycle.StartServer(newID); err != nil {
		return 0, err
	}

	return newID, nil
}

// RemoveServer shrinks the replica set. Removing an id that is not a live
// server fails with topology.ErrNotFound before anything is persisted.
func (d *Deployment) RemoveServer(id topology.NodeID) error {
	unlock, err := d.store.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	t, err := d.store.Load()
	if err != nil {
		return err
	}

	if err := t.RemoveServer(id); err != nil {
		return err
	}

	d.logger.Info("updating config to remove clickhouse server",
		zap.Uint64("id", uint64(id)))

	if err := d.store.Save(t); err != nil {
		return err
	}

	if err := d.writeServerConfigs(t); err != nil {
		return err
	}

	return d.lifecycle.StopServer(id)
}

// Show returns the persisted topology.
func (d *Deployment) Show() (*topology.Topology, error) {
	return d.store.Load()
}

func (d *Deployment) writeKeeperConfig(t *topology.Topology, id topology.NodeID) error {
	cfg, err := d.projector.KeeperConfig(t, id)
	if err != nil {
		return err
	}

	dir := d.projector.KeeperDir(id)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	path := filepath.Join(dir, "keeper-config.xml")
	if err := os.WriteFile(path, []byte(cfg.ToXML()), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}

func (d *Deployment) writeKeeperConfigs(t *topology.Topology) error {
	for _, id := range t.Keepers.IDs() {
		if err := d.writeKeeperConfig(t, id); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployment) writeServerConfig(t *topology.Topology, id topology.NodeID) error {
	cfg, err := d.projector.ReplicaConfig(t, id)
	if err != nil {
		return err
	}

	dir := d.projector.ServerDir(id)
	if err := os.MkdirAll(filepath.Join(dir, "logs"), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	path := filepath.Join(dir, "clickhouse-config.xml")
	if err := os.WriteFile(path, []byte(cfg.ToXML()), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}

func (d *Deployment) writeServerConfigs(t *topology.Topology) error {
	for _, id := range t.Servers.IDs() {
		if err := d.writeServerConfig(t, id); err != nil {
			return err
		}
	}
	return nil
}
