package chconfig

import (
	"fmt"
	"path/filepath"

	"github.com/pkg/errors"

	"clickherd/topology"
)

// ClusterName is the name of the single test cluster every deployment runs.
const ClusterName = "test_cluster"

// defaultSecret is used when the loaded metadata predates per-cluster
// secrets. Distributed queries between replicas just need the value to
// agree, not to be strong.
const defaultSecret = "some-unique-value"

// Projector computes per-node configuration views from a topology. It is
// stateless; all inputs arrive through the struct fields and the call
// arguments, so identical inputs always produce identical views.
type Projector struct {
	// Root is the deployment directory node subdirectories live under.
	Root string

	// BasePorts is the port scheme for this deployment.
	BasePorts topology.BasePorts
}

// ServerDir returns the directory a server replica's config and data live in.
func (p *Projector) ServerDir(id topology.NodeID) string {
	return filepath.Join(p.Root, fmt.Sprintf("clickhouse-%d", id))
}

// KeeperDir returns the directory a keeper's config and state live in.
func (p *Projector) KeeperDir(id topology.NodeID) string {
	return filepath.Join(p.Root, fmt.Sprintf("keeper-%d", id))
}

func (p *Projector) secret(t *topology.Topology) string {
	if t.Secret == "" {
		return defaultSecret
	}
	return t.Secret
}

// ReplicaConfig projects the configuration view for server thisID: its own
// macros and listen ports, the ascending list of all server replicas, and
// the ascending list of all keepers. thisID must be a live server.
func (p *Projector) ReplicaConfig(t *topology.Topology, thisID topology.NodeID) (*ReplicaConfig, error) {
	if !t.Servers.Contains(thisID) {
		return nil, errors.Wrapf(topology.ErrNotFound, "server %d", thisID)
	}
	if err := topology.CheckID(thisID); err != nil {
		return nil, err
	}

	serverIDs := t.Servers.IDs()
	replicas := make([]HostPort, 0, len(serverIDs))
	for _, id := range serverIDs {
		replicas = append(replicas, HostPort{
			Host: "::1",
			Port: topology.Port(p.BasePorts.TCP, id),
		})
	}

	keeperIDs := t.Keepers.IDs()
	keepers := make([]HostPort, 0, len(keeperIDs))
	for _, id := range keeperIDs {
		keepers = append(keepers, HostPort{
			Host: "[::1]",
			Port: topology.Port(p.BasePorts.Keeper, id),
		})
	}

	dir := p.ServerDir(thisID)
	logs := filepath.Join(dir, "logs")

	return &ReplicaConfig{
		Logger: LogConfig{
			Level:    LogLevelTrace,
			Log:      filepath.Join(logs, "clickhouse.log"),
			ErrorLog: filepath.Join(logs, "clickhouse.err.log"),
			Size:     "100M",
			Count:    1,
		},
		Macros: Macros{
			Shard:   1,
			Replica: thisID,
			Cluster: ClusterName,
		},
		ListenHost:          "::1",
		HTTPPort:            topology.Port(p.BasePorts.HTTP, thisID),
		TCPPort:             topology.Port(p.BasePorts.TCP, thisID),
		InterserverHTTPPort: topology.Port(p.BasePorts.InterserverHTTP, thisID),
		RemoteServers: RemoteServers{
			Cluster:  ClusterName,
			Secret:   p.secret(t),
			Replicas: replicas,
		},
		Keepers:  KeeperNodes{Nodes: keepers},
		DataPath: filepath.Join(dir, "data"),
	}, nil
}

// KeeperConfig projects the configuration view for keeper thisID: its own id
// and ports plus the ascending raft peer list over every live keeper,
// including thisID itself. thisID must be a live keeper.
func (p *Projector) KeeperConfig(t *topology.Topology, thisID topology.NodeID) (*KeeperConfig, error) {
	if !t.Keepers.Contains(thisID) {
		return nil, errors.Wrapf(topology.ErrNotFound, "keeper %d", thisID)
	}
	if err := topology.CheckID(thisID); err != nil {
		return nil, err
	}

	keeperIDs := t.Keepers.IDs()
	raftServers := make([]RaftServer, 0, len(keeperIDs))
	for _, id := range keeperIDs {
		raftServers = append(raftServers, RaftServer{
			ID:       id,
			Hostname: "::1",
			Port:     topology.Port(p.BasePorts.Raft, id),
		})
	}

	dir := p.KeeperDir(thisID)
	logs := filepath.Join(dir, "logs")

	return &KeeperConfig{
		Logger: LogConfig{
			Level:    LogLevelTrace,
			Log:      filepath.Join(logs, "clickhouse-keeper.log"),
			ErrorLog: filepath.Join(logs, "clickhouse-keeper.err.log"),
			Size:     "100M",
			Count:    1,
		},
		ListenHost:          "::1",
		TCPPort:             topology.Port(p.BasePorts.Keeper, thisID),
		ServerID:            thisID,
		LogStoragePath:      filepath.Join(dir, "coordination", "log"),
		SnapshotStoragePath: filepath.Join(dir, "coordination", "snapshots"),
		CoordinationSettings: CoordinationSettings{
			OperationTimeoutMs: 10000,
			SessionTimeoutMs:   30000,
			RaftLogsLevel:      LogLevelTrace,
		},
		RaftConfig: RaftServers{Servers: raftServers},
	}, nil
}
