// Package chconfig projects per-node ClickHouse configuration from a cluster
// topology and renders it to the XML consumed by the clickhouse binary.
//
// Projection is pure: for a fixed topology and port scheme the produced
// views, and their rendered XML, are byte-identical across calls. Every
// membership change regenerates each node's view from scratch rather than
// patching it, so no node's config can drift from the topology.
package chconfig

import "clickherd/topology"

// LogLevel is a clickhouse logger level.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
)

// LogConfig is the <logger> section shared by servers and keepers.
type LogConfig struct {
	Level    LogLevel
	Log      string
	ErrorLog string
	Size     string
	Count    int
}

// Macros identifies a replica within its cluster. Shard is fixed at 1; the
// deployment is a single-shard, fully replicated test cluster.
type Macros struct {
	Shard   uint64
	Replica topology.NodeID
	Cluster string
}

// HostPort is one remote endpoint in a replica's view.
type HostPort struct {
	Host string
	Port uint16
}

// RemoteServers is the <remote_servers> section: the full server list every
// replica uses for distributed query routing.
type RemoteServers struct {
	Cluster  string
	Secret   string
	Replicas []HostPort
}

// KeeperNodes is the <zookeeper> section: the keeper endpoints a replica
// coordinates through.
type KeeperNodes struct {
	Nodes []HostPort
}

// RaftServer is one member of the keeper ensemble as seen by a keeper.
type RaftServer struct {
	ID       topology.NodeID
	Hostname string
	Port     uint16
}

// RaftServers is the <raft_configuration> section.
type RaftServers struct {
	Servers []RaftServer
}

// CoordinationSettings is the keeper's <coordination_settings> section.
type CoordinationSettings struct {
	OperationTimeoutMs uint32
	SessionTimeoutMs   uint32
	RaftLogsLevel      LogLevel
}

// ReplicaConfig is the complete configuration view for one clickhouse server
// replica: its own identity and ports plus the full server and keeper lists.
type ReplicaConfig struct {
	Logger              LogConfig
	Macros              Macros
	ListenHost          string
	HTTPPort            uint16
	TCPPort             uint16
	InterserverHTTPPort uint16
	RemoteServers       RemoteServers
	Keepers             KeeperNodes
	DataPath            string
}

// KeeperConfig is the complete configuration view for one keeper: its own id
// and ports plus the full raft peer list, itself included.
type KeeperConfig struct {
	Logger               LogConfig
	ListenHost           string
	TCPPort              uint16
	ServerID             topology.NodeID
	LogStoragePath       string
	SnapshotStoragePath  string
	CoordinationSettings CoordinationSettings
	RaftConfig           RaftServers
}
