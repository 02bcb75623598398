package chconfig

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clickherd/topology"
)

func testProjector() *Projector {
	return &Projector{
		Root:      "/tmp/clickherd-test/deployment",
		BasePorts: topology.DefaultBasePorts(),
	}
}

func TestReplicaProjectionIsDeterministic(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	p := testProjector()

	first, err := p.ReplicaConfig(topo, 1)
	require.NoError(t, err)
	second, err := p.ReplicaConfig(topo, 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.ToXML(), second.ToXML())
}

func TestKeeperProjectionIsDeterministic(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	p := testProjector()

	first, err := p.KeeperConfig(topo, 2)
	require.NoError(t, err)
	second, err := p.KeeperConfig(topo, 2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.ToXML(), second.ToXML())
}

func TestReplicaProjectionRequiresMembership(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	_, err = testProjector().ReplicaConfig(topo, 5)
	assert.True(t, errors.Is(err, topology.ErrNotFound))
}

func TestKeeperProjectionRequiresMembership(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	_, err = testProjector().KeeperConfig(topo, 4)
	assert.True(t, errors.Is(err, topology.ErrNotFound))
}

func TestReplicaProjection(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	cfg, err := testProjector().ReplicaConfig(topo, 2)
	require.NoError(t, err)

	assert.Equal(t, uint64(1), cfg.Macros.Shard)
	assert.Equal(t, topology.NodeID(2), cfg.Macros.Replica)
	assert.Equal(t, ClusterName, cfg.Macros.Cluster)

	assert.Equal(t, uint16(22002), cfg.TCPPort)
	assert.Equal(t, uint16(23002), cfg.HTTPPort)
	assert.Equal(t, uint16(24002), cfg.InterserverHTTPPort)

	// The full ascending server list, this replica included.
	require.Len(t, cfg.RemoteServers.Replicas, 2)
	assert.Equal(t, uint16(22001), cfg.RemoteServers.Replicas[0].Port)
	assert.Equal(t, uint16(22002), cfg.RemoteServers.Replicas[1].Port)
	assert.Equal(t, "secret", cfg.RemoteServers.Secret)

	// The full ascending keeper list.
	require.Len(t, cfg.Keepers.Nodes, 3)
	for i, node := range cfg.Keepers.Nodes {
		assert.Equal(t, uint16(20001+i), node.Port)
	}
}

func TestKeeperProjection(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	cfg, err := testProjector().KeeperConfig(topo, 3)
	require.NoError(t, err)

	assert.Equal(t, topology.NodeID(3), cfg.ServerID)
	assert.Equal(t, uint16(20003), cfg.TCPPort)

	// The raft peer list covers every keeper, itself included.
	require.Len(t, cfg.RaftConfig.Servers, 3)
	for i, server := range cfg.RaftConfig.Servers {
		assert.Equal(t, topology.NodeID(i+1), server.ID)
		assert.Equal(t, uint16(21001+i), server.Port)
	}
}

func TestProjectionTracksMembershipChanges(t *testing.T) {
	topo, err := topology.New(3, 2, "secret")
	require.NoError(t, err)

	p := testProjector()

	newID := topo.AddKeeper()
	require.Equal(t, topology.NodeID(4), newID)

	cfg, err := p.ReplicaConfig(topo, 1)
	require.NoError(t, err)
	assert.Len(t, cfg.Keepers.Nodes, 4)

	require.NoError(t, topo.RemoveKeeper(2))

	cfg, err = p.ReplicaConfig(topo, 1)
	require.NoError(t, err)
	require.Len(t, cfg.Keepers.Nodes, 3)
	assert.Equal(t, uint16(20001), cfg.Keepers.Nodes[0].Port)
	assert.Equal(t, uint16(20003), cfg.Keepers.Nodes[1].Port)
	assert.Equal(t, uint16(20004), cfg.Keepers.Nodes[2].Port)

	kcfg, err := p.KeeperConfig(topo, 4)
	require.NoError(t, err)
	require.Len(t, kcfg.RaftConfig.Servers, 3)
}

func TestSecretDefaultsWhenAbsent(t *testing.T) {
	topo, err := topology.New(1, 1, "")
	require.NoError(t, err)

	cfg, err := testProjector().ReplicaConfig(topo, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.RemoteServers.Secret)
}

func TestReplicaXML(t *testing.T) {
	topo, err := topology.New(2, 2, "xml-secret")
	require.NoError(t, err)

	cfg, err := testProjector().ReplicaConfig(topo, 1)
	require.NoError(t, err)

	xml := cfg.ToXML()

	assert.Contains(t, xml, "<clickhouse>")
	assert.Contains(t, xml, `<remote_servers replace="true">`)
	assert.Contains(t, xml, "<secret>xml-secret</secret>")
	assert.Contains(t, xml, fmt.Sprintf("<%s>", ClusterName))
	assert.Contains(t, xml, "<tcp_port>22001</tcp_port>")
	assert.Contains(t, xml, "<http_port>23001</http_port>")
	assert.Contains(t, xml, "<interserver_http_port>24001</interserver_http_port>")
	assert.Contains(t, xml, fmt.Sprintf("<display_name>%s-1</display_name>", ClusterName))

	assert.Equal(t, 2, strings.Count(xml, "<replica>\n"), "one remote_servers entry per live server")
	assert.Equal(t, 2, strings.Count(xml, "<node>\n"), "one zookeeper entry per live keeper")
}

func TestKeeperXML(t *testing.T) {
	topo, err := topology.New(3, 1, "secret")
	require.NoError(t, err)

	cfg, err := testProjector().KeeperConfig(topo, 1)
	require.NoError(t, err)

	xml := cfg.ToXML()

	assert.Contains(t, xml, "<keeper_server>")
	assert.Contains(t, xml, "<enable_reconfiguration>false</enable_reconfiguration>")
	assert.Contains(t, xml, "<server_id>1</server_id>")
	assert.Contains(t, xml, "<tcp_port>20001</tcp_port>")
	assert.Contains(t, xml, "<operation_timeout_ms>10000</operation_timeout_ms>")
	assert.Contains(t, xml, "<session_timeout_ms>30000</session_timeout_ms>")

	assert.Equal(t, 3, strings.Count(xml, "<server>\n"), "one raft entry per live keeper")
}
