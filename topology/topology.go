// Package topology tracks which keeper and server node ids currently make up
// a deployment, and owns the port scheme derived from those ids. It holds no
// I/O; persistence lives in metastore and config generation in chconfig.
package topology

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Topology is the current cluster membership: the live keeper ids, the live
// server ids, and the high-water mark of each id space.
type Topology struct {
	Keepers *IDSpace
	Servers *IDSpace

	// Secret is shared by every replica in remote_servers so that the
	// servers can authenticate distributed queries to one another. It is
	// minted once at genesis and never changes.
	Secret string
}

// New creates the genesis topology with keepers 1..=numKeepers and servers
// 1..=numReplicas. Both counts must be at least one.
func New(numKeepers, numReplicas uint64, secret string) (*Topology, error) {
	keepers, err := NewIDSpace(numKeepers)
	if err != nil {
		return nil, errors.Wrap(err, "keeper id space")
	}

	servers, err := NewIDSpace(numReplicas)
	if err != nil {
		return nil, errors.Wrap(err, "server id space")
	}

	return &Topology{
		Keepers: keepers,
		Servers: servers,
		Secret:  secret,
	}, nil
}

// AddKeeper allocates the next keeper id and returns it.
func (t *Topology) AddKeeper() NodeID {
	return t.Keepers.Allocate()
}

// RemoveKeeper removes id from the keeper set. Returns ErrNotFound if id is
// not a live keeper; the topology is unchanged in that case.
func (t *Topology) RemoveKeeper(id NodeID) error {
	if err := t.Keepers.Release(id); err != nil {
		return errors.Wrap(err, "remove keeper")
	}
	return nil
}

// AddServer allocates the next server id and returns it.
func (t *Topology) AddServer() NodeID {
	return t.Servers.Allocate()
}

// RemoveServer removes id from the server set. Returns ErrNotFound if id is
// not a live server; the topology is unchanged in that case.
func (t *Topology) RemoveServer(id NodeID) error {
	if err := t.Servers.Release(id); err != nil {
		return errors.Wrap(err, "remove server")
	}
	return nil
}

type topologyJSON struct {
	KeeperIDs   []NodeID `json:"keeper_ids"`
	MaxKeeperID NodeID   `json:"max_keeper_id"`
	ServerIDs   []NodeID `json:"server_ids"`
	MaxServerID NodeID   `json:"max_server_id"`
	Secret      string   `json:"cluster_secret,omitempty"`
}

// MarshalJSON emits the metadata wire form. Id arrays are ascending so the
// output is deterministic for a given topology.
func (t *Topology) MarshalJSON() ([]byte, error) {
	return json.Marshal(topologyJSON{
		KeeperIDs:   t.Keepers.IDs(),
		MaxKeeperID: t.Keepers.Max(),
		ServerIDs:   t.Servers.IDs(),
		MaxServerID: t.Servers.Max(),
		Secret:      t.Secret,
	})
}

func (t *Topology) UnmarshalJSON(data []byte) error {
	var wire topologyJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	t.Keepers = idSpaceFromParts(wire.KeeperIDs, wire.MaxKeeperID)
	t.Servers = idSpaceFromParts(wire.ServerIDs, wire.MaxServerID)
	t.Secret = wire.Secret
	return nil
}
