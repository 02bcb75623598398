package topology

import "github.com/pkg/errors"

// portSpacing is the distance between two adjacent base ports. The total
// number of ids ever allocated in either space must stay below this or a
// node's port would collide with the next service's base.
const portSpacing = 1000

// BasePorts is the port scheme for a deployment. The effective port for node
// id and a given service is base + id. This is a plain value rather than a
// set of constants so tests can run against arbitrary ranges.
type BasePorts struct {
	Keeper          uint16 `json:"keeper"`
	Raft            uint16 `json:"raft"`
	TCP             uint16 `json:"tcp"`
	HTTP            uint16 `json:"http"`
	InterserverHTTP uint16 `json:"interserver_http"`
}

// DefaultBasePorts returns the well-known local-test port layout.
func DefaultBasePorts() BasePorts {
	return BasePorts{
		Keeper:          20000,
		Raft:            21000,
		TCP:             22000,
		HTTP:            23000,
		InterserverHTTP: 24000,
	}
}

// Port derives the effective port for node id on the service with the given
// base port.
func Port(base uint16, id NodeID) uint16 {
	return base + uint16(id)
}

// CheckID rejects ids that would run past the spacing between base ports.
func CheckID(id NodeID) error {
	if id >= portSpacing {
		return errors.Errorf("node id %d exceeds the maximum of %d supported by the port scheme", id, portSpacing-1)
	}
	return nil
}
