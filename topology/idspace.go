package topology

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when an operation targets a node id that is not
// currently a member of its id space.
var ErrNotFound = errors.New("no such node id")

// NodeID identifies a keeper or a server. The two id spaces are independent,
// so a keeper and a server may share a numeric value.
type NodeID uint64

// IDSpace is an ordered set of live node ids together with the largest id
// ever allocated. Ids are handed out by incrementing the high-water mark and
// are never reused, even after removal.
type IDSpace struct {
	ids map[NodeID]struct{}
	max NodeID
}

// NewIDSpace creates an id space holding the contiguous range 1..=n.
func NewIDSpace(n uint64) (*IDSpace, error) {
	if n == 0 {
		return nil, errors.New("id space must start with at least one id")
	}

	ids := make(map[NodeID]struct{}, n)
	for id := NodeID(1); id <= NodeID(n); id++ {
		ids[id] = struct{}{}
	}

	return &IDSpace{ids: ids, max: NodeID(n)}, nil
}

// Allocate hands out the next id. It never fails and never returns a
// previously released id.
func (s *IDSpace) Allocate() NodeID {
	s.max++
	s.ids[s.max] = struct{}{}
	return s.max
}

// Release removes id from the live set. The high-water mark is left alone so
// the id is never handed out again.
func (s *IDSpace) Release(id NodeID) error {
	if _, ok := s.ids[id]; !ok {
		return errors.Wrapf(ErrNotFound, "id %d", id)
	}

	delete(s.ids, id)
	return nil
}

// Contains reports whether id is currently live.
func (s *IDSpace) Contains(id NodeID) bool {
	_, ok := s.ids[id]
	return ok
}

// IDs returns the live ids in ascending order.
func (s *IDSpace) IDs() []NodeID {
	out := make([]NodeID, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Max returns the high-water mark.
func (s *IDSpace) Max() NodeID {
	return s.max
}

// Len returns the number of live ids.
func (s *IDSpace) Len() int {
	return len(s.ids)
}

func idSpaceFromParts(ids []NodeID, max NodeID) *IDSpace {
	s := &IDSpace{
		ids: make(map[NodeID]struct{}, len(ids)),
		max: max,
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}
