// Package metastore persists the cluster topology as a JSON metadata file in
// the deployment directory. This avoids re-parsing the generated XML: the
// metadata carries exactly what the reconfiguration commands need.
package metastore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"clickherd/topology"
)

// MetadataFilename is the name of the topology metadata file. It always
// lives directly below the deployment directory.
const MetadataFilename = "clickherd-metadata.json"

// Store reads and writes the topology metadata for one deployment.
type Store struct {
	// Dir is the deployment directory.
	Dir string
}

// Path returns the location of the metadata file.
func (s *Store) Path() string {
	return filepath.Join(s.Dir, MetadataFilename)
}

func (s *Store) lockPath() string {
	return s.Path() + ".lock"
}

// Load reads the persisted topology.
func (s *Store) Load() (*topology.Topology, error) {
	path := s.Path()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	var t topology.Topology
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}

	return &t, nil
}

// Save writes the topology, replacing any previous metadata.
func (s *Store) Save(t *topology.Topology) error {
	path := s.Path()

	data, err := json.Marshal(t)
	if err != nil {
		return errors.Wrap(err, "failed to encode metadata")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}

	return nil
}

// Lock takes an exclusive advisory lock over the metadata so that two
// concurrent invocations cannot interleave their load-mutate-save sequences
// and lose an update. The returned function releases the lock.
func (s *Store) Lock() (func(), error) {
	fl := flock.New(s.lockPath())
	if err := fl.Lock(); err != nil {
		return nil, errors.Wrapf(err, "failed to lock %s", s.lockPath())
	}

	return func() { _ = fl.Unlock() }, nil
}
