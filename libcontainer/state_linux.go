package libcontainer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
)

// Status is one of the four container lifecycle state names.
type Status int

const (
	Created Status = iota
	Running
	Paused
	Stopped
)

func (s Status) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const stateFilename = "state.json"

// State is the persisted JSON document: one per container, under
// <state_base>/<id>/state.json. Status is deliberately absent from the
// persisted form, since status is always recomputed from InitProcessPid's
// liveness rather than trusted from disk.
type State struct {
	ID string `json:"id"`
	InitProcessPid int `json:"init_process_pid"`
	InitProcessStartTime uint64 `json:"init_process_start_time"`
	Rootless bool `json:"rootless"`
	CgroupPaths map[string]string `json:"cgroup_paths"`
	NamespacePaths map[configs.NamespaceType]string `json:"namespace_paths"`
	Created int64 `json:"created"`
	Rootfs string `json:"rootfs"`
	Bundle string `json:"bundle"`
}

// equalModuloStatus reports whether two State values are equal, ignoring
// any derived fields (there are none stored on State itself; status lives
// on Container). This backs the round-trip testable property: persisting a
// state record and reloading it yields an equal record.
func (s *State) equalModuloStatus(o *State) bool {
	if s.ID != o.ID || s.InitProcessPid != o.InitProcessPid ||
		s.InitProcessStartTime != o.InitProcessStartTime ||
		s.Rootless != o.Rootless || s.Created != o.Created ||
		s.Rootfs != o.Rootfs || s.Bundle != o.Bundle {
		return false
	}
	if len(s.CgroupPaths) != len(o.CgroupPaths) {
		return false
	}
	for k, v := range s.CgroupPaths {
		if o.CgroupPaths[k] != v {
			return false
		}
	}
	if len(s.NamespacePaths) != len(o.NamespacePaths) {
		return false
	}
	for k, v := range s.NamespacePaths {
		if o.NamespacePaths[k] != v {
			return false
		}
	}
	return true
}

func statePath(stateRoot, id string) string {
	return filepath.Join(stateRoot, id, stateFilename)
}

// saveState atomically writes s to <stateRoot>/<id>/state.json: write to a
// temp file in the same directory, then rename, so a reader never observes
// a partially-written file.
func saveState(stateRoot, id string, s *State) (retErr error) {
	dir := filepath.Join(stateRoot, id)
	if err := os.MkdirAll(dir, 0o711); err != nil {
		return errors.Wrap(err, "creating state dir")
	}

	tmp, err := os.CreateTemp(dir, "state-")
	if err != nil {
		return errors.Wrap(err, "creating temp state file")
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := json.NewEncoder(tmp).Encode(s); err != nil {
		return errors.Wrap(err, "encoding state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp state file")
	}
	return os.Rename(tmp.Name(), statePath(stateRoot, id))
}

// loadState reads <stateRoot>/<id>/state.json. A missing file means the
// container is unknown.
func loadState(stateRoot, id string) (*State, error) {
	f, err := os.Open(statePath(stateRoot, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errContainerNotFound
		}
		return nil, errors.Wrap(err, "opening state file")
	}
	defer f.Close()

	var s State
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return nil, errors.Wrap(err, "decoding state file")
	}
	return &s, nil
}

func removeStateDir(stateRoot, id string) error {
	return os.RemoveAll(filepath.Join(stateRoot, id))
}

// nowEpoch is a thin wrapper so tests can stub time.
var nowEpoch = func() int64 { return time.Now().Unix() }
