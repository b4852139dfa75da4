// Package idmap writes uid_map/gid_map files for user-namespace containers
// (component C of the bootstrap coordinator).
package idmap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/DragonOS-Community/runcell/libcontainer/configs"
	"github.com/pkg/errors"
)

// compose builds the "container_id host_id size\n" lines for the given
// mappings, skipping zero-size entries.
func compose(maps []configs.IDMap) string {
	var b strings.Builder
	for _, m := range maps {
 if m.Size == 0 {
 continue
 }
 fmt.Fprintf(&b, "%d %d %d\n", m.ContainerID, m.HostID, m.Size)
	}
	return b.String()
}

// write opens path write-only, writes payload in a single call, and closes
// the file on every exit path. The kernel forbids rewriting uid_map/gid_map,
// so this must only ever be called once per pid per file.
func write(path string, payload string) (retErr error) {
	if payload == "" {
 // An empty composed payload means no mappings to write.
 return nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
 return errors.Wrapf(err, "opening %s", path)
	}
	defer func() {
 if cerr := f.Close(); cerr != nil && retErr == nil {
 retErr = errors.Wrapf(cerr, "closing %s", path)
 }
	}()

	n, err := f.Write([]byte(payload))
	if err != nil {
 return errors.Wrapf(err, "writing %s", path)
	}
	if n != len(payload) {
 // The kernel interface makes partial writes to uid_map/gid_map
 // effectively impossible, but treat one as fatal rather than
 // silently truncating the mapping.
 return fmt.Errorf("partial write to %s: wrote %d of %d bytes", path, n, len(payload))
	}
	return nil
}

// WriteUID writes /proc/<pid>/uid_map for the given mappings.
func WriteUID(pid int, maps []configs.IDMap) error {
	return write("/proc/"+strconv.Itoa(pid)+"/uid_map", compose(maps))
}

// WriteGID writes /proc/<pid>/gid_map for the given mappings.
func WriteGID(pid int, maps []configs.IDMap) error {
	return write("/proc/"+strconv.Itoa(pid)+"/gid_map", compose(maps))
}

// Write writes both uid_map and gid_map for pid. It is the entry point the
// bootstrap coordinator calls at handshake step 6.
func Write(pid int, uidMaps, gidMaps []configs.IDMap) error {
	if err := WriteUID(pid, uidMaps); err != nil {
 return err
	}
	return WriteGID(pid, gidMaps)
}
