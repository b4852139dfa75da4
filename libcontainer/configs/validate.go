package configs

import (
	"fmt"

	"github.com/DragonOS-Community/runcell/libcontainer/cgroups/systemd"
)

// Validate performs the configuration-parse-time checks that classify as
// a configuration error: missing required sections, unknown namespace
// kind (already enforced by NamespacesFromOCI), invalid cgroup path, and
// unsupported cgroup driver.
//
// The systemd cgroup driver is rejected here, at configuration-parse time,
// rather than later during cgroup setup, so a bad bundle fails fast before
// any namespace or process is created.
func (c *Config) Validate() error {
	if c.Rootfs == "" {
 return fmt.Errorf("configuration error: rootfs is required")
	}
	if c.Cgroups != nil {
 if err := c.Cgroups.validate(); err != nil {
 return err
 }
	}
	return nil
}

func (cg *Cgroup) validate() error {
	switch cg.Driver {
	case "", Cgroupfs:
 // ok; "" defaults to Cgroupfs at load time.
	case Systemd:
 return systemd.Reject()
	default:
 return fmt.Errorf("configuration error: unknown cgroup driver %q", cg.Driver)
	}
	if cg.Path != "" && cg.Path[0] != '/' {
 return fmt.Errorf("configuration error: cgroup path %q must be absolute", cg.Path)
	}
	return nil
}
