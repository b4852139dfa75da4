// Package systemd recognizes a request for the systemd cgroup driver and
// rejects it with a clear error. This core never manages cgroups through
// systemd units; the only job of this package is to turn "the bundle asked
// for systemd" into an actionable configuration error, distinguishing
// "systemd isn't even running" from "systemd is running, but we still
// won't use it".
package systemd

import (
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// Available reports whether a systemd instance is reachable on the session
// or system bus — used only to produce a better diagnostic, never to
// actually drive cgroup management through it.
func Available() bool {
	conn, err := dbus.New()
	if err != nil {
		return false
	}
	defer conn.Close()
	return true
}

// Reject returns the configuration error for a systemd cgroup driver
// request: the driver is recognized, then rejected, naming whether systemd
// itself was even detected on the host.
func Reject() error {
	if Available() {
		return fmt.Errorf("configuration error: systemd cgroup driver requested, but this runtime only supports the cgroupfs driver (systemd was detected on the host)")
	}
	return fmt.Errorf("configuration error: systemd cgroup driver requested, but this runtime only supports the cgroupfs driver (systemd was not detected on the host)")
}
