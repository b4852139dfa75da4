package libcontainer

import (
	"encoding/json"
	"fmt"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink/nl"
)

// Netlink attribute types for the pre-handshake bootstrap message: the
// clone flags and namespace join paths the coordinator already knows
// before the sync channel's own reader loop can even start.
const (
	bootstrapAttrCloneFlags = iota + 1
	bootstrapAttrPidNsEnabled
	bootstrapAttrNamespacePaths
)

// bootstrapMessage mirrors what the clone(2) that produced the child
// already did via SysProcAttr.Cloneflags: it carries no instruction the
// child acts on, only a record for its own log line, so a postmortem can
// confirm what namespace plan the coordinator resolved without needing the
// full OCI config.
type bootstrapMessage struct {
	CloneFlags uint32
	PidNsEnabled bool
	NamespacePaths map[string]string
}

// encodeBootstrap serializes msg as a netlink-formatted message (real
// nlmsghdr framing via vishvananda/netlink/nl, the same wire shape used
// elsewhere in the pack for kernel-bound requests) even though neither end
// of this particular pipe is the kernel.
func encodeBootstrap(msg bootstrapMessage) ([]byte, error) {
	req := nl.NewNetlinkRequest(syscall.NLMSG_DONE, 0)

	flags := make([]byte, 4)
	nl.NativeEndian().PutUint32(flags, msg.CloneFlags)
	req.AddData(nl.NewRtAttr(bootstrapAttrCloneFlags, flags))

	pidns := byte(0)
	if msg.PidNsEnabled {
 pidns = 1
	}
	req.AddData(nl.NewRtAttr(bootstrapAttrPidNsEnabled, []byte{pidns}))

	paths, err := json.Marshal(msg.NamespacePaths)
	if err != nil {
 return nil, fmt.Errorf("marshaling namespace paths: %w", err)
	}
	req.AddData(nl.NewRtAttr(bootstrapAttrNamespacePaths, paths))

	return req.Serialize(), nil
}

func decodeBootstrap(b []byte) (*bootstrapMessage, error) {
	msgs, err := syscall.ParseNetlinkMessage(b)
	if err != nil {
 return nil, fmt.Errorf("parsing bootstrap message: %w", err)
	}
	if len(msgs) == 0 {
 return nil, fmt.Errorf("empty bootstrap message")
	}
	attrs, err := nl.ParseRouteAttr(msgs[0].Data)
	if err != nil {
 return nil, fmt.Errorf("parsing bootstrap attributes: %w", err)
	}

	out := &bootstrapMessage{NamespacePaths: map[string]string{}}
	for _, a := range attrs {
 switch int(a.Attr.Type) {
 case bootstrapAttrCloneFlags:
 if len(a.Value) >= 4 {
 out.CloneFlags = nl.NativeEndian().Uint32(a.Value)
 }
 case bootstrapAttrPidNsEnabled:
 out.PidNsEnabled = len(a.Value) > 0 && a.Value[0] == 1
 case bootstrapAttrNamespacePaths:
 _ = json.Unmarshal(a.Value, &out.NamespacePaths)
 }
	}
	return out, nil
}

// logBootstrap reports a decoded bootstrap message at debug level. Failure
// to decode is never fatal to the handshake — this message is diagnostic
// only.
func logBootstrap(b []byte) {
	msg, err := decodeBootstrap(b)
	if err != nil {
 logrus.WithError(err).Debug("bootstrap: failed to decode pre-handshake message")
 return
	}
	logrus.WithFields(logrus.Fields{
 "clone_flags": fmt.Sprintf("0x%x", msg.CloneFlags),
 "pidns_enabled": msg.PidNsEnabled,
 "namespace_count": len(msg.NamespacePaths),
	}).Debug("bootstrap: pre-handshake message received")
}
