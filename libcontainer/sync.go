package libcontainer

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"syscall"
)

// syncTag identifies the kind of a sync message. The handshake-specific
// signals ride the same framing as DATA/SUCCESS/FAILURE; each is just a
// distinguished tag carrying a zero-length payload.
type syncTag uint32

const (
	syncData syncTag = iota
	syncSuccess
	syncFailure

	// Handshake signals. These never cross paths with
	// DATA/SUCCESS/FAILURE within a single step: the protocol is strictly
	// request/response, one step at a time.
	syncUserNsReady
	syncContinue
	syncHooksReady
	syncHooksDone
	syncReadyToExec

	// syncConsoleFd rides the separate fd-carrying sidecar channel, never
	// the main pipe-based channel above: it carries the pty master fd
	// (SCM_RIGHTS), generalized from the same ancillary-data technique a
	// seccomp notify fd handoff would use.
	syncConsoleFd
)

func (t syncTag) String() string {
	switch t {
	case syncData:
 return "DATA"
	case syncSuccess:
 return "SUCCESS"
	case syncFailure:
 return "FAILURE"
	case syncUserNsReady:
 return "USERNS_READY"
	case syncContinue:
 return "CONTINUE"
	case syncHooksReady:
 return "HOOKS_READY"
	case syncHooksDone:
 return "HOOKS_DONE"
	case syncReadyToExec:
 return "READY_TO_EXEC"
	case syncConsoleFd:
 return "CONSOLE_FD"
	default:
 return fmt.Sprintf("syncTag(%d)", uint32(t))
	}
}

// syncMessage is the wire representation of "Sync message":
// {tag, payload}. On the wire it is framed as u32 tag | u32 length | length
// bytes, big-endian.
type syncMessage struct {
	Tag syncTag
	Payload []byte
}

// channelError is returned for any I/O error, malformed frame, or an
// unexpected tag observed on the sync channel. It is always fatal and
// always triggers full cleanup.
type channelError struct {
	step int
	msg string
	err error
}

func (e *channelError) Error() string {
	if e.err != nil {
 return fmt.Sprintf("sync channel error at step %d: %s: %v", e.step, e.msg, e.err)
	}
	return fmt.Sprintf("sync channel error at step %d: %s", e.step, e.msg)
}

func (e *channelError) Unwrap() error { return e.err }

func newChannelError(step int, msg string, err error) *channelError {
	return &channelError{step: step, msg: msg, err: err}
}

// syncChannel is a full-duplex channel built from a pair of pipe ends: this
// side's write end and this side's read end. A single
// syncChannel value represents one side's view; the parent and child each
// hold their own with the opposite pipes wired up.
type syncChannel struct {
	r io.Reader
	w io.Writer
}

func newSyncChannel(r io.Reader, w io.Writer) *syncChannel {
	return &syncChannel{r: r, w: w}
}

// writeMessage writes one strictly-framed message: u32 tag, u32 length,
// then length bytes of payload.
func (c *syncChannel) writeMessage(step int, tag syncTag, payload []byte) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(payload)))
	if _, err := c.w.Write(hdr[:]); err != nil {
 return newChannelError(step, "writing frame header", err)
	}
	if len(payload) > 0 {
 if _, err := c.w.Write(payload); err != nil {
 return newChannelError(step, "writing frame payload", err)
 }
	}
	return nil
}

// readMessage reads one strictly-framed message. A partial frame (io.EOF or
// io.ErrUnexpectedEOF part-way through a header or payload) is a fatal
// channel error.
func (c *syncChannel) readMessage(step int) (*syncMessage, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
 return nil, newChannelError(step, "reading frame header", err)
	}
	tag := syncTag(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint32(hdr[4:8])

	const maxPayload = 64 << 20 // 64MiB: generous upper bound on a serialized OCI spec.
	if length > maxPayload {
 return nil, newChannelError(step, fmt.Sprintf("frame length %d exceeds limit", length), nil)
	}

	payload := make([]byte, length)
	if length > 0 {
 if _, err := io.ReadFull(c.r, payload); err != nil {
 return nil, newChannelError(step, "reading frame payload", err)
 }
	}
	return &syncMessage{Tag: tag, Payload: payload}, nil
}

// sendData writes a DATA frame and then requires a SUCCESS acknowledgment:
// DATA expects a corresponding SUCCESS or FAILURE acknowledgment from the
// receiver before the next message, since the protocol is strictly
// request/response per step.
func (c *syncChannel) sendData(step int, payload []byte) error {
	if err := c.writeMessage(step, syncData, payload); err != nil {
 return err
	}
	return c.expectAck(step)
}

// expectAck reads one message and requires it to be SUCCESS; a FAILURE
// payload is surfaced as the step's error, anything else is a channel error.
func (c *syncChannel) expectAck(step int) error {
	msg, err := c.readMessage(step)
	if err != nil {
 return err
	}
	switch msg.Tag {
	case syncSuccess:
 return nil
	case syncFailure:
 return newChannelError(step, fmt.Sprintf("remote reported failure: %s", string(msg.Payload)), nil)
	default:
 return newChannelError(step, fmt.Sprintf("unexpected tag %s, wanted SUCCESS/FAILURE", msg.Tag), nil)
	}
}

// ack acknowledges a DATA message the caller just read, with SUCCESS or, on
// err != nil, FAILURE carrying the error text.
func (c *syncChannel) ack(step int, err error) error {
	if err != nil {
 return c.writeMessage(step, syncFailure, []byte(err.Error()))
	}
	return c.writeMessage(step, syncSuccess, nil)
}

// expectData reads one message and requires it to be DATA, returning its
// payload.
func (c *syncChannel) expectData(step int) ([]byte, error) {
	msg, err := c.readMessage(step)
	if err != nil {
 return nil, err
	}
	if msg.Tag != syncData {
 return nil, newChannelError(step, fmt.Sprintf("unexpected tag %s, wanted DATA", msg.Tag), nil)
	}
	return msg.Payload, nil
}

// expectSignal reads one message and requires it to carry exactly the given
// tag (used for the handshake-specific signals, which carry no payload and
// need no application-level ack).
func (c *syncChannel) expectSignal(step int, want syncTag) error {
	msg, err := c.readMessage(step)
	if err != nil {
 return err
	}
	if msg.Tag != want {
 return newChannelError(step, fmt.Sprintf("unexpected tag %s, wanted %s", msg.Tag, want), nil)
	}
	return nil
}

// sendSignal writes a bare signal frame with no payload.
func (c *syncChannel) sendSignal(step int, tag syncTag) error {
	return c.writeMessage(step, tag, nil)
}

// fdChannel is a tag-framed channel like syncChannel, but backed by a real
// AF_UNIX SOCK_STREAM socket rather than a pipe, so it can additionally carry
// a file descriptor as SCM_RIGHTS ancillary data. The main sync channel's
// pipes cannot carry ancillary data at all, hence this separate "sidecar"
// channel used only for the console master fd handoff.
type fdChannel struct {
	f *os.File
}

func newFdChannel(f *os.File) *fdChannel {
	return &fdChannel{f: f}
}

// sendFd sends a tag-framed header together with fd as SCM_RIGHTS ancillary
// data in a single sendmsg call: on a SOCK_STREAM socket, a control message
// is associated with the data of the same send call, not with a logical
// message, so header and rights must travel together.
func (c *fdChannel) sendFd(step int, tag syncTag, fd int) error {
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(tag))
	binary.BigEndian.PutUint32(hdr[4:8], 0)
	rights := syscall.UnixRights(fd)
	if err := syscall.Sendmsg(int(c.f.Fd()), hdr[:], rights, nil, 0); err != nil {
 return newChannelError(step, "sending fd over console sidecar channel", err)
	}
	return nil
}

// recvFd reads a tag-framed header together with at most one ancillary file
// descriptor. The returned *os.File is nil if the sender's frame carried no
// rights (a bare signal on this same channel).
func (c *fdChannel) recvFd(step int, name string) (syncTag, *os.File, error) {
	hdr := make([]byte, 8)
	oob := make([]byte, syscall.CmsgSpace(4))
	n, oobn, _, _, err := syscall.Recvmsg(int(c.f.Fd()), hdr, oob, 0)
	if err != nil {
 return 0, nil, newChannelError(step, "receiving fd over console sidecar channel", err)
	}
	if n != len(hdr) {
 return 0, nil, newChannelError(step, fmt.Sprintf("short header read: %d of %d bytes", n, len(hdr)), nil)
	}
	tag := syncTag(binary.BigEndian.Uint32(hdr[0:4]))
	if oobn == 0 {
 return tag, nil, nil
	}
	cmsgs, err := syscall.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
 return 0, nil, newChannelError(step, "parsing console sidecar control message", err)
	}
	fds, err := syscall.ParseUnixRights(&cmsgs[0])
	if err != nil || len(fds) == 0 {
 return 0, nil, newChannelError(step, "parsing console sidecar unix rights", err)
	}
	return tag, os.NewFile(uintptr(fds[0]), name), nil
}
