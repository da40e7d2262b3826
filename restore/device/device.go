// Package device defines the interface to the restore daemon transport:
// discovery/pairing and plist-framed RPC are external collaborators;
// this package only describes the contract the session orchestrator and
// dispatcher drive, plus the MessageEnvelope shape every inbound message
// is decoded into.
package device

import (
	"errors"

	"github.com/restored-go/restored/restore/plist"
)

// ErrTimeout is returned by Transport.Receive when no message arrived
// within the transport's timeout. A single receive timeout is benign;
// callers loop and receive again.
var ErrTimeout = errors.New("device: receive timeout")

// Transport is the plist-framed RPC channel to com.apple.mobile.restored.
type Transport interface {
	// Open (re)discovers and connects to the device identified by udid.
	Open(udid string) error
	// QueryType reports the connected service's name and protocol version.
	QueryType() (serviceName string, protocolVersion uint64, err error)
	// Send writes a dictionary to the device.
	Send(d plist.Dict) error
	// Receive blocks for the next inbound message, or returns ErrTimeout.
	Receive() (plist.Dict, error)
	// StartRestore emits the start-restore options dictionary.
	StartRestore(options plist.Dict, protocolVersion uint64) error
	// Reboot asks the device to leave restore mode.
	Reboot() error
	Close() error
}

// SecondaryConnector opens an additional data connection to the port the
// device specified in a DataRequestMsg (e.g. BootabilityBundle, or a
// firmware updater's output stream). Connect retries: 10 attempts, 1s
// apart.
type SecondaryConnector interface {
	Connect(port uint16) (ReadWriteCloser, error)
}

// ReadWriteCloser is the minimal surface a secondary connection exposes.
type ReadWriteCloser interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// MessageEnvelope is the decoded shape of every message the device
// sends: a MsgType tag, its argument dictionary, and — for a handful of
// message types — a secondary DataPort.
type MessageEnvelope struct {
	MsgType  string
	Args     plist.Dict
	DataPort uint16
}

// Envelope decodes d into a MessageEnvelope. d itself is retained as
// Args so handlers can read message-type-specific fields directly.
func Envelope(d plist.Dict) MessageEnvelope {
	msgType, _ := d.String("MsgType")
	var port uint16
	if p, ok := d.Int("DataPort"); ok {
		port = uint16(p)
	}
	return MessageEnvelope{MsgType: msgType, Args: d, DataPort: port}
}
