package session

import (
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/dispatch"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/progress"
)

// supportedDataTypes and supportedMessageTypes are the capability lists
// advertised in the start-restore options dictionary. They mirror the
// set of DataRequestMsg/MsgType values this engine's dispatcher handles.
var (
	supportedDataTypes = []string{
		"SystemImageData", "RecoveryOSASRImage", "BuildIdentityDict",
		"PersonalizedBootObjectV3", "SourceBootObjectV4", "RecoveryOSLocalPolicy",
		"RootTicket", "RecoveryOSRootTicketData", "KernelCache", "DeviceTree",
		"SystemImageRootHash", "SystemImageCanonicalMetadata", "NORData",
		"BasebandData", "FDRTrustData", "FUDData", "PersonalizedData",
		"EANData", "FirmwareUpdaterData", "BootabilityBundle",
	}
	supportedMessageTypes = []string{
		"DataRequestMsg", "ProgressMsg", "StatusMsg", "CheckpointMsg",
		"PreviousRestoreLogMsg", "BBUpdateStatusMsg", "BasebandUpdaterOutputData",
	}
)

// statusFinished is the StatusMsg code that signals terminal success.
const statusFinished = 0

// ErrRestoreFailed wraps a non-zero terminal StatusMsg code.
var ErrRestoreFailed = errors.New("session: restore reported failure status")

// Orchestrator drives one restore-mode session end to end: handshake,
// start-restore, then the receive/dispatch loop.
type Orchestrator struct {
	UDID    string
	Variant string

	Transport  device.Transport
	Dispatcher *dispatch.Dispatcher

	Progress *progress.Tracker

	IgnoreErrors bool

	// updaterOutput, if set by UseUpdaterOutput, receives BasebandUpdaterOutputData
	// records as a CPIO-odc archive.
	updaterOutput *outputWriter

	quit     bool
	quitErr  error

	rebootObserved chan struct{}
}

// NewOrchestrator wires an Orchestrator around a handshaken transport and
// a Dispatcher whose Context already carries the session's build
// identity, tickets, and loader.
func NewOrchestrator(udid, variant string, transport device.Transport, d *dispatch.Dispatcher) *Orchestrator {
	return &Orchestrator{
		UDID:           udid,
		Variant:        variant,
		Transport:      transport,
		Dispatcher:     d,
		rebootObserved: make(chan struct{}, 1),
	}
}

// Handshake opens the transport, verifies the restore daemon's service
// type, and records the negotiated protocol version. If the
// main ticket carries a BBTicket, it is copied into the dispatcher's
// baseband-ticket cache so the first BasebandData visit doesn't redo a
// TSS round trip the session already has the answer for.
func (o *Orchestrator) Handshake() (protocolVersion uint64, err error) {
	if err := o.Transport.Open(o.UDID); err != nil {
		return 0, fmt.Errorf("session: open transport: %w", err)
	}
	serviceName, version, err := o.Transport.QueryType()
	if err != nil {
		return 0, fmt.Errorf("session: query_type: %w", err)
	}
	if serviceName != "com.apple.mobile.restored" {
		return 0, fmt.Errorf("session: unexpected service type %q", serviceName)
	}
	o.Progress = progress.NewTracker(version)

	if blob, ok := o.Dispatcher.Ctx.Ticket.Data("BBTicket"); ok {
		if o.Dispatcher.Ctx.BasebandTicket == nil {
			o.Dispatcher.Ctx.BasebandTicket = plist.Dict{"BasebandFirmware": plist.Dict{"BBTicket": blob}}
		}
	}

	log.Infof("session: %s: handshake complete, protocol version %d", o.UDID, version)
	return version, nil
}

// StartRestore emits the start-restore options dictionary and tells the
// transport to enter restore mode.
func (o *Orchestrator) StartRestore(protocolVersion uint64, tz0Capacity int64) error {
	opts := StartOptions(o.Dispatcher.Ctx.Identity, o.Variant, supportedDataTypes, supportedMessageTypes, tz0Capacity)
	if err := o.Transport.StartRestore(opts, protocolVersion); err != nil {
		return fmt.Errorf("session: start_restore: %w", err)
	}
	return nil
}

// UseUpdaterOutput enables persistence of BasebandUpdaterOutputData
// records to a CPIO-odc file derived from udid, guarding against
// path-traversal in a caller-controlled udid.
func (o *Orchestrator) UseUpdaterOutput(dir string) error {
	w, err := newOutputWriter(dir, o.UDID)
	if err != nil {
		return err
	}
	o.updaterOutput = w
	return nil
}

// Run is the main loop: receive, dispatch, repeat until Quit is set.
// Cleanup (closing the updater-output file, if any) is unconditional.
func (o *Orchestrator) Run() error {
	defer o.close()

	for !o.quit {
		msg, err := o.Transport.Receive()
		if err != nil {
			if errors.Is(err, device.ErrTimeout) {
				continue
			}
			return fmt.Errorf("session: receive: %w", err)
		}
		o.handle(device.Envelope(msg))
	}
	return o.quitErr
}

func (o *Orchestrator) handle(msg device.MessageEnvelope) {
	switch msg.MsgType {
	case "DataRequestMsg":
		if err := o.Dispatcher.HandleDataRequest(msg); err != nil {
			o.fail(err)
		}
	case "ProgressMsg":
		operation, _ := msg.Args.Int("Operation")
		percent, _ := msg.Args.Int("Progress")
		if bucket, pct, ok := o.Progress.Handle(int(operation), int(percent)); ok {
			log.Debugf("session: progress bucket %d at %d%%", bucket, pct)
		}
	case "StatusMsg":
		o.handleStatus(msg)
	case "CheckpointMsg":
		name, _ := msg.Args.String("CheckpointName")
		log.Infof("session: checkpoint %s", name)
	case "PreviousRestoreLogMsg":
		log.Infof("session: previous restore log: %v", msg.Args)
	case "BBUpdateStatusMsg":
		log.Infof("session: baseband update status: %v", msg.Args)
	case "BasebandUpdaterOutputData":
		o.handleUpdaterOutput(msg)
	default:
		log.Infof("session: unrecognized MsgType %q, ignoring", msg.MsgType)
	}
}

func (o *Orchestrator) handleStatus(msg device.MessageEnvelope) {
	code, _ := msg.Args.Int("Status")
	if code != statusFinished {
		log.Warnf("session: status %d", code)
		o.fail(fmt.Errorf("%w: status %d", ErrRestoreFailed, code))
		return
	}
	log.Infof("session: restore finished")
	if err := o.Transport.Send(plist.Dict{"MsgType": "ReceivedFinalStatusMsg"}); err != nil {
		log.Warnf("session: send ReceivedFinalStatusMsg: %v", err)
	}
	o.quit = true
}

func (o *Orchestrator) handleUpdaterOutput(msg device.MessageEnvelope) {
	if o.updaterOutput == nil {
		return
	}
	data, ok := msg.Args.Data("Output")
	if !ok {
		return
	}
	name, _ := msg.Args.String("Name")
	if name == "" {
		name = "output"
	}
	if err := o.updaterOutput.Write(name, data); err != nil {
		log.Warnf("session: write updater output: %v", err)
	}
}

// fail sets Quit unless IgnoreErrors masks the error.
func (o *Orchestrator) fail(err error) {
	if o.IgnoreErrors {
		log.Warnf("session: handler error ignored: %v", err)
		return
	}
	log.Errorf("session: fatal handler error: %v", err)
	o.quit = true
	o.quitErr = err
}

func (o *Orchestrator) close() {
	if o.updaterOutput != nil {
		if err := o.updaterOutput.Close(); err != nil {
			log.Warnf("session: close updater output: %v", err)
		}
	}
	if err := o.Transport.Close(); err != nil {
		log.Warnf("session: close transport: %v", err)
	}
}

// Reboot asks the device to leave restore mode and waits up to 30s for
// the external mode-change notifier to fire.
func (o *Orchestrator) Reboot() error {
	if err := o.Transport.Reboot(); err != nil {
		return fmt.Errorf("session: reboot: %w", err)
	}
	select {
	case <-o.rebootObserved:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("session: reboot: no mode-change notification within 30s")
	}
}

// ObserveReboot is called by the external mode-change notifier (outside
// this package's scope) to unblock a pending Reboot call.
func (o *Orchestrator) ObserveReboot() {
	select {
	case o.rebootObserved <- struct{}{}:
	default:
	}
}
