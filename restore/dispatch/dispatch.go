// Package dispatch maps an inbound DataRequestMsg to its handler and
// produces the reply the device expects. It is the message pump's
// worker: the orchestrator (restore/session) owns the receive loop and
// hands each message to a Dispatcher.
package dispatch

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/asr"
	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/component"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/fwupdater"
	"github.com/restored-go/restored/restore/ipsw"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tss"
)

// Context is the session state a Dispatcher needs to answer every
// DataRequestMsg. Tickets are cached here exactly once: handlers read
// them after the first successful acquisition.
type Context struct {
	Identity        buildid.BuildIdentity
	Variant         string // e.g. "Erase", "Update"; echoed in BuildIdentityDict replies
	Archive         ipsw.Archive
	Loader          *component.Loader
	TSSClient       tss.Client
	TSSURL          string
	ECID            uint64
	Image4Supported bool

	Ticket            plist.Dict // the main "tss" ticket
	RootTicketData    []byte     // explicit root-ticket override, if any
	RecoveryOSTicket  plist.Dict
	LocalPolicyTicket plist.Dict
	LPolFile          []byte // overrides lpol.Template for RecoveryOSLocalPolicy, if set

	BasebandTicket plist.Dict // cached "bbtss"; written at most once

	// SystemImagePath and RecoveryOSImagePath name the on-disk images the
	// orchestrator staged for SystemImageData/RecoveryOSASRImage ASR
	// handoff.
	SystemImagePath     string
	RecoveryOSImagePath string

	// UpdaterOutputPath names a location for updater_output-<udid>.cpio.
	// No handler in this package reads it; BasebandUpdaterOutputData
	// records are persisted by restore/session's UseUpdaterOutput.
	UpdaterOutputPath string

	IgnoreErrors bool

	FWUpdaters fwupdater.Context
}

// Dispatcher answers DataRequestMsg and FirmwareUpdaterData messages
// against a Context, writing replies to Transport.
type Dispatcher struct {
	Ctx                *Context
	Transport          device.Transport
	SecondaryConnector device.SecondaryConnector
	ASR                asr.Streamer
}

// HandleDataRequest routes msg.Args by its DataType to the matching
// handler. Unknown types are logged and ignored (non-fatal, per §4.2).
func (d *Dispatcher) HandleDataRequest(msg device.MessageEnvelope) error {
	dataType, _ := msg.Args.String("DataType")
	switch dataType {
	case "SystemImageData", "RecoveryOSASRImage":
		return d.streamFilesystem(msg)
	case "BuildIdentityDict":
		return d.replyBuildIdentity(msg)
	case "PersonalizedBootObjectV3":
		return d.streamBootObject(msg, true)
	case "SourceBootObjectV4":
		return d.streamBootObject(msg, false)
	case "RecoveryOSLocalPolicy":
		return d.replyRecoveryOSLocalPolicy(msg)
	case "RootTicket":
		return d.replyRootTicket(msg)
	case "RecoveryOSRootTicketData":
		return d.replyRecoveryOSRootTicket(msg)
	case "KernelCache":
		return d.replySingleComponent(msg, "KernelCache", "KernelCacheFile")
	case "DeviceTree":
		return d.replySingleComponent(msg, "DeviceTree", "DeviceTreeFile")
	case "SystemImageRootHash":
		return d.replySingleComponent(msg, "SystemVolume", "SystemImageRootHashFile")
	case "SystemImageCanonicalMetadata":
		return d.replySingleComponent(msg, "Ap,SystemVolumeCanonicalMetadata", "SystemImageCanonicalMetadataFile")
	case "NORData":
		return d.replyNORData(msg)
	case "BasebandData":
		return d.replyBasebandData(msg)
	case "FDRTrustData":
		return d.Transport.Send(plist.Dict{})
	case "FUDData":
		return d.replyImageFamily(msg, "FUDImageList", "IsFUDFirmware", "FUDImageData")
	case "PersonalizedData":
		return d.replyImageFamily(msg, "ImageList", "IsFirmwarePayload", "ImageData")
	case "EANData":
		return d.replyImageFamily(msg, "EANImageList", "IsEarlyAccessFirmware", "EANImageData")
	case "FirmwareUpdaterData":
		return d.replyFirmwareUpdater(msg)
	case "BootabilityBundle":
		return d.streamBootabilityBundle(msg)
	default:
		log.Infof("dispatch: unrecognized DataType %q, ignoring", dataType)
		return nil
	}
}

func (d *Dispatcher) tssURL() string { return d.Ctx.TSSURL }

func (d *Dispatcher) replyBuildIdentity(msg device.MessageEnvelope) error {
	variant, ok := msg.Args.String("Variant")
	if !ok || variant == "" {
		variant = d.Ctx.Variant
		if variant == "" {
			variant = "Erase"
		}
	}
	return d.Transport.Send(plist.Dict{
		"BuildIdentityDict": d.Ctx.Identity,
		"Variant":           variant,
	})
}

func (d *Dispatcher) replyRootTicket(msg device.MessageEnvelope) error {
	if len(d.Ctx.RootTicketData) > 0 {
		return d.Transport.Send(plist.Dict{"RootTicketData": d.Ctx.RootTicketData})
	}
	if v, ok := d.Ctx.Ticket.Data("ApImg4Ticket"); ok {
		return d.Transport.Send(plist.Dict{"RootTicketData": v})
	}
	if v, ok := d.Ctx.Ticket.Data("APTicket"); ok {
		return d.Transport.Send(plist.Dict{"RootTicketData": v})
	}
	return fmt.Errorf("dispatch: RootTicket: no explicit root ticket and no ApImg4Ticket/APTicket in tss")
}

func (d *Dispatcher) replyRecoveryOSRootTicket(msg device.MessageEnvelope) error {
	if v, ok := d.Ctx.RecoveryOSTicket.Data("RecoveryOSRootTicketData"); ok {
		return d.Transport.Send(plist.Dict{"RecoveryOSRootTicketData": v})
	}
	if v, ok := d.Ctx.RecoveryOSTicket.Data("RootTicketData"); ok {
		return d.Transport.Send(plist.Dict{"RecoveryOSRootTicketData": v})
	}
	return fmt.Errorf("dispatch: RecoveryOSRootTicketData: no ticket data in recovery-os ticket")
}
