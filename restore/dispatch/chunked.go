package dispatch

import (
	"fmt"

	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/plist"
)

const fileDataChunkSize = 8192

// streamChunks writes payload to the transport as a sequence of
// FileData messages, each at most fileDataChunkSize bytes, followed by a
// single terminating FileDataDone=true message. No other reply may be
// interleaved between these; a multi-chunk reply is atomic.
func (d *Dispatcher) streamChunks(payload []byte) error {
	for off := 0; off < len(payload); off += fileDataChunkSize {
		end := off + fileDataChunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := d.Transport.Send(plist.Dict{"FileData": payload[off:end]}); err != nil {
			return fmt.Errorf("dispatch: send FileData chunk at offset %d: %w", off, err)
		}
	}
	return d.Transport.Send(plist.Dict{"FileDataDone": true})
}

// streamBootObject answers PersonalizedBootObjectV3 (personalized=true)
// and SourceBootObjectV4 (personalized=false), including the three
// pseudo-component names the V3/V4 framing supports.
func (d *Dispatcher) streamBootObject(msg device.MessageEnvelope, personalized bool) error {
	name, ok := msg.Args.String("ImageName")
	if !ok || name == "" {
		return fmt.Errorf("dispatch: boot object request has no ImageName")
	}

	switch name {
	case "__GlobalManifest__", "__RestoreVersion__", "__SystemVersion__":
		path, err := d.pseudoComponentPath(name)
		if err != nil {
			return fmt.Errorf("dispatch: %s: %w", name, err)
		}
		payload, err := d.Ctx.Archive.ExtractToMemory(path)
		if err != nil {
			return fmt.Errorf("dispatch: %s: %w", name, err)
		}
		return d.streamChunks(payload)
	}

	var payload []byte
	var err error
	if personalized {
		payload, err = d.Ctx.Loader.LoadPersonalized(name, d.Ctx.Ticket, d.Ctx.Identity)
	} else {
		payload, err = d.Ctx.Loader.LoadRaw(name, d.Ctx.Ticket, d.Ctx.Identity)
	}
	if err != nil {
		return fmt.Errorf("dispatch: boot object %s: %w", name, err)
	}
	return d.streamChunks(payload)
}

// pseudoComponentPath maps the V3/V4 framing's pseudo-component names to
// their archive paths; these aren't build-identity manifest entries.
// __GlobalManifest__ is the per-device-class apticket manifest living
// under Firmware/Manifests/restore/<macos variant>/, mirroring
// extract_global_manifest's ticket_path construction.
func (d *Dispatcher) pseudoComponentPath(name string) (string, error) {
	switch name {
	case "__GlobalManifest__":
		deviceClass := d.Ctx.Identity.Info.DeviceClass
		if deviceClass == "" {
			return "", fmt.Errorf("build identity has no Info.DeviceClass")
		}
		macosVariant := d.Ctx.Identity.Info.MacOSVariant
		if macosVariant == "" {
			return "", fmt.Errorf("build identity has no Info.MacOSVariant")
		}
		return fmt.Sprintf("Firmware/Manifests/restore/%s/apticket.%s.im4m", macosVariant, deviceClass), nil
	case "__RestoreVersion__":
		return "RestoreVersion.plist", nil
	case "__SystemVersion__":
		return "SystemVersion.plist", nil
	default:
		return name, nil
	}
}
