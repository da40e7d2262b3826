package dispatch

import (
	"fmt"
	"os"

	"github.com/restored-go/restored/restore/baseband"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// replyBasebandData acquires the bbtss ticket once, caches it on the
// Context, and reuses it for every later visit.
func (d *Dispatcher) replyBasebandData(msg device.MessageEnvelope) error {
	nonce, _ := msg.Args.Data("Nonce")

	if d.Ctx.BasebandTicket == nil && len(nonce) > 0 {
		chipID, _ := msg.Args.Int("ChipID")
		certID, _ := msg.Args.Int("CertID")
		chipSerialNo, _ := msg.Args.Data("ChipSerialNo")

		params := tssrequest.CommonParams(d.Ctx.Identity, d.Ctx.ECID)
		tssrequest.AddBasebandTags(params, uint64(chipID), uint64(certID), chipSerialNo, nonce, d.Ctx.Identity.Info.FDRSupport)

		response, err := tssrequest.Send(d.Ctx.TSSClient, params, d.Ctx.TSSURL)
		if err != nil {
			return fmt.Errorf("dispatch: BasebandData: tss: %w", err)
		}
		d.Ctx.BasebandTicket = response
	}

	if d.Ctx.BasebandTicket == nil {
		return fmt.Errorf("dispatch: BasebandData: no cached bbtss and no nonce to acquire one")
	}

	entry, ok := d.Ctx.Identity.Component("BasebandFirmware")
	if !ok || entry.Info.Path == "" {
		return fmt.Errorf("dispatch: BasebandData: build identity has no BasebandFirmware component")
	}

	tmp, err := os.CreateTemp("", "baseband-*.zip")
	if err != nil {
		return fmt.Errorf("dispatch: BasebandData: create tempfile: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := d.Ctx.Archive.ExtractToFile(entry.Info.Path, tmpPath); err != nil {
		tmp.Close()
		return fmt.Errorf("dispatch: BasebandData: extract %s: %w", entry.Info.Path, err)
	}
	tmp.Close()

	if err := baseband.Sign(tmpPath, d.Ctx.BasebandTicket, nonce); err != nil {
		return fmt.Errorf("dispatch: BasebandData: sign: %w", err)
	}

	signed, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("dispatch: BasebandData: read signed zip: %w", err)
	}

	return d.Transport.Send(plist.Dict{"BasebandData": signed})
}
