package dispatch

import (
	"fmt"

	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/fwupdater"
	"github.com/restored-go/restored/restore/plist"
)

// replyFirmwareUpdater routes a FirmwareUpdaterData request to the
// matching co-processor adapter and forwards its reply.
func (d *Dispatcher) replyFirmwareUpdater(msg device.MessageEnvelope) error {
	updaterName, ok := msg.Args.String("MessageArgUpdaterName")
	if !ok || updaterName == "" {
		return fmt.Errorf("dispatch: FirmwareUpdaterData: no MessageArgUpdaterName")
	}
	info, _ := msg.Args.Dict("MessageArgInfo")
	if info == nil {
		info = plist.Dict{}
	}

	reply, err := fwupdater.Dispatch(d.Ctx.FWUpdaters, d.Ctx.TSSClient, d.Ctx.TSSURL, updaterName, info)
	if err != nil {
		return fmt.Errorf("dispatch: FirmwareUpdaterData: %w", err)
	}
	return d.Transport.Send(reply)
}
