package fwupdater

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// seAdapter handles the Secure Element co-processor. The firmware
// payload is sent as-is; only the component name depends on the chip.
type seAdapter struct{}

func (seAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	mergeInfo(params, info)
	chipID, _ := info.Int("SE,ChipID")
	tssrequest.AddSETags(params, uint64(chipID))
	return params
}

func (seAdapter) TicketKey(plist.Dict) string { return "SE,Ticket" }

func (seAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	chipID, _ := info.Int("SE,ChipID")
	switch chipID {
	case 0x20211:
		return "SE,Firmware", nil
	case 0x73, 0x64, 0xC8, 0xD2:
		return "SE,UpdatePayload", nil
	default:
		log.Warnf("fwupdater: unknown SE,ChipID %#x detected, restore might fail", chipID)
		if _, ok := ctx.Identity.Component("SE,UpdatePayload"); ok {
			return "SE,UpdatePayload", nil
		}
		if _, ok := ctx.Identity.Component("SE,Firmware"); ok {
			return "SE,Firmware", nil
		}
		return "", fmt.Errorf("neither SE,Firmware nor SE,UpdatePayload found in build identity")
	}
}

func (seAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	return payload, nil
}
