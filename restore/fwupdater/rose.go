package fwupdater

import (
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// roseAdapter handles the Rose (Rap) baseband-adjacent co-processor: its
// firmware is an FTAB that may need a restore-variant 'rrko' entry
// spliced in.
type roseAdapter struct{}

func (roseAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddProductionModeTags(params, ctx.Image4Supported)
	tssrequest.AddRoseTags(params, info)
	return params
}

func (roseAdapter) TicketKey(plist.Dict) string { return "Rap,Ticket" }

func (roseAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	return "Rap,RTKitOS", nil
}

func (roseAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	return spliceRestoreRrko(ctx, payload, "Rap,RestoreRTKitOS")
}
