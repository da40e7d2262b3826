package fwupdater

import (
	"fmt"

	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// veridianAdapter handles the Veridian battery-management co-processor.
// Its component is a property list describing a firmware map, which gets
// a digest stamped in before being re-serialized as a binary plist.
type veridianAdapter struct{}

func (veridianAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddVeridianTags(params, info)
	return params
}

func (veridianAdapter) TicketKey(plist.Dict) string { return "BMU,Ticket" }

func (veridianAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	return "BMU,FirmwareMap", nil
}

func (veridianAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	fwMap, err := plist.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("parse %s as plist: %w", name, err)
	}
	entry, ok := ctx.Identity.Component(name)
	if !ok {
		return nil, fmt.Errorf("unable to get digest for %s component", name)
	}
	fwMap["fw_map_digest"] = entry.Digest
	return plist.ToBinary(fwMap)
}
