package fwupdater

import (
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// tconAdapter handles the AppleTCON (Baobab) co-processor. Its firmware is
// sent through unmodified.
type tconAdapter struct{}

func (tconAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddTCONTags(params, info)
	return params
}

func (tconAdapter) TicketKey(plist.Dict) string { return "Baobab,Ticket" }

func (tconAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	return "Baobab,TCON", nil
}

func (tconAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	return payload, nil
}
