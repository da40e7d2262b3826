package fwupdater

import (
	"encoding/binary"

	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// savageAdapter handles the Savage touch co-processor. Its firmware
// payload is prefixed with a 16-byte header carrying the original size.
type savageAdapter struct{}

func (savageAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddSavageTags(params, info)
	return params
}

func (savageAdapter) TicketKey(plist.Dict) string { return "Savage,Ticket" }

func (savageAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	return tssrequest.SavageComponentName(info), nil
}

func (savageAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	out := make([]byte, 16+len(payload))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(payload)))
	copy(out[16:], payload)
	return out, nil
}

// yonkersAdapter is Savage's successor chip; it wraps the payload as a
// dictionary instead of prefixing a header.
type yonkersAdapter struct{}

func (yonkersAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddYonkersTags(params, info)
	return params
}

func (yonkersAdapter) TicketKey(plist.Dict) string { return "Yonkers,Ticket" }

func (yonkersAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	return tssrequest.YonkersComponentName(info), nil
}

func (yonkersAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	return plist.Dict{"YonkersFirmware": payload}, nil
}
