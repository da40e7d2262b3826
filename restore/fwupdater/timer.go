package fwupdater

import (
	"fmt"

	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// timerAdapter handles the AppleTypeCRetimer family, which can have
// several instances distinguished by a per-instance tag number carried
// in MessageArgInfo.InfoArray[0].
type timerAdapter struct{}

func timerTagAndTicketName(info plist.Dict) (uint32, string, error) {
	infoArray, ok := info.Array("InfoArray")
	if !ok || len(infoArray) == 0 {
		return 0, "", fmt.Errorf("no InfoArray in MessageArgInfo")
	}
	first, ok := infoArray[0].(plist.Dict)
	if !ok {
		return 0, "", fmt.Errorf("InfoArray[0] is not a dictionary")
	}
	tag, _ := first.Int("TagNumber")
	name, _ := first.String("TicketName")
	if name == "" {
		name = fmt.Sprintf("Timer,Ticket,%d", tag)
	}
	return uint32(tag), name, nil
}

func (timerAdapter) BuildParams(ctx Context, info plist.Dict) plist.Dict {
	params := tssrequest.CommonParams(ctx.Identity, ctx.ECID)
	tssrequest.AddProductionModeTags(params, ctx.Image4Supported)
	tag, _, _ := timerTagAndTicketName(info)
	params["TagNumber"] = tag
	if apInfo, ok := info.Dict("APInfo"); ok {
		mergeInfo(params, apInfo)
	}
	tssrequest.AddTimerTags(params, info, tag)
	return params
}

func (timerAdapter) TicketKey(info plist.Dict) string {
	_, ticketName, err := timerTagAndTicketName(info)
	if err != nil {
		return "Timer,Ticket"
	}
	return ticketName
}

func (timerAdapter) ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error) {
	tag, _, err := timerTagAndTicketName(info)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Timer,RTKitOS,%d", tag), nil
}

func (timerAdapter) PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error) {
	tag, _, err := timerTagAndTicketName(info)
	if err != nil {
		return nil, err
	}
	return spliceRestoreRrko(ctx, payload, fmt.Sprintf("Timer,RestoreRTKitOS,%d", tag))
}
