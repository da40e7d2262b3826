// Package fwupdater dispatches FirmwareUpdaterData requests to the
// matching co-processor adapter (SE, Savage/Yonkers, Rose, Veridian,
// Baobab/TCON, Timer) and assembles the FirmwareResponseData reply.
//
// Each co-processor's three original functions (build TSS parameters,
// pick a component, post-process its bytes) collapse into one Adapter
// implementation; Dispatch drives every family through the same steps.
package fwupdater

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/ipsw"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tss"
	"github.com/restored-go/restored/restore/tssrequest"
)

// Context is the session state every adapter needs: a build identity to
// resolve component paths against, an archive to extract from, and the
// device identifiers common to every TSS request.
type Context struct {
	Identity        buildid.BuildIdentity
	Archive         ipsw.Archive
	ECID            uint64
	Image4Supported bool
}

// Adapter is one co-processor family's request/response shape.
type Adapter interface {
	// BuildParams assembles this family's TSS parameter dictionary.
	BuildParams(ctx Context, info plist.Dict) plist.Dict
	// TicketKey names the key the TSS response carries this family's
	// ticket under.
	TicketKey(info plist.Dict) string
	// ComponentName resolves which build-identity component to extract.
	ComponentName(ctx Context, info plist.Dict, response plist.Dict) (string, error)
	// PostProcess shapes the extracted component bytes into this
	// family's FirmwareData value (either raw bytes or a dictionary).
	PostProcess(ctx Context, info plist.Dict, response plist.Dict, name string, payload []byte) (any, error)
}

// Dispatch runs updaterName's adapter against info and returns the
// {FirmwareResponseData: {...}} reply dictionary.
func Dispatch(ctx Context, client tss.Client, tssURL string, updaterName string, info plist.Dict) (plist.Dict, error) {
	adapter, err := resolve(updaterName, info)
	if err != nil {
		return nil, err
	}

	params := adapter.BuildParams(ctx, info)
	response, err := tssrequest.Send(client, params, tssURL)
	if err != nil {
		return nil, fmt.Errorf("fwupdater: %s: %w", updaterName, err)
	}

	ticketKey := adapter.TicketKey(info)
	if !response.Has(ticketKey) {
		log.Warnf("fwupdater: %s: no %q in TSS response, this might not work", updaterName, ticketKey)
	} else {
		log.Infof("fwupdater: %s: received %s", updaterName, ticketKey)
	}

	name, err := adapter.ComponentName(ctx, info, response)
	if err != nil {
		return nil, fmt.Errorf("fwupdater: %s: %w", updaterName, err)
	}
	path, ok := ctx.Identity.Path(name)
	if !ok {
		return nil, fmt.Errorf("fwupdater: %s: component %q not in build identity", updaterName, name)
	}
	payload, err := ctx.Archive.ExtractToMemory(path)
	if err != nil {
		return nil, fmt.Errorf("fwupdater: %s: extract %s: %w", updaterName, path, err)
	}

	firmwareData, err := adapter.PostProcess(ctx, info, response, name, payload)
	if err != nil {
		return nil, fmt.Errorf("fwupdater: %s: post-process %s: %w", updaterName, name, err)
	}

	reply := plist.Dict{"FirmwareData": firmwareData}
	if v, ok := response[ticketKey]; ok {
		reply[ticketKey] = v
	}
	return plist.Dict{"FirmwareResponseData": reply}, nil
}

func resolve(updaterName string, info plist.Dict) (Adapter, error) {
	switch updaterName {
	case "SE":
		return seAdapter{}, nil
	case "Savage":
		if _, ok := info.Dict("YonkersDeviceInfo"); ok {
			return yonkersAdapter{}, nil
		}
		return savageAdapter{}, nil
	case "Rose":
		return roseAdapter{}, nil
	case "T200":
		return veridianAdapter{}, nil
	case "AppleTCON":
		return tconAdapter{}, nil
	case "AppleTypeCRetimer":
		return timerAdapter{}, nil
	default:
		return nil, fmt.Errorf("fwupdater: unknown updater %q", updaterName)
	}
}

// mergeInfo copies every key of info into params unchanged. SE has no
// family prefix to filter on, and Timer uses it for its nested APInfo
// dict (its top-level info still goes through AddTimerTags' Timer,*
// filter), so both bypass mergePrefixed's filtering for those dicts.
func mergeInfo(params, info plist.Dict) {
	for k, v := range info {
		params[k] = v
	}
}
