package dispatch

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/plist"
)

// filenameToComponent maps a manifest text file's bare filenames to
// their build-identity component names, for archives that ship an
// explicit NOR firmware-file list.
var filenameToComponent = map[string]string{
	"LLB":          "LLB",
	"iBoot":        "iBoot",
	"iBEC":         "iBEC",
	"iBSS":         "iBSS",
	"DeviceTree":   "DeviceTree",
	"applelogo":    "AppleLogo",
	"recoverymode": "RecoveryMode",
}

// norFirmwareFiles resolves the set of NOR component names: a manifest
// text file alongside LLB if present, otherwise every manifest entry
// flagged as a firmware payload (directly, or indirectly via
// IsSecondaryFirmwarePayload+IsLoadedByiBoot).
func (d *Dispatcher) norFirmwareFiles(llbPath string) ([]string, error) {
	if manifestPath := manifestFileNextTo(llbPath); manifestPath != "" && d.Ctx.Archive.FileExists(manifestPath) {
		data, err := d.Ctx.Archive.ExtractToMemory(manifestPath)
		if err != nil {
			return nil, fmt.Errorf("dispatch: read NOR manifest %s: %w", manifestPath, err)
		}
		var names []string
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if name, ok := filenameToComponent[line]; ok {
				names = append(names, name)
			}
		}
		return names, nil
	}

	return d.Ctx.Identity.ComponentsWhere(func(i buildid.ComponentInfo) bool {
		return i.IsFirmwarePayload || (i.IsSecondaryFirmwarePayload && i.IsLoadedByiBoot)
	}), nil
}

func manifestFileNextTo(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "manifest"
	}
	return path[:idx+1] + "manifest"
}

// replyNORData sends LLB separately from the NOR list, RestoreSEP/SEP
// under their own keys, and leads the array form with the iBoot-named
// component, if any.
func (d *Dispatcher) replyNORData(msg device.MessageEnvelope) error {
	llbPath, ok := d.Ctx.Identity.Path("LLB")
	if !ok {
		return fmt.Errorf("dispatch: NORData: build identity has no LLB component")
	}

	names, err := d.norFirmwareFiles(llbPath)
	if err != nil {
		return err
	}

	llb, err := d.Ctx.Loader.LoadPersonalized("LLB", d.Ctx.Ticket, d.Ctx.Identity)
	if err != nil {
		return fmt.Errorf("dispatch: NORData: LLB: %w", err)
	}

	reply := plist.Dict{"LlbImageData": llb}

	flashVersion1, _ := msg.Args.Bool("FlashVersion1")

	var norMap plist.Dict
	var norArray []any
	var iBootEntry any
	if flashVersion1 {
		norMap = plist.Dict{}
	}

	for _, name := range names {
		if name == "LLB" || name == "RestoreSEP" {
			continue
		}
		payload, err := d.Ctx.Loader.LoadPersonalized(name, d.Ctx.Ticket, d.Ctx.Identity)
		if err != nil {
			return fmt.Errorf("dispatch: NORData: %s: %w", name, err)
		}
		if flashVersion1 {
			norMap[name] = payload
			continue
		}
		if strings.HasPrefix(name, "iBoot") && iBootEntry == nil {
			iBootEntry = payload
			continue
		}
		norArray = append(norArray, payload)
	}

	if flashVersion1 {
		reply["NorImageData"] = norMap
	} else {
		if iBootEntry != nil {
			norArray = append([]any{iBootEntry}, norArray...)
		}
		reply["NorImageData"] = norArray
	}

	if _, ok := d.Ctx.Identity.Component("RestoreSEP"); ok {
		sep, err := d.Ctx.Loader.LoadPersonalized("RestoreSEP", d.Ctx.Ticket, d.Ctx.Identity)
		if err != nil {
			return fmt.Errorf("dispatch: NORData: RestoreSEP: %w", err)
		}
		reply["RestoreSEPImageData"] = sep
	}
	if _, ok := d.Ctx.Identity.Component("SEP"); ok {
		sep, err := d.Ctx.Loader.LoadPersonalized("SEP", d.Ctx.Ticket, d.Ctx.Identity)
		if err != nil {
			return fmt.Errorf("dispatch: NORData: SEP: %w", err)
		}
		reply["SEPImageData"] = sep
	}

	return d.Transport.Send(reply)
}
