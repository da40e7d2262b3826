package dispatch

import (
	"fmt"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/lpol"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

// flagByTypeKey resolves a manifest flag name (as carried in a request's
// ImageType override, or the handler's default) to the ComponentInfo
// predicate it selects.
func flagByTypeKey(typeKey string) func(buildid.ComponentInfo) bool {
	switch typeKey {
	case "IsFUDFirmware":
		return func(i buildid.ComponentInfo) bool { return i.IsFUDFirmware }
	case "IsEarlyAccessFirmware":
		return func(i buildid.ComponentInfo) bool { return i.IsEarlyAccessFirmware }
	default: // "IsFirmwarePayload"
		return func(i buildid.ComponentInfo) bool { return i.IsFirmwarePayload }
	}
}

// replyImageFamily implements the shared image-family reply algorithm:
// FUDData, PersonalizedData and EANData all share this shape, differing
// only in which manifest flag selects their components and which
// dictionary keys frame the reply.
func (d *Dispatcher) replyImageFamily(msg device.MessageEnvelope, listKey, defaultTypeKey, dataKey string) error {
	typeKey := defaultTypeKey
	if t, ok := msg.Args.String("ImageType"); ok && t != "" {
		typeKey = t
	}
	pred := flagByTypeKey(typeKey)

	if listMode, ok := msg.Args.Bool(listKey); ok && listMode {
		names := d.Ctx.Identity.ComponentsWhere(pred)
		return d.Transport.Send(plist.Dict{listKey: toAnySlice(names)})
	}

	if name, ok := msg.Args.String("ImageName"); ok && name != "" {
		entry, ok := d.Ctx.Identity.Component(name)
		if !ok || !pred(entry.Info) {
			return fmt.Errorf("dispatch: %s: %q is not a %s component", dataKey, name, typeKey)
		}
		payload, err := d.Ctx.Loader.LoadPersonalized(name, d.Ctx.Ticket, d.Ctx.Identity)
		if err != nil {
			return fmt.Errorf("dispatch: %s: %w", dataKey, err)
		}
		return d.Transport.Send(plist.Dict{dataKey: payload, "ImageName": name})
	}

	names := d.Ctx.Identity.ComponentsWhere(pred)
	images := plist.Dict{}
	for _, name := range names {
		payload, err := d.Ctx.Loader.LoadPersonalized(name, d.Ctx.Ticket, d.Ctx.Identity)
		if err != nil {
			return fmt.Errorf("dispatch: %s: %s: %w", dataKey, name, err)
		}
		images[name] = payload
	}
	return d.Transport.Send(plist.Dict{dataKey: images})
}

func toAnySlice(names []string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}

// replySingleComponent answers a single named-component request (e.g.
// KernelCache, DeviceTree) with {<replyKey>: personalize(component)}.
func (d *Dispatcher) replySingleComponent(msg device.MessageEnvelope, componentName, replyKey string) error {
	payload, err := d.Ctx.Loader.LoadPersonalized(componentName, d.Ctx.Ticket, d.Ctx.Identity)
	if err != nil {
		return fmt.Errorf("dispatch: %s: %w", replyKey, err)
	}
	return d.Transport.Send(plist.Dict{replyKey: payload})
}

// replyRecoveryOSLocalPolicy acquires the tss_localpolicy ticket on
// first visit (from the message's own Arguments, exactly as
// restore_send_restore_local_policy does), caches it on the Context,
// then personalizes lpol_file against it on every visit.
func (d *Dispatcher) replyRecoveryOSLocalPolicy(msg device.MessageEnvelope) error {
	lpolFile := d.Ctx.LPolFile
	if len(lpolFile) == 0 {
		lpolFile = lpol.Template
	}

	if d.Ctx.LocalPolicyTicket == nil {
		args, _ := msg.Args.Dict("Arguments")

		params := tssrequest.CommonParams(d.Ctx.Identity, d.Ctx.ECID)
		tssrequest.AddLocalPolicyTags(params, args)

		response, err := tssrequest.Send(d.Ctx.TSSClient, params, d.Ctx.TSSURL)
		if err != nil {
			return fmt.Errorf("dispatch: RecoveryOSLocalPolicy: tss: %w", err)
		}
		d.Ctx.LocalPolicyTicket = response
	}

	personalized, err := d.Ctx.Loader.Personalize("Ap,LocalPolicy", lpolFile, d.Ctx.LocalPolicyTicket)
	if err != nil {
		return fmt.Errorf("dispatch: RecoveryOSLocalPolicy: personalize: %w", err)
	}
	return d.Transport.Send(plist.Dict{"Ap,LocalPolicy": personalized})
}
