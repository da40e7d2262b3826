// Package tssrequest assembles TSS parameter dictionaries: a common base
// copied from a build identity's manifest, plus family-specific "tag
// adder" primitives for each co-processor and for the baseband —
// common tags, baseband tags, SE tags, savage tags, yonkers tags,
// rose tags, veridian tags, tcon tags, and timer tags.
package tssrequest

import (
	"fmt"
	"strings"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tss"
)

// CommonParams copies every manifest entry's digest into a fresh TSS
// parameter dictionary and sets the device's ECID, the base every
// family-specific request builds on.
func CommonParams(identity buildid.BuildIdentity, ecid uint64) plist.Dict {
	params := plist.Dict{
		"ApECID": ecid,
	}
	for name, entry := range identity.Manifest {
		if len(entry.Digest) == 0 {
			continue
		}
		params[name] = plist.Dict{
			"Digest":  entry.Digest,
			"Trusted": true,
		}
	}
	return params
}

// AddProductionModeTags sets the ApProductionMode/ApSecurityMode/
// ApSupportsImg4 triple the Rose and Timer adapters require.
func AddProductionModeTags(params plist.Dict, image4Supported bool) {
	params["ApProductionMode"] = true
	params["ApSecurityMode"] = image4Supported
	params["ApSupportsImg4"] = image4Supported
}

// AddBasebandTags adds the baseband-specific identifiers to params.
// ChipID and CertID arrive from the device as PLIST_UINT and
// ChipSerialNo as PLIST_DATA; callers must decode them as such before
// calling this, not as strings. When fdrSupport is set (per the build
// identity's Info.FDRSupport), the production-mode/security-mode pair
// is added too.
func AddBasebandTags(params plist.Dict, chipID, certID uint64, chipSerialNo, nonce []byte, fdrSupport bool) {
	params["BbChipID"] = chipID
	params["BbGoldCertId"] = certID
	params["BbSNUM"] = chipSerialNo
	params["BbNonce"] = nonce
	if fdrSupport {
		params["ApProductionMode"] = true
		params["ApSecurityMode"] = true
	}
}

// AddSETags adds the Secure Element chip identifier.
func AddSETags(params plist.Dict, chipID uint64) {
	params["SE,ChipID"] = chipID
}

// AddSavageTags merges only the Savage,* keys from info into params;
// MessageArgInfo also carries the adapter-selection marker
// "YonkersDeviceInfo" alongside them, which has no place in a TSS
// request and must not be forwarded.
func AddSavageTags(params plist.Dict, info plist.Dict) {
	mergePrefixed(params, info, "Savage,")
}

// SavageComponentName resolves the build-identity component this
// Savage request personalizes, mirroring tss_request_add_savage_tags's
// comp_name out-parameter.
func SavageComponentName(info plist.Dict) string {
	return "Savage,Firmware"
}

// AddYonkersTags merges only the Yonkers,* keys from info into params.
func AddYonkersTags(params plist.Dict, info plist.Dict) {
	mergePrefixed(params, info, "Yonkers,")
}

// YonkersComponentName resolves the build-identity component this
// Yonkers request personalizes, mirroring tss_request_add_yonkers_tags's
// comp_name out-parameter.
func YonkersComponentName(info plist.Dict) string {
	return "Yonkers,Firmware"
}

// AddRoseTags merges only the Rap,* keys from info into params.
func AddRoseTags(params plist.Dict, info plist.Dict) {
	mergePrefixed(params, info, "Rap,")
}

// AddVeridianTags merges only the BMU,* keys from info into params.
func AddVeridianTags(params plist.Dict, info plist.Dict) {
	mergePrefixed(params, info, "BMU,")
}

// AddTCONTags merges only the Baobab,* keys from info into params.
func AddTCONTags(params plist.Dict, info plist.Dict) {
	mergePrefixed(params, info, "Baobab,")
}

// AddLocalPolicyTags merges a RecoveryOSLocalPolicy request's Arguments
// dict wholesale into params. restore.c:3476 hands this dict straight
// to get_recovery_os_local_policy_tss_response without any field-level
// filtering visible in restore.c itself — that function's body lives
// outside restore.c and isn't available to ground a narrower copy, so
// this follows the same blind-copy shape as mergeInfo rather than
// guess at a prefix.
func AddLocalPolicyTags(params, args plist.Dict) {
	for k, v := range args {
		params[k] = v
	}
}

// AddTimerTags merges the Timer,* keys from info into params and mines
// info's HardwareID entry into the tagged Timer,<Field>,<tag> keys the
// device expects.
func AddTimerTags(params plist.Dict, info plist.Dict, tag uint32) {
	mergePrefixed(params, info, "Timer,")

	infoArray, ok := info.Array("InfoArray")
	if !ok || len(infoArray) == 0 {
		return
	}
	first, ok := infoArray[0].(plist.Dict)
	if !ok {
		return
	}
	hw, ok := first.Dict("HardwareID")
	if !ok {
		return
	}

	set := func(field, key string) {
		if v, ok := hw[key]; ok {
			params[fmt.Sprintf("Timer,%s,%d", field, tag)] = v
		}
	}
	set("ChipID", "ChipID")
	set("BoardID", "BoardID")
	set("ECID", "ECID")
	set("Nonce", "Nonce")
	set("SecurityMode", "SecurityMode")
	set("SecurityDomain", "SecurityDomain")
	set("ProductionMode", "ProductionStatus")
}

// mergePrefixed copies only the keys of info that carry prefix into
// params; info carries per-family tags already namespaced by the
// device (e.g. "Savage,FDR") plus markers meant for this package's own
// adapter-selection logic, not for the TSS request.
func mergePrefixed(params, info plist.Dict, prefix string) {
	for k, v := range info {
		if strings.HasPrefix(k, prefix) {
			params[k] = v
		}
	}
}

// Send sends params to url via client and returns the ticket dictionary.
func Send(client tss.Client, params plist.Dict, url string) (plist.Dict, error) {
	resp, err := client.RequestSend(params, url)
	if err != nil {
		return nil, fmt.Errorf("tssrequest: send: %w", err)
	}
	return resp, nil
}
