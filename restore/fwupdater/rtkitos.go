package fwupdater

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/ftab"
)

// spliceRestoreRrko parses primary as an FTAB (warning, not failing, if
// its overall tag isn't "rkos"), and — when the build identity carries a
// restoreComponentName component — parses that as an FTAB too and copies
// its 'rrko' entry into primary before serializing. This backs both the
// Rose and Timer RTKitOS adapters, which apply the identical splice
// against their own component pairs (Rap,RTKitOS/Rap,RestoreRTKitOS and
// Timer,RTKitOS,<tag>/Timer,RestoreRTKitOS,<tag>).
func spliceRestoreRrko(ctx Context, primaryPayload []byte, restoreComponentName string) ([]byte, error) {
	primary, err := ftab.Parse(primaryPayload)
	if err != nil {
		return nil, fmt.Errorf("parse primary ftab: %w", err)
	}
	if tag := primary.Tags(); len(tag) == 0 || primary.Tag != [4]byte{'r', 'k', 'o', 's'} {
		log.Warnf("fwupdater: unexpected ftab tag %q, expected \"rkos\"; continuing anyway", string(primary.Tag[:]))
	}

	restorePath, ok := ctx.Identity.Path(restoreComponentName)
	if !ok {
		log.Infof("fwupdater: build identity has no %s component", restoreComponentName)
		return primary.Write(), nil
	}
	restoreBytes, err := ctx.Archive.ExtractToMemory(restorePath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", restoreComponentName, err)
	}
	restoreFtab, err := ftab.Parse(restoreBytes)
	if err != nil {
		return nil, fmt.Errorf("parse restore ftab: %w", err)
	}

	rrko, ok := restoreFtab.GetEntry("rrko")
	if !ok {
		log.Warn("fwupdater: could not find 'rrko' entry in restore ftab, this will probably break things")
		return primary.Write(), nil
	}
	primary.AddEntry("rrko", rrko)
	return primary.Write(), nil
}
