// Package baseband re-signs a baseband firmware zip in place: it patches
// TSS-issued signature blobs into the zip's MBN/FLS members, strips
// everything that wasn't touched, and — when a nonce was presented —
// splices a BBTicket into the archive so the device can validate the
// firmware without a live TSS round-trip.
package baseband

import (
	"fmt"
	"path"
	"strings"

	"go.mozilla.org/pkcs7"
	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/bbzip"
	"github.com/restored-go/restored/restore/fls"
	"github.com/restored-go/restored/restore/mbn"
	"github.com/restored-go/restored/restore/plist"
)

// elementToFile maps a BasebandFirmware ticket element (the prefix of an
// "<element>-Blob" key) to the zip member it signs.
var elementToFile = map[string]string{
	"RamPSI":      "psi_ram.fls",
	"FlashPSI":    "psi_flash.fls",
	"eDBL":        "dbl.mbn",
	"RestoreDBL":  "restoredbl.mbn",
	"DBL":         "dbl.mbn",
	"ENANDPRG":    "ENPRG.mbn",
	"RestoreSBL1": "restoresbl1.mbn",
	"SBL1":        "sbl1.mbn",
	"RestorePSI":  "restorepsi.bin",
	"PSI":         "psi_ram.bin",
	"RestorePSI2": "restorepsi2.bin",
	"PSI2":        "psi_ram2.bin",
	"Misc":        "multi_image.mbn",
}

type signedFamily int

const (
	familyNone signedFamily = iota
	familyFLS
	familyMBN
)

// Sign rewrites the zip at zipPath: every "<element>-Blob" entry in
// bbtss's "BasebandFirmware" sub-dictionary that maps to a present member
// is spliced into that member's signature slot. Every other member is
// removed, unless nonce is non-empty and the member survives as a loose
// .fls/.mbn/.elf/.bin firmware file. When nonce is non-empty, the
// BasebandFirmware dictionary's BBTicket is additionally spliced into the
// archive: into ebl.fls's ticket slot if any signed member was FLS,
// otherwise as a new bbticket.der member.
func Sign(zipPath string, bbtss plist.Dict, nonce []byte) error {
	archive, err := bbzip.Open(zipPath)
	if err != nil {
		return fmt.Errorf("baseband: open %s: %w", zipPath, err)
	}

	firmware, ok := bbtss.Dict("BasebandFirmware")
	if !ok {
		return fmt.Errorf("baseband: tss response has no BasebandFirmware dictionary")
	}

	signed := map[int]bool{}
	family := familyNone

	for key, value := range firmware {
		if !strings.HasSuffix(key, "-Blob") {
			continue
		}
		blob, ok := value.([]byte)
		if !ok {
			continue
		}
		element := strings.TrimSuffix(key, "-Blob")
		file, ok := elementToFile[element]
		if !ok {
			return fmt.Errorf("baseband: unknown ticket element %q", element)
		}
		index := archive.IndexOf(file)
		if index < 0 {
			return fmt.Errorf("baseband: signed element %q names missing member %q", element, file)
		}

		kind, err := signMember(archive, index, blob)
		if err != nil {
			return fmt.Errorf("baseband: sign %s: %w", file, err)
		}
		signed[index] = true
		if kind == familyFLS {
			family = familyFLS
		} else if family != familyFLS {
			family = familyMBN
		}
	}

	archive.Keep(func(index int, name string) bool {
		if signed[index] {
			return true
		}
		if len(nonce) == 0 {
			return false
		}
		return isLooseFirmwareFile(name)
	})

	if len(nonce) > 0 {
		ticket, ok := firmware.Data("BBTicket")
		if !ok {
			return fmt.Errorf("baseband: nonce present but tss response has no BBTicket")
		}
		if _, err := pkcs7.Parse(ticket); err != nil {
			log.Warnf("baseband: BBTicket does not parse as PKCS7, inserting opaque bytes anyway: %v", err)
		}
		if err := insertTicket(archive, family, ticket); err != nil {
			return fmt.Errorf("baseband: insert ticket: %w", err)
		}
	}

	if err := archive.WriteTo(zipPath); err != nil {
		return fmt.Errorf("baseband: write %s: %w", zipPath, err)
	}
	return nil
}

// signMember patches blob into the signature slot of the member at
// index, dispatching on file extension, and reports which family was
// signed.
func signMember(archive *bbzip.Archive, index int, blob []byte) (signedFamily, error) {
	name := archive.List()[index]
	data := archive.ReadEntry(index)

	if strings.EqualFold(path.Ext(name), ".fls") {
		f, err := fls.Parse(data)
		if err != nil {
			return familyNone, fmt.Errorf("parse fls: %w", err)
		}
		if err := f.UpdateSigBlob(blob); err != nil {
			return familyNone, err
		}
		archive.ReplaceEntry(index, f.Serialize())
		return familyFLS, nil
	}

	m, err := mbn.Parse(data)
	if err != nil {
		return familyNone, fmt.Errorf("parse mbn: %w", err)
	}
	if err := m.UpdateSigBlob(blob); err != nil {
		return familyNone, err
	}
	archive.ReplaceEntry(index, m.Serialize())
	return familyMBN, nil
}

// insertTicket splices ticket into ebl.fls's ticket slot when any signed
// member was FLS, otherwise adds it as a standalone bbticket.der member.
func insertTicket(archive *bbzip.Archive, family signedFamily, ticket []byte) error {
	if family == familyFLS {
		index := archive.IndexOf("ebl.fls")
		if index < 0 {
			return fmt.Errorf("fls family signed but archive has no ebl.fls")
		}
		f, err := fls.Parse(archive.ReadEntry(index))
		if err != nil {
			return fmt.Errorf("parse ebl.fls: %w", err)
		}
		if err := f.InsertTicket(ticket); err != nil {
			return err
		}
		archive.ReplaceEntry(index, f.Serialize())
		return nil
	}
	archive.AddEntry("bbticket.der", ticket)
	return nil
}

var looseFirmwareExtensions = map[string]bool{
	".fls": true,
	".mbn": true,
	".elf": true,
	".bin": true,
}

func isLooseFirmwareFile(name string) bool {
	return looseFirmwareExtensions[strings.ToLower(path.Ext(name))]
}
