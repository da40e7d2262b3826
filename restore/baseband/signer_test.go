package baseband_test

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restored-go/restored/restore/baseband"
	"github.com/restored-go/restored/restore/bbzip"
	"github.com/restored-go/restored/restore/fls"
	"github.com/restored-go/restored/restore/mbn"
	"github.com/restored-go/restored/restore/plist"
)

const (
	mbnHeaderMagic uint32 = 0x844bdcd1
	flsHeaderMagic uint32 = 0x534c4600
)

func buildMBN(t *testing.T, codeSize, sigSize, certSize int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	hdr := struct {
		Magic, ImageSize, CodeSize, SigSize, CertSize uint32
	}{
		Magic:     mbnHeaderMagic,
		ImageSize: uint32(20 + codeSize + sigSize + certSize),
		CodeSize:  uint32(codeSize),
		SigSize:   uint32(sigSize),
		CertSize:  uint32(certSize),
	}
	require.NoError(t, binary.Write(buf, binary.LittleEndian, hdr))
	buf.Write(make([]byte, codeSize))
	buf.Write(make([]byte, sigSize))
	buf.Write(make([]byte, certSize))
	return buf.Bytes()
}

func buildFLS(t *testing.T, sigSize, ticketSize int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	hdr := struct {
		Magic, ImageSize, NumSegments, SigSize, TicketSize uint32
	}{
		Magic:      flsHeaderMagic,
		ImageSize:  uint32(20 + sigSize + ticketSize),
		SigSize:    uint32(sigSize),
		TicketSize: uint32(ticketSize),
	}
	require.NoError(t, binary.Write(buf, binary.LittleEndian, hdr))
	buf.Write(make([]byte, sigSize))
	buf.Write(make([]byte, ticketSize))
	return buf.Bytes()
}

func writeZip(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestSignPatchesSignatureBlobsAndStripsUnrelated(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "baseband.zip")
	writeZip(t, zipPath, map[string][]byte{
		"psi_ram.fls":  buildFLS(t, 16, 0),
		"ebl.fls":      buildFLS(t, 0, 16),
		"unrelated.txt": []byte("discard me"),
	})

	ramPSIBlob := bytes.Repeat([]byte{0xAA}, 16)
	bbtss := plist.Dict{
		"BasebandFirmware": plist.Dict{
			"RamPSI-Blob": ramPSIBlob,
		},
	}

	require.NoError(t, baseband.Sign(zipPath, bbtss, nil))

	archive, err := bbzip.Open(zipPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"psi_ram.fls"}, archive.List(), "unrelated.txt and ebl.fls must be stripped with no nonce")

	signed, err := fls.Parse(archive.ReadEntry(archive.IndexOf("psi_ram.fls")))
	require.NoError(t, err)
	assert.Equal(t, ramPSIBlob, signed.SignatureBlob())
}

func TestSignSplicesTicketIntoEblFlsWhenFLSFamilySigned(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "baseband.zip")
	writeZip(t, zipPath, map[string][]byte{
		"psi_ram.fls": buildFLS(t, 16, 0),
		"ebl.fls":     buildFLS(t, 0, 32),
	})

	ramPSIBlob := bytes.Repeat([]byte{0xAA}, 16)
	ticket := bytes.Repeat([]byte{0xCD}, 32)
	bbtss := plist.Dict{
		"BasebandFirmware": plist.Dict{
			"RamPSI-Blob": ramPSIBlob,
			"BBTicket":    ticket,
		},
	}

	require.NoError(t, baseband.Sign(zipPath, bbtss, []byte{0x01}))

	archive, err := bbzip.Open(zipPath)
	require.NoError(t, err)

	ebl, err := fls.Parse(archive.ReadEntry(archive.IndexOf("ebl.fls")))
	require.NoError(t, err)
	assert.Equal(t, ticket, ebl.TicketBlob())
}

func TestSignAddsBbticketDerWhenMBNFamilySigned(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "baseband.zip")
	writeZip(t, zipPath, map[string][]byte{
		"dbl.mbn": buildMBN(t, 8, 16, 0),
	})

	dblBlob := bytes.Repeat([]byte{0xBB}, 16)
	ticket := bytes.Repeat([]byte{0xCD}, 32)
	bbtss := plist.Dict{
		"BasebandFirmware": plist.Dict{
			"DBL-Blob": dblBlob,
			"BBTicket": ticket,
		},
	}

	require.NoError(t, baseband.Sign(zipPath, bbtss, []byte{0x01}))

	archive, err := bbzip.Open(zipPath)
	require.NoError(t, err)
	idx := archive.IndexOf("bbticket.der")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, ticket, archive.ReadEntry(idx))

	signed, err := mbn.Parse(archive.ReadEntry(archive.IndexOf("dbl.mbn")))
	require.NoError(t, err)
	assert.Equal(t, dblBlob, signed.SignatureBlob())
}

func TestSignRejectsUnknownElement(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "baseband.zip")
	writeZip(t, zipPath, map[string][]byte{"dbl.mbn": buildMBN(t, 8, 16, 0)})

	bbtss := plist.Dict{
		"BasebandFirmware": plist.Dict{
			"SomeUnknownElement-Blob": []byte{0x01},
		},
	}
	assert.Error(t, baseband.Sign(zipPath, bbtss, nil))
}

func TestSignRejectsMissingMember(t *testing.T) {
	zipPath := filepath.Join(t.TempDir(), "baseband.zip")
	writeZip(t, zipPath, map[string][]byte{"unrelated.txt": []byte("x")})

	bbtss := plist.Dict{
		"BasebandFirmware": plist.Dict{
			"RamPSI-Blob": []byte{0x01},
		},
	}
	assert.Error(t, baseband.Sign(zipPath, bbtss, nil))
}
