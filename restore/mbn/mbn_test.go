package mbn_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restored-go/restored/restore/mbn"
)

// buildFixture assembles a minimal well-formed MBN buffer for tests.
func buildFixture(t *testing.T, code, sig, cert []byte) []byte {
	t.Helper()
	type hdr struct {
		Magic, ImageSize, CodeSize, SigSize, CertSize uint32
	}
	h := hdr{
		Magic:     0x844bdcd1,
		ImageSize: uint32(20 + len(code) + len(sig) + len(cert)),
		CodeSize:  uint32(len(code)),
		SigSize:   uint32(len(sig)),
		CertSize:  uint32(len(cert)),
	}
	buf := new(bytes.Buffer)
	require.NoError(t, binary.Write(buf, binary.LittleEndian, h))
	buf.Write(code)
	buf.Write(sig)
	buf.Write(cert)
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	b := buildFixture(t, []byte("codecodecode"), []byte("oldsignature12345678"), []byte("cert"))

	m, err := mbn.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, b, m.Serialize())
}

func TestUpdateSigBlob(t *testing.T) {
	b := buildFixture(t, []byte("codecodecode"), make([]byte, 20), []byte("cert"))

	m, err := mbn.Parse(b)
	require.NoError(t, err)

	blob := []byte("signed-blob-from-tss")
	require.NoError(t, m.UpdateSigBlob(blob))

	assert.Equal(t, blob, m.SignatureBlob())

	out := m.Serialize()
	assert.Len(t, out, len(b))

	reparsed, err := mbn.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, blob, reparsed.SignatureBlob())
}

func TestUpdateSigBlobTooLarge(t *testing.T) {
	b := buildFixture(t, []byte("code"), make([]byte, 4), []byte("cert"))
	m, err := mbn.Parse(b)
	require.NoError(t, err)

	err = m.UpdateSigBlob([]byte("waytoobigforthefourbyteslot"))
	assert.Error(t, err)
}

func TestParseRejectsBadMagic(t *testing.T) {
	b := buildFixture(t, []byte("code"), []byte("sig1"), nil)
	b[0] ^= 0xff
	_, err := mbn.Parse(b)
	assert.Error(t, err)
}
