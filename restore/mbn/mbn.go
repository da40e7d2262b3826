// Package mbn parses and rewrites Qualcomm-style MBN (modem binary)
// containers: a small fixed header followed by a code region and a
// fixed-size signature slot. The restore session engine uses it to
// splice a TSS-issued signature blob into baseband firmware files before
// they are repacked into the signed archive (see restore/baseband).
package mbn

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// headerMagic identifies an MBN buffer this package knows how to parse.
const headerMagic uint32 = 0x844bdcd1

const headerSize = 20

// header is the on-disk MBN header, little-endian.
type header struct {
	Magic     uint32
	ImageSize uint32 // total buffer size, header included
	CodeSize  uint32 // bytes of code immediately following the header
	SigSize   uint32 // size of the fixed signature slot following the code
	CertSize  uint32 // size of the cert-chain region following the signature slot
}

// MBN is a parsed MBN buffer. Code, signature and cert-chain regions are
// fixed-size slots; UpdateSigBlob overwrites the signature slot in place
// so the overall buffer length never changes.
type MBN struct {
	hdr    header
	code   []byte
	sigLen int // number of meaningful bytes at the front of the signature slot
	sig    []byte
	cert   []byte
}

// Parse reads an MBN buffer. serialize(parse(b)) reproduces b exactly.
func Parse(b []byte) (*MBN, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("mbn: buffer too small: %d bytes", len(b))
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("mbn: read header: %w", err)
	}
	if hdr.Magic != headerMagic {
		return nil, fmt.Errorf("mbn: bad magic %#x", hdr.Magic)
	}
	want := headerSize + int(hdr.CodeSize) + int(hdr.SigSize) + int(hdr.CertSize)
	if want != int(hdr.ImageSize) || len(b) != want {
		return nil, fmt.Errorf("mbn: size mismatch: header says %d, layout needs %d, buffer has %d", hdr.ImageSize, want, len(b))
	}

	off := headerSize
	code := b[off : off+int(hdr.CodeSize)]
	off += int(hdr.CodeSize)
	sig := b[off : off+int(hdr.SigSize)]
	off += int(hdr.SigSize)
	cert := b[off : off+int(hdr.CertSize)]

	return &MBN{
		hdr:    hdr,
		code:   append([]byte(nil), code...),
		sigLen: int(hdr.SigSize),
		sig:    append([]byte(nil), sig...),
		cert:   append([]byte(nil), cert...),
	}, nil
}

// Size returns the total serialized buffer length.
func (m *MBN) Size() int {
	return headerSize + len(m.code) + len(m.sig) + len(m.cert)
}

// SignatureBlob returns exactly the bytes most recently written by
// UpdateSigBlob (or, before any update, the full on-disk signature slot).
func (m *MBN) SignatureBlob() []byte {
	return m.sig[:m.sigLen]
}

// UpdateSigBlob replaces the signature slot's content with blob. blob must
// fit within the existing fixed-size slot; the remainder of the slot is
// zero-padded so the overall buffer length is unchanged.
func (m *MBN) UpdateSigBlob(blob []byte) error {
	if len(blob) > len(m.sig) {
		return fmt.Errorf("mbn: signature blob of %d bytes does not fit in %d-byte slot", len(blob), len(m.sig))
	}
	for i := range m.sig {
		m.sig[i] = 0
	}
	copy(m.sig, blob)
	m.sigLen = len(blob)
	return nil
}

// Serialize writes the MBN back out to a byte slice.
func (m *MBN) Serialize() []byte {
	hdr := header{
		Magic:     headerMagic,
		ImageSize: uint32(m.Size()),
		CodeSize:  uint32(len(m.code)),
		SigSize:   uint32(len(m.sig)),
		CertSize:  uint32(len(m.cert)),
	}
	buf := new(bytes.Buffer)
	buf.Grow(m.Size())
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	buf.Write(m.code)
	buf.Write(m.sig)
	buf.Write(m.cert)
	return buf.Bytes()
}
