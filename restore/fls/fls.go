// Package fls parses and rewrites FLS (firmware load script) containers:
// an ordered list of ELF-segment-shaped records followed by a fixed-size
// signature slot and a fixed-size ticket slot. The restore session
// engine uses it to splice TSS signatures and baseband tickets into
// baseband firmware files (see restore/baseband).
package fls

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const headerMagic uint32 = 0x534c4600 // stored little-endian: on-disk bytes are "\x00FLS"

const headerSize = 20

type header struct {
	Magic       uint32
	ImageSize   uint32
	NumSegments uint32
	SigSize     uint32
	TicketSize  uint32
}

// Segment is one ELF-shaped load record embedded in an FLS file.
type Segment struct {
	Tag  [4]byte
	Data []byte
}

// FLS is a parsed FLS buffer.
type FLS struct {
	segments  []Segment
	sig       []byte
	sigLen    int
	ticket    []byte
	ticketLen int
}

// Parse reads an FLS buffer. serialize(parse(b)) reproduces b exactly.
func Parse(b []byte) (*FLS, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("fls: buffer too small: %d bytes", len(b))
	}
	var hdr header
	if err := binary.Read(bytes.NewReader(b[:headerSize]), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("fls: read header: %w", err)
	}
	if hdr.Magic != headerMagic {
		return nil, fmt.Errorf("fls: bad magic %#x", hdr.Magic)
	}

	r := bytes.NewReader(b[headerSize:])
	segments := make([]Segment, 0, hdr.NumSegments)
	for i := uint32(0); i < hdr.NumSegments; i++ {
		var seg Segment
		if _, err := r.Read(seg.Tag[:]); err != nil {
			return nil, fmt.Errorf("fls: read segment %d tag: %w", i, err)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("fls: read segment %d size: %w", i, err)
		}
		data := make([]byte, size)
		if _, err := r.Read(data); err != nil {
			return nil, fmt.Errorf("fls: read segment %d data: %w", i, err)
		}
		seg.Data = data
		segments = append(segments, seg)
	}

	sig := make([]byte, hdr.SigSize)
	if _, err := r.Read(sig); err != nil && hdr.SigSize > 0 {
		return nil, fmt.Errorf("fls: read signature slot: %w", err)
	}
	ticket := make([]byte, hdr.TicketSize)
	if _, err := r.Read(ticket); err != nil && hdr.TicketSize > 0 {
		return nil, fmt.Errorf("fls: read ticket slot: %w", err)
	}

	f := &FLS{
		segments:  segments,
		sig:       sig,
		sigLen:    int(hdr.SigSize),
		ticket:    ticket,
		ticketLen: int(hdr.TicketSize),
	}
	if f.Size() != int(hdr.ImageSize) || f.Size() != len(b) {
		return nil, fmt.Errorf("fls: size mismatch: header says %d, layout is %d, buffer has %d", hdr.ImageSize, f.Size(), len(b))
	}
	return f, nil
}

// Size returns the total serialized buffer length.
func (f *FLS) Size() int {
	n := headerSize
	for _, s := range f.segments {
		n += 4 + 4 + len(s.Data)
	}
	n += len(f.sig) + len(f.ticket)
	return n
}

// SignatureBlob returns exactly the bytes most recently written by
// UpdateSigBlob (or the full on-disk signature slot, before any update).
func (f *FLS) SignatureBlob() []byte {
	return f.sig[:f.sigLen]
}

// UpdateSigBlob overwrites the fixed-size signature slot.
func (f *FLS) UpdateSigBlob(blob []byte) error {
	if len(blob) > len(f.sig) {
		return fmt.Errorf("fls: signature blob of %d bytes does not fit in %d-byte slot", len(blob), len(f.sig))
	}
	for i := range f.sig {
		f.sig[i] = 0
	}
	copy(f.sig, blob)
	f.sigLen = len(blob)
	return nil
}

// TicketBlob returns exactly the bytes most recently written by
// InsertTicket (or the full on-disk ticket slot, before any insert).
func (f *FLS) TicketBlob() []byte {
	return f.ticket[:f.ticketLen]
}

// InsertTicket overwrites the fixed-size ticket slot, e.g. with a BBTicket
// so the device can validate the baseband firmware without a live TSS
// round-trip.
func (f *FLS) InsertTicket(ticket []byte) error {
	if len(ticket) > len(f.ticket) {
		return fmt.Errorf("fls: ticket of %d bytes does not fit in %d-byte slot", len(ticket), len(f.ticket))
	}
	for i := range f.ticket {
		f.ticket[i] = 0
	}
	copy(f.ticket, ticket)
	f.ticketLen = len(ticket)
	return nil
}

// Serialize writes the FLS back out to a byte slice.
func (f *FLS) Serialize() []byte {
	hdr := header{
		Magic:       headerMagic,
		ImageSize:   uint32(f.Size()),
		NumSegments: uint32(len(f.segments)),
		SigSize:     uint32(len(f.sig)),
		TicketSize:  uint32(len(f.ticket)),
	}
	buf := new(bytes.Buffer)
	buf.Grow(f.Size())
	_ = binary.Write(buf, binary.LittleEndian, hdr)
	for _, s := range f.segments {
		buf.Write(s.Tag[:])
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(s.Data)))
		buf.Write(s.Data)
	}
	buf.Write(f.sig)
	buf.Write(f.ticket)
	return buf.Bytes()
}
