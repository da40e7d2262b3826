// Package ftab parses and rewrites FTAB firmware tables: a 4-character
// overall tag followed by an ordered list of 4-character-tag entries,
// each holding a contiguous byte blob. The restore session engine uses
// FTAB to splice a Rose/Timer RTKitOS firmware's 'rrko' entry from a
// restore-variant FTAB into the primary one (see restore/fwupdater).
package ftab

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

const magic uint64 = 0x62617466736f6b72 // "rkosftab"

const headerSize = 16 // magic(8) + tag(4) + numEntries(4)

// Entry is one tagged blob inside an FTAB.
type Entry struct {
	Tag  [4]byte
	Data []byte
}

// FTAB is a parsed firmware table.
type FTAB struct {
	Tag     [4]byte
	entries []Entry
}

// Parse reads an FTAB buffer. Write(Parse(b)) reproduces b exactly when
// no entry has been added or replaced.
func Parse(b []byte) (*FTAB, error) {
	if len(b) < headerSize {
		return nil, fmt.Errorf("ftab: buffer too small: %d bytes", len(b))
	}
	r := bytes.NewReader(b)

	var m uint64
	if err := binary.Read(r, binary.LittleEndian, &m); err != nil {
		return nil, fmt.Errorf("ftab: read magic: %w", err)
	}
	if m != magic {
		return nil, fmt.Errorf("ftab: bad magic %#x", m)
	}

	f := &FTAB{}
	if _, err := r.Read(f.Tag[:]); err != nil {
		return nil, fmt.Errorf("ftab: read tag: %w", err)
	}

	var numEntries uint32
	if err := binary.Read(r, binary.LittleEndian, &numEntries); err != nil {
		return nil, fmt.Errorf("ftab: read entry count: %w", err)
	}

	f.entries = make([]Entry, 0, numEntries)
	for i := uint32(0); i < numEntries; i++ {
		var e Entry
		if _, err := r.Read(e.Tag[:]); err != nil {
			return nil, fmt.Errorf("ftab: read entry %d tag: %w", i, err)
		}
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("ftab: read entry %d size: %w", i, err)
		}
		data := make([]byte, size)
		if _, err := r.Read(data); err != nil && size > 0 {
			return nil, fmt.Errorf("ftab: read entry %d data: %w", i, err)
		}
		e.Data = data
		f.entries = append(f.entries, e)
	}
	return f, nil
}

// GetEntry returns the entry named by tag, or false if it doesn't exist.
func (f *FTAB) GetEntry(tag string) ([]byte, bool) {
	for _, e := range f.entries {
		if string(e.Tag[:]) == tag {
			return e.Data, true
		}
	}
	return nil, false
}

// AddEntry appends a new entry, or replaces an existing one with the same
// tag in place, preserving its original position.
func (f *FTAB) AddEntry(tag string, data []byte) {
	var t [4]byte
	copy(t[:], tag)
	for i, e := range f.entries {
		if e.Tag == t {
			f.entries[i].Data = data
			return
		}
	}
	f.entries = append(f.entries, Entry{Tag: t, Data: data})
}

// Tags returns the tags of every entry, in order.
func (f *FTAB) Tags() []string {
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = string(e.Tag[:])
	}
	return out
}

// Write serializes the FTAB back to a byte slice.
func (f *FTAB) Write() []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, magic)
	buf.Write(f.Tag[:])
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(f.entries)))
	for _, e := range f.entries {
		buf.Write(e.Tag[:])
		_ = binary.Write(buf, binary.LittleEndian, uint32(len(e.Data)))
		buf.Write(e.Data)
	}
	return buf.Bytes()
}

// New creates an empty FTAB carrying the given overall tag, e.g. "rkos".
func New(tag string) *FTAB {
	f := &FTAB{}
	copy(f.Tag[:], tag)
	return f
}

// String renders a one-line-per-entry debug dump: tag and human-readable
// size, for logging an FTAB before/after a Rose/Timer 'rrko' splice.
func (f *FTAB) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ftab %s (%d entries)\n", f.Tag, len(f.entries))
	for _, e := range f.entries {
		fmt.Fprintf(&b, "  %s: %s\n", e.Tag, humanize.Bytes(uint64(len(e.Data))))
	}
	return b.String()
}
