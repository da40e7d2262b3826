// Package cpio writes the ASCII "odc" cpio format used by the restore
// session engine to stream a BootabilityBundle to the restore daemon's
// secondary data connection (see restore/dispatch).
package cpio

import (
	"fmt"
	"io"
)

const magic = "070707"

// trailerName is the sentinel record that terminates an odc archive.
const trailerName = "TRAILER!!!"

// fieldWidths are, in order: magic, dev, ino, mode, uid, gid, nlink, rdev,
// mtime, namesize, filesize.
var fieldWidths = [11]int{6, 6, 6, 6, 6, 6, 6, 6, 11, 6, 11}

// Header describes one file entry's metadata, uid/gid already zeroed per
// the BootabilityBundle streaming contract.
type Header struct {
	Dev   uint32
	Ino   uint32
	Mode  uint32
	UID   uint32
	GID   uint32
	Nlink uint32
	Rdev  uint32
	Mtime uint32
}

// Writer emits odc-format records to an underlying io.Writer.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer that writes odc records to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFile writes one file record: header, NUL-terminated name, payload.
func (cw *Writer) WriteFile(hdr Header, name string, data []byte) error {
	return cw.writeRecord(hdr, name, data)
}

// WriteTrailer writes the archive-terminating TRAILER!!! record.
func (cw *Writer) WriteTrailer() error {
	return cw.writeRecord(Header{Nlink: 1}, trailerName, nil)
}

func (cw *Writer) writeRecord(hdr Header, name string, data []byte) error {
	nameBytes := append([]byte(name), 0) // NUL-terminated

	fields := [11]uint64{
		0, // magic written separately below, octal-rendered with its own width
		uint64(hdr.Dev),
		uint64(hdr.Ino),
		uint64(hdr.Mode),
		uint64(hdr.UID),
		uint64(hdr.GID),
		uint64(hdr.Nlink),
		uint64(hdr.Rdev),
		uint64(hdr.Mtime),
		uint64(len(nameBytes)),
		uint64(len(data)),
	}

	if _, err := io.WriteString(cw.w, magic); err != nil {
		return fmt.Errorf("cpio: write magic: %w", err)
	}
	for i := 1; i < len(fields); i++ {
		s, err := octal(fields[i], fieldWidths[i])
		if err != nil {
			return fmt.Errorf("cpio: encode field %d: %w", i, err)
		}
		if _, err := io.WriteString(cw.w, s); err != nil {
			return fmt.Errorf("cpio: write field %d: %w", i, err)
		}
	}
	if _, err := cw.w.Write(nameBytes); err != nil {
		return fmt.Errorf("cpio: write name: %w", err)
	}
	if _, err := cw.w.Write(data); err != nil {
		return fmt.Errorf("cpio: write payload: %w", err)
	}
	return nil
}

// octal renders v as zero-padded octal digits of exactly width characters,
// erroring if v doesn't fit.
func octal(v uint64, width int) (string, error) {
	s := fmt.Sprintf("%0*o", width, v)
	if len(s) != width {
		return "", fmt.Errorf("value %d overflows %d-digit octal field", v, width)
	}
	return s, nil
}
