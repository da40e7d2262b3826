// Package bbzip rewrites PKZIP archives in place: open, locate members by
// name, replace or add members with new buffers, and drop members that
// didn't survive re-signing. It backs the baseband signer (see
// restore/baseband), which patches a handful of MBN/FLS members inside a
// baseband firmware zip and discards the rest.
//
// Deletion is expressed as Keep, a whole-archive filter rather than a
// per-index Delete call: the baseband signer records which member
// indices it signed, then asks bbzip to rebuild the archive keeping only
// those (plus whatever else the caller's predicate says). This sidesteps
// the classic bug of deleting members by index while earlier deletions
// renumber everything after them — there's only ever one rebuild, over a
// stable snapshot of the original member list.
package bbzip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
)

// Member is one file inside the archive.
type Member struct {
	Name string
	Mode uint32
	Data []byte
}

// Archive is an in-memory, mutable view of a zip file's members, in their
// original order.
type Archive struct {
	members []Member
}

// Open reads the zip file at path entirely into memory.
func Open(path string) (*Archive, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("bbzip: open %s: %w", path, err)
	}
	defer r.Close()

	a := &Archive{members: make([]Member, 0, len(r.File))}
	for _, zf := range r.File {
		data, err := readZipFile(zf)
		if err != nil {
			return nil, fmt.Errorf("bbzip: read member %s: %w", zf.Name, err)
		}
		a.members = append(a.members, Member{
			Name: zf.Name,
			Mode: uint32(zf.Mode()),
			Data: data,
		})
	}
	return a, nil
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Len returns the number of members.
func (a *Archive) Len() int { return len(a.members) }

// IndexOf returns the index of the member named name, or -1 if absent.
func (a *Archive) IndexOf(name string) int {
	for i, m := range a.members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

// ReadEntry returns the bytes of the member at index i.
func (a *Archive) ReadEntry(i int) []byte {
	return a.members[i].Data
}

// List returns the names of every member, in order.
func (a *Archive) List() []string {
	out := make([]string, len(a.members))
	for i, m := range a.members {
		out[i] = m.Name
	}
	return out
}

// ReplaceEntry overwrites the data of the member at index i.
func (a *Archive) ReplaceEntry(i int, data []byte) {
	a.members[i].Data = data
}

// AddEntry appends a new member.
func (a *Archive) AddEntry(name string, data []byte) {
	a.members = append(a.members, Member{Name: name, Mode: 0644, Data: data})
}

// Keep rebuilds the archive in place, retaining only the members for
// which keep(originalIndex, name) returns true. It operates over the
// snapshot taken at the time of the call, so index arguments passed to
// keep always refer to stable, pre-rebuild positions.
func (a *Archive) Keep(keep func(index int, name string) bool) {
	kept := make([]Member, 0, len(a.members))
	for i, m := range a.members {
		if keep(i, m.Name) {
			kept = append(kept, m)
		}
	}
	a.members = kept
}

// WriteTo serializes the archive and writes it to path, flushing the
// central directory on close.
func (a *Archive) WriteTo(path string) error {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, m := range a.members {
		hdr := &zip.FileHeader{Name: m.Name, Method: zip.Deflate}
		hdr.SetMode(os.FileMode(m.Mode))
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("bbzip: create header for %s: %w", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			return fmt.Errorf("bbzip: write %s: %w", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("bbzip: close writer: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("bbzip: write %s: %w", path, err)
	}
	return nil
}

// Bytes serializes the archive to an in-memory buffer without touching
// disk, producing the same bytes WriteTo would write.
func (a *Archive) Bytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for _, m := range a.members {
		hdr := &zip.FileHeader{Name: m.Name, Method: zip.Deflate}
		hdr.SetMode(os.FileMode(m.Mode))
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("bbzip: create header for %s: %w", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			return nil, fmt.Errorf("bbzip: write %s: %w", m.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("bbzip: close writer: %w", err)
	}
	return buf.Bytes(), nil
}
