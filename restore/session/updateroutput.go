package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/restored-go/restored/restore/cpio"
)

// outputWriter appends BasebandUpdaterOutputData records to a CPIO-odc
// file named updater_output-<udid>.cpio.
type outputWriter struct {
	f   *os.File
	cw  *cpio.Writer
	seq uint32
}

// newOutputWriter creates (or truncates) updater_output-<udid>.cpio in
// dir. udid is rejected outright if it contains a path separator or a
// ".." segment: it ultimately comes from the device and must not be
// allowed to escape dir.
func newOutputWriter(dir, udid string) (*outputWriter, error) {
	if udid == "" || strings.ContainsAny(udid, "/\\") || strings.Contains(udid, "..") {
		return nil, fmt.Errorf("session: refusing unsafe udid %q for updater output filename", udid)
	}
	path := filepath.Join(dir, fmt.Sprintf("updater_output-%s.cpio", udid))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("session: create %s: %w", path, err)
	}
	return &outputWriter{f: f, cw: cpio.NewWriter(f)}, nil
}

// Write appends one output record under a sequence-numbered name so
// repeated writes of the same stream name (e.g. "stdout") don't
// collide.
func (w *outputWriter) Write(name string, data []byte) error {
	w.seq++
	recordName := fmt.Sprintf("%s.%d", name, w.seq)
	return w.cw.WriteFile(cpio.Header{Nlink: 1}, recordName, data)
}

// Close writes the trailer record and closes the underlying file.
func (w *outputWriter) Close() error {
	if err := w.cw.WriteTrailer(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
