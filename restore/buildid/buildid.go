// Package buildid models the subset of a BuildManifest.plist "build
// identity" the restore session engine consumes: per-component manifest
// entries (path, digest, firmware-payload flags) and the handful of Info
// fields that drive session/orchestrator behavior.
//
// Field shape follows blacktop-ipsw's pkg/plist/build_manifest.go,
// trimmed to what this engine actually reads.
package buildid

// Info holds the build identity's top-level Info dictionary.
type Info struct {
	DeviceClass            string
	MacOSVariant           string
	OSVersion              string // e.g. "10.15.7"; gates macOS-variant start-restore options
	MinimumSystemPartition int
	SystemPartitionPadding map[string]int
	FDRSupport             bool
}

// ComponentInfo is the per-component Info sub-dictionary inside a
// manifest entry.
type ComponentInfo struct {
	Path                       string
	IsFirmwarePayload          bool
	IsSecondaryFirmwarePayload bool
	IsLoadedByiBoot            bool
	IsFUDFirmware              bool
	IsEarlyAccessFirmware      bool
}

// ManifestEntry is one component's entry in the build identity's
// Manifest dictionary.
type ManifestEntry struct {
	Info   ComponentInfo
	Digest []byte
}

// BuildIdentity is one variant (erase/update/recovery) of a build for one
// hardware model.
type BuildIdentity struct {
	Info     Info
	Manifest map[string]ManifestEntry
}

// Component returns the manifest entry for name, and whether it exists.
func (b BuildIdentity) Component(name string) (ManifestEntry, bool) {
	e, ok := b.Manifest[name]
	return e, ok
}

// Path returns the archive path of the named component, per the §4.4
// preference order used by the component loader: callers that have a
// ticket-supplied path should prefer it over this manifest path.
func (b BuildIdentity) Path(name string) (string, bool) {
	e, ok := b.Manifest[name]
	if !ok || e.Info.Path == "" {
		return "", false
	}
	return e.Info.Path, true
}

// ComponentsWhere returns the names of every manifest entry for which
// pred returns true, in map iteration order (callers needing a stable
// order, e.g. list-mode image-family replies, must sort independently).
func (b BuildIdentity) ComponentsWhere(pred func(ComponentInfo) bool) []string {
	var out []string
	for name, e := range b.Manifest {
		if pred(e.Info) {
			out = append(out, name)
		}
	}
	return out
}
