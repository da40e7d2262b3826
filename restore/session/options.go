// Package session drives the restore-mode message loop: it opens the
// transport, emits the start-restore options dictionary, and then
// receives and dispatches messages until a terminal StatusMsg or a fatal
// error sets Quit.
package session

import (
	"github.com/Masterminds/semver"
	"github.com/google/uuid"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/plist"
)

// macOSAPFSFloor is the earliest macOS version that formats its target
// volume as APFS rather than HFS+ during restore.
func macOSAPFSFloor() *semver.Version {
	return semver.MustParse("10.13.0")
}

// StartOptions builds the start-restore options dictionary: a common
// core present for every target, plus macOS- or mobile-variant-specific
// additions.
func StartOptions(identity buildid.BuildIdentity, variant string, supportedDataTypes, supportedMessageTypes []string, tz0Capacity int64) plist.Dict {
	padding := plist.Dict{}
	for k, v := range identity.Info.SystemPartitionPadding {
		padding[k] = v
	}

	opts := plist.Dict{
		"AutoBootDelay":              0,
		"SupportedDataTypes":         toAny(supportedDataTypes),
		"SupportedMessageTypes":      toAny(supportedMessageTypes),
		"SystemPartitionPadding":     padding,
		"CreateFilesystemPartitions": true,
		"SystemImage":                true,
		"UUID":                       uuid.New().String(),
	}

	if identity.Info.MacOSVariant != "" {
		behavior := variant
		if behavior != "Erase" && behavior != "Update" {
			behavior = "Erase"
		}
		formatAPFS := false
		if v, err := semver.NewVersion(identity.Info.OSVersion); err == nil {
			formatAPFS = !v.LessThan(macOSAPFSFloor())
		}
		opts["AuthInstallRestoreBehavior"] = behavior
		opts["FormatForAPFS"] = formatAPFS
		opts["InstallRecoveryOS"] = true
		opts["recoveryOSPartitionSize"] = identity.Info.MinimumSystemPartition
		opts["AuthInstallRecoveryOSVariant"] = identity.Info.MacOSVariant
		return opts
	}

	opts["BootImageType"] = "UserOrInternal"
	opts["DFUFileType"] = "RELEASE"
	opts["NORImageType"] = "production"
	opts["KernelCacheType"] = "Release"
	opts["SystemImageType"] = "User"
	opts["PersonalizedDuringPreflight"] = true
	opts["RestoreBundlePath"] = "/tmp/Per2.tmp"
	if tz0Capacity > 0 {
		opts["TZ0RequiredCapacity"] = tz0Capacity
	}
	return opts
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
