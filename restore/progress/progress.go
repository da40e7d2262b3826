// Package progress remaps the device's ProgressMsg operation codes into
// the small set of host progress buckets the restore session engine
// reports upward, and tracks the human-readable operation name used for
// logging.
package progress

import log "github.com/sirupsen/logrus"

// Bucket is one of the host-visible progress stages.
type Bucket int

const (
	BucketNone Bucket = iota
	VerifyFS
	FlashFirmware
	FlashBaseband
	Fud
)

// operation codes, as reported by the device in a ProgressMsg.
const (
	opCreatePartitionMap         = 11
	opCreateFilesystem           = 12
	opRestoreImage               = 13
	opVerifyRestore              = 14
	opCheckFilesystems           = 15
	opMountFilesystems           = 16
	opFixupVar                   = 17
	opFlashFirmware              = 18
	opUpdateBaseband             = 19
	opSetBootStage               = 20
	opRebootDevice               = 21
	opShutdownDevice             = 22
	opTurnOnAccessoryPower       = 23
	opClearBootargs              = 24
	opModifyBootargs             = 25
	opInstallRoot                = 26
	opInstallKernelcache         = 27
	opWaitForNand                = 28
	opUnmountFilesystems         = 29
	opSetDatetime                = 30
	opExecIboot                  = 31
	opFinalizeNandEpochUpdate    = 32
	opCheckInapprBootPartitions  = 33
	opCreateFactoryRestoreMarker = 34
	opLoadFirmware               = 35
	opRequestingFudData          = 36
	opRemovingActivationRecord   = 37
	opCheckBatteryVoltage        = 38
	opWaitBatteryCharge          = 39
	opCloseModemTickets          = 40
	opMigrateData                = 41
	opWipeStorageDevice          = 42
	opSendAppleLogo              = 43
	opCheckLogs                  = 44
	opClearNvram                 = 46
	opUpdateGasGauge             = 47
	opPrepareBasebandUpdate      = 48
	opBootBaseband               = 49
	opCreateSystemKeybag         = 50
	opUpdateIRMCUFirmware        = 51
	opResizeSystemPartition      = 52
	opCollectingUpdaterOutput    = 53
	opPairStockholm              = 54
	opUpdateStockholm            = 55
	opUpdateSwdhid               = 56
	opCertifySep                 = 57
	opUpdateNandFirmware         = 58
	opUpdateSEFirmware           = 59
	opUpdateSavage               = 60
	opInstallingDevicetree       = 61
	opCertifySavage              = 62
	opSubmittingProvinfo         = 63
	opCertifyYonkers             = 64
	opUpdateRose                 = 65
	opUpdateVeridian             = 66
	opCreatingProtectedVolume    = 67
	opResizingMainFsPartition    = 68
	opCreatingRecoveryOSVolume   = 69
	opInstallingRecoveryOSFiles  = 70
	opInstallingRecoveryOSImage  = 71
	opRequestingEanData          = 74
	opSealingSystemVolume        = 77
	opUpdatingAppleTCON          = 81
)

var operationNames = map[int]string{
	opCreatePartitionMap:         "Creating partition map",
	opCreateFilesystem:           "Creating filesystem",
	opRestoreImage:               "Restoring image",
	opVerifyRestore:              "Verifying restore",
	opCheckFilesystems:           "Checking filesystems",
	opMountFilesystems:           "Mounting filesystems",
	opFixupVar:                   "Fixing up /var",
	opFlashFirmware:              "Flashing firmware",
	opUpdateBaseband:             "Updating baseband",
	opSetBootStage:               "Setting boot stage",
	opRebootDevice:               "Rebooting device",
	opShutdownDevice:             "Shutdown device",
	opTurnOnAccessoryPower:       "Turning on accessory power",
	opClearBootargs:              "Clearing persistent boot-args",
	opModifyBootargs:             "Modifying persistent boot-args",
	opInstallRoot:                "Installing root",
	opInstallKernelcache:         "Installing kernelcache",
	opWaitForNand:                "Waiting for NAND",
	opUnmountFilesystems:         "Unmounting filesystems",
	opSetDatetime:                "Setting date and time on device",
	opExecIboot:                  "Executing iBEC to bootstrap update",
	opFinalizeNandEpochUpdate:    "Finalizing NAND epoch update",
	opCheckInapprBootPartitions:  "Checking for inappropriate bootable partitions",
	opCreateFactoryRestoreMarker: "Creating factory restore marker",
	opLoadFirmware:               "Loading firmware data to flash",
	opRequestingFudData:          "Requesting FUD data",
	opRemovingActivationRecord:   "Removing activation record",
	opCheckBatteryVoltage:        "Checking battery voltage",
	opWaitBatteryCharge:          "Waiting for battery to charge",
	opCloseModemTickets:          "Closing modem tickets",
	opMigrateData:                "Migrating data",
	opWipeStorageDevice:          "Wiping storage device",
	opSendAppleLogo:              "Sending Apple logo to device",
	opCheckLogs:                  "Checking for uncollected logs",
	opClearNvram:                 "Clearing NVRAM",
	opUpdateGasGauge:             "Updating gas gauge software",
	opPrepareBasebandUpdate:      "Preparing for baseband update",
	opBootBaseband:               "Booting the baseband",
	opCreateSystemKeybag:         "Creating system key bag",
	opUpdateIRMCUFirmware:        "Updating IR MCU firmware",
	opResizeSystemPartition:      "Resizing system partition",
	opCollectingUpdaterOutput:    "Collecting updater output",
	opPairStockholm:              "Pairing Stockholm",
	opUpdateStockholm:            "Updating Stockholm",
	opUpdateSwdhid:               "Updating SWDHID",
	opCertifySep:                 "Certifying SEP",
	opUpdateNandFirmware:         "Updating NAND Firmware",
	opUpdateSEFirmware:           "Updating SE Firmware",
	opUpdateSavage:               "Updating Savage",
	opInstallingDevicetree:       "Installing DeviceTree",
	opCertifySavage:              "Certifying Savage",
	opSubmittingProvinfo:         "Submitting Provinfo",
	opCertifyYonkers:             "Certifying Yonkers",
	opUpdateRose:                 "Updating Rose",
	opUpdateVeridian:             "Updating Veridian",
	opCreatingProtectedVolume:    "Creating Protected Volume",
	opResizingMainFsPartition:    "Resizing Main Filesystem Partition",
	opCreatingRecoveryOSVolume:   "Creating Recovery OS Volume",
	opInstallingRecoveryOSFiles:  "Installing Recovery OS Files",
	opInstallingRecoveryOSImage:  "Installing Recovery OS Image",
	opRequestingEanData:          "Requesting EAN Data",
	opSealingSystemVolume:        "Sealing System Volume",
	opUpdatingAppleTCON:          "Updating AppleTCON",
}

// OperationName returns the human-readable name of operation code op, or
// "Unknown operation" if op isn't in the table.
func OperationName(op int) string {
	if name, ok := operationNames[op]; ok {
		return name
	}
	return "Unknown operation"
}

// AdaptOperation applies the protocol-version-14 API drift compensation:
// for protocolVersion < 14, operation codes greater than 35 are one less
// than their modern equivalent, so it adds one back.
func AdaptOperation(operation int, protocolVersion uint64) int {
	if protocolVersion < 14 && operation > 35 {
		return operation + 1
	}
	return operation
}

// Tracker remaps ProgressMsg operation/progress pairs into host progress
// buckets, suppressing duplicate log lines for a repeated operation code.
type Tracker struct {
	protocolVersion uint64
	lastOperation   int
	started         bool
}

// NewTracker returns a Tracker for a session negotiated at protocolVersion.
func NewTracker(protocolVersion uint64) *Tracker {
	return &Tracker{protocolVersion: protocolVersion}
}

// Handle processes one ProgressMsg's Operation/Progress pair and returns
// the bucket to report progress on, if any.
func (t *Tracker) Handle(operation, progressPercent int) (bucket Bucket, percent int, ok bool) {
	adapted := AdaptOperation(operation, t.protocolVersion)

	logOnce := !t.started || operation != t.lastOperation
	t.started = true
	t.lastOperation = operation

	if progressPercent <= 0 || progressPercent > 100 {
		log.Infof("%s (%d)", OperationName(adapted), operation)
		return BucketNone, 0, false
	}

	if logOnce {
		log.Infof("%s (%d)", OperationName(adapted), operation)
	}

	switch adapted {
	case opVerifyRestore:
		return VerifyFS, progressPercent, true
	case opFlashFirmware:
		return FlashFirmware, progressPercent, true
	case opUpdateBaseband, opUpdateIRMCUFirmware:
		return FlashBaseband, progressPercent, true
	case opRequestingFudData:
		return Fud, progressPercent, true
	case opUpdateRose, opUpdateVeridian, opRequestingEanData:
		return BucketNone, 0, false
	default:
		log.Debugf("unhandled progress operation %d (%d)", adapted, operation)
		return BucketNone, 0, false
	}
}
