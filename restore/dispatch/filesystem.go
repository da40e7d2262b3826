package dispatch

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/device"
)

// streamFilesystem hands SystemImageData/RecoveryOSASRImage off to the
// ASR collaborator: connect, let ASR validate by sampling chunks at
// various offsets, then stream the full payload. Progress is only
// logged here; the device's own ProgressMsg stream (handled by the
// orchestrator) is the authoritative progress signal.
func (d *Dispatcher) streamFilesystem(msg device.MessageEnvelope) error {
	dataType, _ := msg.Args.String("DataType")

	path := d.Ctx.SystemImagePath
	if dataType == "RecoveryOSASRImage" {
		path = d.Ctx.RecoveryOSImagePath
	}
	if path == "" {
		return fmt.Errorf("dispatch: %s: no staged image path", dataType)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("dispatch: %s: open %s: %w", dataType, path, err)
	}
	defer f.Close()

	lastLogged := -1
	err = d.ASR.Stream(context.Background(), f, func(percent int) {
		if percent != lastLogged {
			log.Infof("dispatch: %s: ASR streaming %d%%", dataType, percent)
			lastLogged = percent
		}
	})
	if err != nil {
		return fmt.Errorf("dispatch: %s: asr stream: %w", dataType, err)
	}
	return nil
}
