package dispatch

import (
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/restored-go/restored/restore/cpio"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/ipsw"
)

const (
	bootabilityPrefix         = "BootabilityBundle/Restore/Bootability/"
	bootabilityTrustcacheFrom = "BootabilityBundle/Restore/Firmware/Bootability.dmg.trustcache"
	bootabilityTrustcacheTo   = "Bootability.trustcache"

	secondaryConnectRetries = 10
	secondaryConnectDelay   = time.Second
)

// streamBootabilityBundle opens a secondary connection to the message's
// DataPort and streams every matching IPSW member as an odc cpio record.
func (d *Dispatcher) streamBootabilityBundle(msg device.MessageEnvelope) error {
	conn, err := d.connectSecondary(msg.DataPort)
	if err != nil {
		return fmt.Errorf("dispatch: BootabilityBundle: %w", err)
	}
	defer conn.Close()

	w := cpio.NewWriter(conn)

	err = d.Ctx.Archive.ListContents(func(name string, stat ipsw.Stat) error {
		if stat.IsDir {
			return nil
		}

		var subpath string
		switch {
		case name == bootabilityTrustcacheFrom:
			subpath = bootabilityTrustcacheTo
		case strings.HasPrefix(name, bootabilityPrefix):
			subpath = strings.TrimPrefix(name, bootabilityPrefix)
		default:
			return nil
		}
		if subpath == "" {
			return nil
		}

		data, err := d.Ctx.Archive.ExtractToMemory(name)
		if err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		hdr := cpio.Header{Mode: stat.Mode, Nlink: 1}
		return w.WriteFile(hdr, subpath, data)
	})
	if err != nil {
		return fmt.Errorf("dispatch: BootabilityBundle: %w", err)
	}

	return w.WriteTrailer()
}

// connectSecondary opens a secondary connection, retrying up to 10
// attempts, 1s apart.
func (d *Dispatcher) connectSecondary(port uint16) (device.ReadWriteCloser, error) {
	var lastErr error
	for attempt := 1; attempt <= secondaryConnectRetries; attempt++ {
		conn, err := d.SecondaryConnector.Connect(port)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Warnf("dispatch: secondary connect to port %d failed (attempt %d/%d): %v", port, attempt, secondaryConnectRetries, err)
		if attempt < secondaryConnectRetries {
			time.Sleep(secondaryConnectDelay)
		}
	}
	return nil, fmt.Errorf("connect to secondary port %d after %d attempts: %w", port, secondaryConnectRetries, lastErr)
}
