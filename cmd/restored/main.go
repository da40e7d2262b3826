// Command restored drives one restore-mode session against a device
// already in restore mode. Device discovery/pairing, the IPSW reader,
// the TSS HTTP client, and the ASR streamer are external collaborators
// this binary must be linked against a concrete implementation of to do
// anything; this command only wires the restore/* packages together
// around whatever implementations are provided.
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

const version = "local-build"

func main() {
	os.Exit(Main())
}

// Main exports main's body for testing.
func Main() int {
	udid := flag.String("udid", "", "device UDID to restore")
	ipswPath := flag.String("ipsw", "", "path to the IPSW archive")
	variant := flag.String("variant", "Erase", "build identity variant (Erase|Update)")
	tssURL := flag.String("tss-url", "https://gs.apple.com/TSS/controller?action=2", "TSS server URL")
	ignoreErrors := flag.Bool("ignore-errors", false, "continue the session past non-fatal handler errors")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *debug {
		log.SetLevel(log.DebugLevel)
	}

	if *udid == "" || *ipswPath == "" {
		fmt.Fprintf(os.Stderr, "restored %s\nusage: restored -udid <udid> -ipsw <path> [-variant Erase|Update] [-tss-url <url>] [-ignore-errors] [-debug]\n", version)
		return 2
	}

	log.Infof("restored %s: restoring %s from %s (variant=%s, ignore-errors=%v)", version, *udid, *ipswPath, *variant, *ignoreErrors)

	if err := run(*udid, *ipswPath, *variant, *tssURL, *ignoreErrors); err != nil {
		log.Errorf("restored: %v", err)
		return 1
	}
	return 0
}

// run is where a concrete build links in its Transport, Archive, TSS
// Client, and ASR Streamer implementations and builds the
// dispatch.Context/session.Orchestrator pair. None of those
// implementations ship in this module, so this is the integration
// point a deployment fills in.
func run(udid, ipswPath, variant, tssURL string, ignoreErrors bool) error {
	return fmt.Errorf("restored: no Transport/Archive/TSS/ASR implementation linked into this build")
}
