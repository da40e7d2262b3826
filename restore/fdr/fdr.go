// Package fdr defines the interface to the FDR / reverse-proxy
// side-channel runtime: a long-lived task that services the device's
// out-of-band requests in parallel with the main restore loop. The
// runtime itself is an external collaborator; this package only
// describes its contract.
package fdr

import "context"

// Channel runs the side-channel control loop until ctx is canceled or a
// fatal error occurs.
type Channel interface {
	Serve(ctx context.Context) error
}
