// Package asr defines the interface to the image-restore protocol
// collaborator: it validates a streamed disk image (by requesting chunk
// samples from various offsets) and then accepts the full payload,
// reporting progress as it goes. The protocol implementation itself is
// an external collaborator; this package only describes its contract.
package asr

import (
	"context"
	"io"
)

// Streamer connects to the on-device ASR service and streams payload,
// invoking progress with percent-complete as the transfer advances.
type Streamer interface {
	Stream(ctx context.Context, payload io.ReadSeeker, progress func(percent int)) error
}
