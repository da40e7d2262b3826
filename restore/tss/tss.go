// Package tss defines the interface to the ticket-signing service client.
// The client itself — issuing the HTTP(S) request and parsing the
// STATUS=/MESSAGE=/REQUEST_STRING= response envelope — is an external
// collaborator; this package only describes its contract so
// restore/tssrequest and restore/fwupdater can be tested against a
// fake.
package tss

import "github.com/restored-go/restored/restore/plist"

// Client sends a TSS parameter dictionary to url and returns the signed
// ticket dictionary, or an error if the server rejected the request or
// the response could not be parsed.
type Client interface {
	RequestSend(request plist.Dict, url string) (plist.Dict, error)
}
