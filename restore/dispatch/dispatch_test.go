package dispatch_test

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/component"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/dispatch"
	"github.com/restored-go/restored/restore/ipsw"
	"github.com/restored-go/restored/restore/plist"
)

type fakePersonalizer struct{}

func (fakePersonalizer) Personalize(name string, payload []byte, ticket plist.Dict) ([]byte, error) {
	return append([]byte("signed:"), payload...), nil
}

type fakeTransport struct {
	sent []plist.Dict
}

func (f *fakeTransport) Open(string) error                                { return nil }
func (f *fakeTransport) QueryType() (string, uint64, error)               { return "com.apple.mobile.restored", 16, nil }
func (f *fakeTransport) Send(d plist.Dict) error                          { f.sent = append(f.sent, d); return nil }
func (f *fakeTransport) Receive() (plist.Dict, error)                     { return nil, device.ErrTimeout }
func (f *fakeTransport) StartRestore(plist.Dict, uint64) error           { return nil }
func (f *fakeTransport) Reboot() error                                    { return nil }
func (f *fakeTransport) Close() error                                     { return nil }

func newDispatcher(t *testing.T, archive ipsw.Archive, identity buildid.BuildIdentity) (*dispatch.Dispatcher, *fakeTransport) {
	t.Helper()
	loader, err := component.NewLoader(archive, fakePersonalizer{}, 4)
	require.NoError(t, err)
	transport := &fakeTransport{}
	return &dispatch.Dispatcher{
		Ctx: &dispatch.Context{
			Identity: identity,
			Archive:  archive,
			Loader:   loader,
			Ticket:   plist.Dict{},
		},
		Transport: transport,
	}, transport
}

func TestHandleDataRequestBuildIdentityDictEchoesVariant(t *testing.T) {
	identity := buildid.BuildIdentity{}
	d, transport := newDispatcher(t, ipsw.NewFake(), identity)
	d.Ctx.Variant = "Update"

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "BuildIdentityDict"}))
	require.NoError(t, err)

	require.Len(t, transport.sent, 1)
	variant, ok := transport.sent[0].String("Variant")
	require.True(t, ok)
	assert.Equal(t, "Update", variant)
}

func TestHandleDataRequestRootTicketPrefersExplicitOverride(t *testing.T) {
	identity := buildid.BuildIdentity{}
	d, transport := newDispatcher(t, ipsw.NewFake(), identity)
	d.Ctx.RootTicketData = []byte{0xAA}
	d.Ctx.Ticket = plist.Dict{"ApImg4Ticket": []byte{0xBB}}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "RootTicket"}))
	require.NoError(t, err)

	data, ok := transport.sent[0].Data("RootTicketData")
	require.True(t, ok)
	assert.Equal(t, []byte{0xAA}, data)
}

func TestHandleDataRequestRootTicketFallsBackToApImg4Ticket(t *testing.T) {
	identity := buildid.BuildIdentity{}
	d, transport := newDispatcher(t, ipsw.NewFake(), identity)
	d.Ctx.Ticket = plist.Dict{"ApImg4Ticket": []byte{0xBB}}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "RootTicket"}))
	require.NoError(t, err)

	data, ok := transport.sent[0].Data("RootTicketData")
	require.True(t, ok)
	assert.Equal(t, []byte{0xBB}, data)
}

func TestHandleDataRequestPersonalizedBootObjectV3ChunksAndPersonalizes(t *testing.T) {
	payload := make([]byte, 20000)
	for i := range payload {
		payload[i] = byte(i % 251)
	}
	archive := ipsw.NewFake().Add("KernelCache.im4p", payload)
	identity := buildid.BuildIdentity{
		Manifest: map[string]buildid.ManifestEntry{
			"KernelCache": {Info: buildid.ComponentInfo{Path: "KernelCache.im4p"}},
		},
	}
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType":  "PersonalizedBootObjectV3",
		"ImageName": "KernelCache",
	}))
	require.NoError(t, err)

	require.Greater(t, len(transport.sent), 1)
	last := transport.sent[len(transport.sent)-1]
	done, ok := last.Bool("FileDataDone")
	require.True(t, ok)
	assert.True(t, done)

	var reassembled []byte
	for _, msg := range transport.sent[:len(transport.sent)-1] {
		chunk, ok := msg.Data("FileData")
		require.True(t, ok)
		reassembled = append(reassembled, chunk...)
	}
	assert.Equal(t, append([]byte("signed:"), payload...), reassembled)
}

func TestHandleDataRequestSourceBootObjectV4SendsRawBytes(t *testing.T) {
	archive := ipsw.NewFake().Add("DeviceTree.im4p", []byte("raw-devicetree"))
	identity := buildid.BuildIdentity{
		Manifest: map[string]buildid.ManifestEntry{
			"DeviceTree": {Info: buildid.ComponentInfo{Path: "DeviceTree.im4p"}},
		},
	}
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType":  "SourceBootObjectV4",
		"ImageName": "DeviceTree",
	}))
	require.NoError(t, err)

	chunk, ok := transport.sent[0].Data("FileData")
	require.True(t, ok)
	assert.Equal(t, "raw-devicetree", string(chunk))
}

func TestHandleDataRequestUnknownDataTypeIsIgnored(t *testing.T) {
	d, transport := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "SomethingNew"}))
	require.NoError(t, err)
	assert.Empty(t, transport.sent)
}

func TestHandleDataRequestFDRTrustDataRepliesEmptyDict(t *testing.T) {
	d, transport := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "FDRTrustData"}))
	require.NoError(t, err)
	assert.Equal(t, plist.Dict{}, transport.sent[0])
}

type fakeSecondaryConnector struct {
	conn *fakeConn
	err  error
}

func (f *fakeSecondaryConnector) Connect(uint16) (device.ReadWriteCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conn, nil
}

type fakeConn struct {
	buf    []byte
	closed bool
}

func (c *fakeConn) Read(p []byte) (int, error)  { return 0, io.EOF }
func (c *fakeConn) Write(p []byte) (int, error) { c.buf = append(c.buf, p...); return len(p), nil }
func (c *fakeConn) Close() error                { c.closed = true; return nil }

func TestHandleDataRequestBootabilityBundleStreamsMatchingMembersAndTrailer(t *testing.T) {
	archive := ipsw.NewFake().
		Add("BootabilityBundle/Restore/Bootability/bootability.bin", []byte("bootability-payload")).
		Add("BootabilityBundle/Restore/Firmware/Bootability.dmg.trustcache", []byte("trustcache-bytes")).
		Add("SomeOtherFile.txt", []byte("skip-me"))
	d, _ := newDispatcher(t, archive, buildid.BuildIdentity{})
	conn := &fakeConn{}
	d.SecondaryConnector = &fakeSecondaryConnector{conn: conn}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType": "BootabilityBundle",
		"DataPort": int64(1234),
	}))
	require.NoError(t, err)
	assert.True(t, conn.closed)
	assert.Contains(t, string(conn.buf), "bootability.bin")
	assert.Contains(t, string(conn.buf), "Bootability.trustcache")
	assert.NotContains(t, string(conn.buf), "SomeOtherFile.txt")
	assert.Contains(t, string(conn.buf), "TRAILER!!!")
}

func TestHandleDataRequestBootabilityBundlePropagatesConnectFailure(t *testing.T) {
	d, _ := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	d.SecondaryConnector = &fakeSecondaryConnector{err: errors.New("connection refused")}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType": "BootabilityBundle",
		"DataPort": int64(1234),
	}))
	assert.Error(t, err)
}

type fakeASR struct {
	percents []int
	err      error
}

func (f *fakeASR) Stream(ctx context.Context, payload io.ReadSeeker, progress func(int)) error {
	progress(50)
	progress(100)
	return f.err
}

func TestHandleDataRequestSystemImageDataStreamsViaASR(t *testing.T) {
	d, _ := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	tmp := t.TempDir() + "/system.dmg"
	require.NoError(t, os.WriteFile(tmp, []byte("image-bytes"), 0644))
	d.Ctx.SystemImagePath = tmp
	asr := &fakeASR{}
	d.ASR = asr

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "SystemImageData"}))
	require.NoError(t, err)
}
