package dispatch_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/device"
	"github.com/restored-go/restored/restore/ipsw"
	"github.com/restored-go/restored/restore/plist"
)

func fudIdentity() (ipsw.Archive, buildid.BuildIdentity) {
	archive := ipsw.NewFake().
		Add("Firmware/FUD1.im4p", []byte("fud1-bytes")).
		Add("Firmware/FUD2.im4p", []byte("fud2-bytes")).
		Add("Firmware/NotFUD.im4p", []byte("not-fud-bytes"))
	identity := buildid.BuildIdentity{
		Manifest: map[string]buildid.ManifestEntry{
			"FUD1":   {Info: buildid.ComponentInfo{Path: "Firmware/FUD1.im4p", IsFUDFirmware: true}},
			"FUD2":   {Info: buildid.ComponentInfo{Path: "Firmware/FUD2.im4p", IsFUDFirmware: true}},
			"NotFUD": {Info: buildid.ComponentInfo{Path: "Firmware/NotFUD.im4p"}},
		},
	}
	return archive, identity
}

func TestHandleDataRequestFUDDataListModeReturnsNames(t *testing.T) {
	archive, identity := fudIdentity()
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType":     "FUDData",
		"FUDImageList": true,
	}))
	require.NoError(t, err)

	list, ok := transport.sent[0].Array("FUDImageList")
	require.True(t, ok)
	assert.Len(t, list, 2)
}

func TestHandleDataRequestFUDDataSingleNamedImage(t *testing.T) {
	archive, identity := fudIdentity()
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType":  "FUDData",
		"ImageName": "FUD1",
	}))
	require.NoError(t, err)

	data, ok := transport.sent[0].Data("FUDImageData")
	require.True(t, ok)
	assert.Equal(t, "signed:fud1-bytes", string(data))
	name, ok := transport.sent[0].String("ImageName")
	require.True(t, ok)
	assert.Equal(t, "FUD1", name)
}

func TestHandleDataRequestFUDDataRejectsNonFUDNamedImage(t *testing.T) {
	archive, identity := fudIdentity()
	d, _ := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{
		"DataType":  "FUDData",
		"ImageName": "NotFUD",
	}))
	assert.Error(t, err)
}

func TestHandleDataRequestFUDDataFullDictMode(t *testing.T) {
	archive, identity := fudIdentity()
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "FUDData"}))
	require.NoError(t, err)

	images, ok := transport.sent[0].Dict("FUDImageData")
	require.True(t, ok)
	assert.Len(t, images, 2)
}

func TestHandleDataRequestKernelCacheSingleComponent(t *testing.T) {
	archive := ipsw.NewFake().Add("kernelcache.im4p", []byte("kernel-bytes"))
	identity := buildid.BuildIdentity{
		Manifest: map[string]buildid.ManifestEntry{
			"KernelCache": {Info: buildid.ComponentInfo{Path: "kernelcache.im4p"}},
		},
	}
	d, transport := newDispatcher(t, archive, identity)

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "KernelCache"}))
	require.NoError(t, err)

	data, ok := transport.sent[0].Data("KernelCacheFile")
	require.True(t, ok)
	assert.Equal(t, "signed:kernel-bytes", string(data))
}

func TestHandleDataRequestRecoveryOSLocalPolicyPersonalizesEmbeddedTemplate(t *testing.T) {
	d, transport := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	d.Ctx.LPolFile = []byte("lpol-template")
	d.Ctx.LocalPolicyTicket = plist.Dict{"Ap,LocalPolicy-Blob": []byte{0x01}}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "RecoveryOSLocalPolicy"}))
	require.NoError(t, err)

	data, ok := transport.sent[0].Data("Ap,LocalPolicy")
	require.True(t, ok)
	assert.Equal(t, "signed:lpol-template", string(data))
}

func TestHandleDataRequestRecoveryOSLocalPolicyFallsBackToDefaultTemplate(t *testing.T) {
	d, transport := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	d.Ctx.LocalPolicyTicket = plist.Dict{"Ap,LocalPolicy-Blob": []byte{0x01}}

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "RecoveryOSLocalPolicy"}))
	require.NoError(t, err)

	_, ok := transport.sent[0].Data("Ap,LocalPolicy")
	require.True(t, ok)
}

func TestHandleDataRequestRecoveryOSLocalPolicyAcquiresTicketOnceViaTSS(t *testing.T) {
	d, transport := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	d.Ctx.LPolFile = []byte("lpol-template")
	client := &fakeTSSClient{response: plist.Dict{"Ap,LocalPolicy-Blob": []byte{0x01}}}
	d.Ctx.TSSClient = client
	d.Ctx.TSSURL = "https://tss.example/"

	req := device.Envelope(plist.Dict{
		"DataType":  "RecoveryOSLocalPolicy",
		"Arguments": plist.Dict{"DeviceID": int64(1)},
	})

	require.NoError(t, d.HandleDataRequest(req))
	require.NoError(t, d.HandleDataRequest(req))

	assert.Equal(t, 1, client.calls, "second visit must reuse the cached local-policy ticket, not request again")
	require.Len(t, transport.sent, 2)
	for _, reply := range transport.sent {
		data, ok := reply.Data("Ap,LocalPolicy")
		require.True(t, ok)
		assert.Equal(t, "signed:lpol-template", string(data))
	}
}

func TestHandleDataRequestRecoveryOSLocalPolicyPropagatesTSSError(t *testing.T) {
	d, _ := newDispatcher(t, ipsw.NewFake(), buildid.BuildIdentity{})
	d.Ctx.LPolFile = []byte("lpol-template")
	d.Ctx.TSSClient = &fakeTSSClient{err: errors.New("tss unreachable")}
	d.Ctx.TSSURL = "https://tss.example/"

	err := d.HandleDataRequest(device.Envelope(plist.Dict{"DataType": "RecoveryOSLocalPolicy"}))
	assert.Error(t, err)
}
