package tssrequest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restored-go/restored/restore/buildid"
	"github.com/restored-go/restored/restore/plist"
	"github.com/restored-go/restored/restore/tssrequest"
)

func TestCommonParamsCopiesDigestsAndECID(t *testing.T) {
	identity := buildid.BuildIdentity{
		Manifest: map[string]buildid.ManifestEntry{
			"KernelCache": {Digest: []byte{1, 2, 3}},
			"NoDigest":    {},
		},
	}
	params := tssrequest.CommonParams(identity, 0xdeadbeef)

	assert.EqualValues(t, 0xdeadbeef, params["ApECID"])

	kc, ok := params.Dict("KernelCache")
	require.True(t, ok)
	data, ok := kc.Data("Digest")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)

	_, ok = params["NoDigest"]
	assert.False(t, ok)
}

func TestAddTimerTagsMinesHardwareID(t *testing.T) {
	params := plist.Dict{}
	info := plist.Dict{
		"InfoArray": []any{
			plist.Dict{
				"HardwareID": plist.Dict{
					"ChipID":           "0x1234",
					"Nonce":            []byte{9, 9},
					"ProductionStatus": true,
				},
			},
		},
	}

	tssrequest.AddTimerTags(params, info, 7)

	assert.Equal(t, "0x1234", params["Timer,ChipID,7"])
	assert.Equal(t, []byte{9, 9}, params["Timer,Nonce,7"])
	assert.Equal(t, true, params["Timer,ProductionMode,7"])
}

func TestAddLocalPolicyTagsMergesArgumentsWholesale(t *testing.T) {
	params := plist.Dict{"ApECID": uint64(1)}
	args := plist.Dict{"DeviceID": int64(42), "NonceHashAlgorithm": "sha2-384"}

	tssrequest.AddLocalPolicyTags(params, args)

	assert.Equal(t, int64(42), params["DeviceID"])
	assert.Equal(t, "sha2-384", params["NonceHashAlgorithm"])
	assert.Equal(t, uint64(1), params["ApECID"])
}

func TestAddProductionModeTags(t *testing.T) {
	params := plist.Dict{}
	tssrequest.AddProductionModeTags(params, true)
	assert.Equal(t, true, params["ApProductionMode"])
	assert.Equal(t, true, params["ApSecurityMode"])
	assert.Equal(t, true, params["ApSupportsImg4"])
}
