package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestSDHex(t *testing.T) {
	tests := []struct {
		name string
		sd   *int
		want string
	}{
		{name: "absent maps to sentinel", sd: nil, want: "0xffffff"},
		{name: "small value", sd: intPtr(18), want: "0x12"},
		{name: "multi byte value", sd: intPtr(12555), want: "0x310b"},
		{name: "upper bound", sd: intPtr(16777215), want: "0xffffff"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SDHex(tc.sd))
		})
	}
}

func TestRenderSubstitutesAllParams(t *testing.T) {
	out, err := Render(Params{
		IMSI:  "208930100007487",
		Key:   "5122250214c33e723a5dd523fc145fc0",
		OPC:   "981d464c7c52eb6e5036234984ad0bcf",
		DNN:   "internet",
		SST:   1,
		SDHex: "0x12",
	})
	require.NoError(t, err)
	assert.Contains(t, out, `imsi = "208930100007487";`)
	assert.Contains(t, out, `key = "5122250214c33e723a5dd523fc145fc0";`)
	assert.Contains(t, out, `opc = "981d464c7c52eb6e5036234984ad0bcf";`)
	assert.Contains(t, out, `dnn = "internet";`)
	assert.Contains(t, out, "nssai_sst = 1;")
	assert.Contains(t, out, "nssai_sd = 0x12;")
	assert.Contains(t, out, "telnetsrv")
}

func TestRenderIsDeterministic(t *testing.T) {
	p := Params{IMSI: "001010100007487", Key: "0", OPC: "0", DNN: "oai", SST: 2, SDHex: "0xffffff"}
	first, err := Render(p)
	require.NoError(t, err)
	second, err := Render(p)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
