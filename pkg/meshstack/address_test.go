package meshstack

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddressHash(t *testing.T) {
	upper := strings.ToUpper(strings.Repeat("ab12", 16))

	normalized, err := NormalizeAddressHash(upper)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab12", 16), normalized)

	// Already-normalized input passes through unchanged.
	again, err := NormalizeAddressHash(normalized)
	require.NoError(t, err)
	assert.Equal(t, normalized, again)
}

func TestNormalizeAddressHashRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"abc123",                          // too short
		strings.Repeat("a", 63),           // off by one
		strings.Repeat("a", 65),           // off by one
		strings.Repeat("g", 64),           // not hex
		strings.Repeat("a", 62) + "zz",    // trailing non-hex
		"0x" + strings.Repeat("a", 62),    // hex prefix not accepted
	}

	for _, input := range cases {
		_, err := NormalizeAddressHash(input)
		assert.ErrorIs(t, err, ErrInvalidAddressHash, "input %q", input)
	}
}

func TestTransportConfigSetDefaults(t *testing.T) {
	var cfg TransportConfig
	cfg.SetDefaults()

	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, int64(DefaultFrequency), cfg.Frequency)
	assert.Equal(t, DefaultBandwidth, cfg.Bandwidth)
	assert.Equal(t, DefaultTXPower, cfg.TXPower)
	assert.Equal(t, DefaultSpreadingFactor, cfg.SpreadingFactor)
	assert.Equal(t, DefaultCodingRate, cfg.CodingRate)
}

func TestTransportConfigSetDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := TransportConfig{Frequency: 868000000, SpreadingFactor: 12}
	cfg.SetDefaults()

	assert.Equal(t, int64(868000000), cfg.Frequency)
	assert.Equal(t, 12, cfg.SpreadingFactor)
	assert.Equal(t, DefaultBaudRate, cfg.BaudRate)
	assert.Equal(t, DefaultTXPower, cfg.TXPower)
}
