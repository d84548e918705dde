package meshstack

// Default radio parameters applied to unset TransportConfig fields.
const (
	DefaultBaudRate        = 115200
	DefaultFrequency       = 915000000
	DefaultBandwidth       = 125000
	DefaultTXPower         = 17
	DefaultSpreadingFactor = 8
	DefaultCodingRate      = 5
)

// TransportConfig holds the numeric parameters of a radio transport. The
// JSON field names match the add_rnode command's config map.
type TransportConfig struct {
	// BaudRate is the serial line rate in bits per second.
	BaudRate int `json:"baudRate"`

	// Frequency is the radio center frequency in Hz.
	Frequency int64 `json:"frequency"`

	// Bandwidth is the channel bandwidth in Hz.
	Bandwidth int `json:"bandwidth"`

	// TXPower is the transmit power in dBm.
	TXPower int `json:"txPower"`

	// SpreadingFactor is the LoRa spreading factor (7-12).
	SpreadingFactor int `json:"spreadingFactor"`

	// CodingRate is the LoRa coding rate denominator (4/CodingRate).
	CodingRate int `json:"codingRate"`
}

// SetDefaults fills every unset (non-positive) field with its documented
// default value.
func (c *TransportConfig) SetDefaults() {
	if c.BaudRate <= 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Frequency <= 0 {
		c.Frequency = DefaultFrequency
	}
	if c.Bandwidth <= 0 {
		c.Bandwidth = DefaultBandwidth
	}
	if c.TXPower <= 0 {
		c.TXPower = DefaultTXPower
	}
	if c.SpreadingFactor <= 0 {
		c.SpreadingFactor = DefaultSpreadingFactor
	}
	if c.CodingRate <= 0 {
		c.CodingRate = DefaultCodingRate
	}
}
