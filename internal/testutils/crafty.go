package testutils

import (
	"encoding/binary"

	"github.com/srg/crafty/internal/catalog"
)

// LE16 encodes v as a two-byte little-endian payload.
func LE16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

// Values of the default heater profile.
const (
	CraftyTemperature uint16 = 1805 // 180.5 °C
	CraftySetPoint    uint16 = 1850
	CraftyBoost       uint16 = 150
	CraftyBattery     uint16 = 87
	CraftyLED         uint16 = 40
	CraftySettings    uint16 = 0
	CraftyHours       uint16 = 42
	CraftySerial             = "CY12345678"
	CraftyModel              = "Crafty+"
	CraftyFirmware           = "02.51"
)

var craftyValues = map[string][]byte{
	catalog.Temperature:        LE16(CraftyTemperature),
	catalog.SetPoint:           LE16(CraftySetPoint),
	catalog.Boost:              LE16(CraftyBoost),
	catalog.Battery:            LE16(CraftyBattery),
	catalog.LED:                LE16(CraftyLED),
	catalog.Serial:             []byte(CraftySerial + "\x00\x00"),
	catalog.Model:              []byte(CraftyModel),
	catalog.FirmwareVersion:    []byte(CraftyFirmware),
	catalog.FirmwareBLE:        []byte("01.05"),
	catalog.Bootloader:         []byte("00.10"),
	catalog.HoursOfOperation:   LE16(CraftyHours),
	catalog.Settings:           LE16(CraftySettings),
	catalog.Power:              LE16(1),
	catalog.BoostHeat:          LE16(0),
	catalog.Charge:             LE16(0),
	catalog.MinutesOfOperation: LE16(17),
	catalog.BatteryVoltage:     LE16(4012),
	catalog.BatteryCapacity:    LE16(2600),
	catalog.ChargeCurrent:      LE16(500),
	catalog.HeaterRuntime:      LE16(3600),
	catalog.UsageCounter:       LE16(300),
	catalog.AmbientTemperature: LE16(215),
}

var craftyWritable = map[string]bool{
	catalog.SetPoint: true,
	catalog.Boost:    true,
	catalog.LED:      true,
	catalog.Settings: true,
}

// NewCraftyBuilder returns a builder pre-populated with every catalog service and
// characteristic of the heater, holding plausible values.
func NewCraftyBuilder() *PeripheralBuilder {
	b := NewPeripheralBuilder()
	for _, svc := range []string{catalog.DataService, catalog.MetaService, catalog.MiscService} {
		b.WithService(svc)
		for _, d := range catalog.InService(svc) {
			props := "read"
			if craftyWritable[d.UUID] {
				props += ",write"
			}
			if d.Notify {
				props += ",notify"
			}
			b.WithCharacteristic(d.UUID, props, craftyValues[d.UUID])
		}
	}
	return b
}
