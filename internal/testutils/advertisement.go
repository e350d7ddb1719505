package testutils

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/swft/internal/device"
	goble "github.com/srg/swft/internal/device/go-ble"
)

// noTxPower matches what go-ble reports when the TX power field is absent
const noTxPower = 127

// fakeAddr keeps the address exactly as given (ble.NewAddr lowercases it)
type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

// fakeAdvertisement is a static ble.Advertisement
type fakeAdvertisement struct {
	name        string
	addr        fakeAddr
	rssi        int
	services    []ble.UUID
	manufData   []byte
	serviceData []ble.ServiceData
	txPower     int
	connectable bool
}

func (a *fakeAdvertisement) LocalName() string              { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte       { return a.manufData }
func (a *fakeAdvertisement) ServiceData() []ble.ServiceData { return a.serviceData }
func (a *fakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *fakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *fakeAdvertisement) TxPowerLevel() int              { return a.txPower }
func (a *fakeAdvertisement) Connectable() bool              { return a.connectable }
func (a *fakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *fakeAdvertisement) RSSI() int                      { return a.rssi }
func (a *fakeAdvertisement) Addr() ble.Addr                 { return a.addr }

// AdvertisementBuilder builds fake BLE advertisements for testing.
type AdvertisementBuilder struct {
	adv fakeAdvertisement
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement without TX power.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		adv: fakeAdvertisement{
			txPower:     noTxPower,
			connectable: true,
		},
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.addr = fakeAddr(addr)
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "180D") or full form. Panics on malformed input.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	for _, u := range uuids {
		b.adv.services = append(b.adv.services, mustParseUUID(u))
	}
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.adv.manufData = data
	return b
}

// WithServiceData adds service-specific data for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.adv.serviceData = append(b.adv.serviceData, ble.ServiceData{UUID: mustParseUUID(uuid), Data: data})
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.adv.txPower = power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.adv.connectable = c
	return b
}

// Build returns the advertisement as go-ble would deliver it.
func (b *AdvertisementBuilder) Build() ble.Advertisement {
	adv := b.adv
	return &adv
}

// BuildDevice returns the advertisement wrapped by the go-ble adapter.
func (b *AdvertisementBuilder) BuildDevice() device.Advertisement {
	return goble.NewBLEAdvertisement(b.Build())
}

func mustParseUUID(s string) ble.UUID {
	u, err := ble.Parse(s)
	if err != nil {
		panic(fmt.Sprintf("testutils: invalid UUID %q: %v", s, err))
	}
	return u
}
