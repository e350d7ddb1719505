package device

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// txPowerUnavailable is the TX power level reported when the advertisement carries none
const txPowerUnavailable = 127

// Peripheral is a snapshot of a discovered peripheral
type Peripheral struct {
	Address            string            `json:"address"`
	Name               string            `json:"name,omitempty"`
	RSSI               int               `json:"rssi"`
	TxPower            *int              `json:"tx_power,omitempty"`
	Connectable        bool              `json:"connectable"`
	AdvertisedServices []string          `json:"services,omitempty"`
	ManufacturerData   []byte            `json:"manufacturer_data,omitempty"`
	ServiceData        map[string][]byte `json:"service_data,omitempty"`
	LastSeen           time.Time         `json:"last_seen"`
}

// NewPeripheral builds a Peripheral from an advertising report
func NewPeripheral(adv Advertisement, seenAt time.Time) Peripheral {
	p := Peripheral{
		Address:          adv.Addr(),
		Name:             adv.LocalName(),
		RSSI:             adv.RSSI(),
		Connectable:      adv.Connectable(),
		ManufacturerData: adv.ManufacturerData(),
		LastSeen:         seenAt,
	}

	for _, uuid := range adv.Services() {
		p.AdvertisedServices = append(p.AdvertisedServices, NormalizeUUID(uuid))
	}
	sort.Strings(p.AdvertisedServices)

	if sd := adv.ServiceData(); len(sd) > 0 {
		p.ServiceData = make(map[string][]byte, len(sd))
		for _, svcData := range sd {
			p.ServiceData[NormalizeUUID(svcData.UUID)] = svcData.Data
		}
	}

	if adv.TxPowerLevel() != txPowerUnavailable {
		txPower := adv.TxPowerLevel()
		p.TxPower = &txPower
	}

	if p.Name == "" {
		p.Name = nameFromManufacturerData(p.ManufacturerData)
	}

	return p
}

// DisplayName returns the advertised name, or the address when there is none
func (p Peripheral) DisplayName() string {
	if p.Name == "" {
		return p.Address
	}
	return p.Name
}

// Advertises reports whether any of the normalized service UUIDs is advertised
func (p Peripheral) Advertises(uuids ...string) bool {
	for _, want := range uuids {
		for _, have := range p.AdvertisedServices {
			if want == have {
				return true
			}
		}
	}
	return false
}

// nameFromManufacturerData picks a printable run after the 2-byte company ID.
// Some vendors put the device name there instead of the local name field.
func nameFromManufacturerData(data []byte) string {
	if len(data) <= 2 {
		return ""
	}

	var b strings.Builder
	for _, c := range data[2:] {
		r := rune(c)
		if c >= 0x80 || !unicode.IsPrint(r) {
			break
		}
		b.WriteRune(r)
	}

	name := strings.TrimSpace(b.String())
	if len(name) < 3 {
		return ""
	}
	return name
}
