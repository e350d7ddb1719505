package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/swft/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string        { return a.adv.LocalName() }
func (a *BLEAdvertisement) ManufacturerData() []byte { return a.adv.ManufacturerData() }
func (a *BLEAdvertisement) TxPowerLevel() int        { return a.adv.TxPowerLevel() }
func (a *BLEAdvertisement) Connectable() bool        { return a.adv.Connectable() }
func (a *BLEAdvertisement) RSSI() int                { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

func (a *BLEAdvertisement) ServiceData() []struct {
	UUID string
	Data []byte
} {
	bleServiceData := a.adv.ServiceData()
	result := make([]struct {
		UUID string
		Data []byte
	}, len(bleServiceData))
	for i, sd := range bleServiceData {
		result[i].UUID = sd.UUID.String()
		result[i].Data = sd.Data
	}
	return result
}

// Services returns the advertised service UUIDs, overflow area included
func (a *BLEAdvertisement) Services() []string {
	result := make([]string, 0, len(a.adv.Services())+len(a.adv.OverflowService()))
	for _, svc := range a.adv.Services() {
		result = append(result, svc.String())
	}
	for _, svc := range a.adv.OverflowService() {
		result = append(result, svc.String())
	}
	return result
}

// Unwrap returns the underlying ble.Advertisement
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
