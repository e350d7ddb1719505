package peripherals_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/swft/internal/central"
	"github.com/srg/swft/internal/device"
	"github.com/srg/swft/internal/peripherals"
	"github.com/srg/swft/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func peripheral(addr, name string, rssi int, services ...string) device.Peripheral {
	return device.Peripheral{Address: addr, Name: name, RSSI: rssi, AdvertisedServices: services}
}

func addresses(entries []peripherals.Entry) []string {
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Address
	}
	return result
}

func TestList_FirstSeenOrder(t *testing.T) {
	l := peripherals.NewList(nil)

	l.DidDiscoverPeripheral(peripheral("B", "beta", -50))
	l.DidDiscoverPeripheral(peripheral("A", "alpha", -60))
	l.DidDiscoverPeripheral(peripheral("B", "beta", -40))
	l.DidDiscoverPeripheral(peripheral("C", "", -70))

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []string{"B", "A", "C"}, addresses(l.Snapshot()))

	b, ok := l.At(0)
	require.True(t, ok)
	assert.Equal(t, -40, b.RSSI)
	assert.Equal(t, 2, b.Sightings)

	_, ok = l.At(3)
	assert.False(t, ok)
	_, ok = l.At(-1)
	assert.False(t, ok)
}

func TestList_PartialReportKeepsEarlierData(t *testing.T) {
	l := peripherals.NewList(nil)
	tx := 4

	first := peripheral("A", "alpha", -60, "180f")
	first.TxPower = &tx
	first.ManufacturerData = []byte{0x4c, 0x00}
	l.DidDiscoverPeripheral(first)
	l.DidDiscoverPeripheral(peripheral("A", "", -55))

	e, ok := l.Get("A")
	require.True(t, ok)
	assert.Equal(t, "alpha", e.Name)
	assert.Equal(t, -55, e.RSSI)
	assert.Equal(t, []string{"180f"}, e.AdvertisedServices)
	assert.Equal(t, []byte{0x4c, 0x00}, e.ManufacturerData)
	require.NotNil(t, e.TxPower)
	assert.Equal(t, 4, *e.TxPower)
}

func TestList_ConnectionTracking(t *testing.T) {
	l := peripherals.NewList(nil)

	l.DidDiscoverPeripheral(peripheral("A", "alpha", -60))
	l.DidConnectPeripheral(peripheral("A", "alpha", -60))
	l.DidConnectPeripheral(peripheral("Z", "", 0))

	a, _ := l.Get("A")
	assert.True(t, a.Connected)
	z, ok := l.Get("Z")
	require.True(t, ok, "connecting to an unseen peripheral adds it")
	assert.True(t, z.Connected)

	// a later advertisement must not clear the flag
	l.DidDiscoverPeripheral(peripheral("A", "alpha", -58))
	a, _ = l.Get("A")
	assert.True(t, a.Connected)

	l.DidDisconnectPeripheral(peripheral("A", "alpha", -58), central.ErrConnectionLost)
	a, _ = l.Get("A")
	assert.False(t, a.Connected)

	// unknown peripherals are ignored
	l.DidDisconnectPeripheral(peripheral("Q", "", 0), nil)
	assert.Equal(t, 2, l.Len())

	l.DidUpdateState(central.StatePoweredOff)
	z, _ = l.Get("Z")
	assert.False(t, z.Connected)
	assert.Equal(t, central.StatePoweredOff, l.State())
}

func TestList_Reset(t *testing.T) {
	l := peripherals.NewList(nil)
	l.DidDiscoverPeripheral(peripheral("A", "alpha", -60))

	l.Reset()

	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Snapshot())

	l.DidDiscoverPeripheral(peripheral("B", "beta", -60))
	assert.Equal(t, []string{"B"}, addresses(l.Snapshot()))
}

func TestList_SnapshotIsACopy(t *testing.T) {
	l := peripherals.NewList(nil)
	l.DidDiscoverPeripheral(peripheral("A", "alpha", -60))

	snap := l.Snapshot()
	snap[0].Name = "changed"

	e, _ := l.Get("A")
	assert.Equal(t, "alpha", e.Name)
}

func TestList_ObservesManager(t *testing.T) {
	fake := testutils.NewFakeCentral(
		testutils.NewAdvertisementBuilder().WithAddress("AA:00:00:00:00:01").WithName("One").BuildDevice(),
		testutils.NewAdvertisementBuilder().WithAddress("AA:00:00:00:00:02").WithName("Two").BuildDevice(),
		testutils.NewAdvertisementBuilder().WithAddress("AA:00:00:00:00:01").WithRSSI(-30).BuildDevice(),
	)
	logger := logrus.New()
	m := central.New(fake.Factory(), logger, nil)
	l := peripherals.NewList(logger)
	require.NoError(t, m.AddObserver(l))

	require.NoError(t, m.PowerOn())
	require.NoError(t, m.StartScanning(context.Background(), nil))
	select {
	case <-fake.Scanning():
	case <-time.After(2 * time.Second):
		t.Fatal("scan did not start")
	}

	assert.Equal(t, central.StatePoweredOn, l.State())
	assert.Equal(t, []string{"AA:00:00:00:00:01", "AA:00:00:00:00:02"}, addresses(l.Snapshot()))
	one, _ := l.Get("AA:00:00:00:00:01")
	assert.Equal(t, "One", one.Name)
	assert.Equal(t, -30, one.RSSI)

	require.NoError(t, m.Connect(context.Background(), "AA:00:00:00:00:02"))
	two, _ := l.Get("AA:00:00:00:00:02")
	assert.True(t, two.Connected)

	require.NoError(t, m.PowerOff())
	two, _ = l.Get("AA:00:00:00:00:02")
	assert.False(t, two.Connected)
	assert.Equal(t, central.StatePoweredOff, l.State())
}
