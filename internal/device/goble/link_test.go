package goble

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertProperties(t *testing.T) {
	p := convertProperties(ble.CharRead | ble.CharNotify)
	assert.Equal(t, device.PropRead|device.PropNotify, p)
	assert.True(t, p.CanNotify())

	p = convertProperties(ble.CharWrite | ble.CharWriteNR)
	assert.False(t, p.CanNotify())
	assert.Equal(t, device.PropWrite|device.PropWriteWithoutResponse, p)

	assert.True(t, convertProperties(ble.CharIndicate).CanNotify())
}

func TestDescriptorUUIDs(t *testing.T) {
	cccd := &ble.Descriptor{UUID: ble.UUID16(0x2902)}
	userDesc := &ble.Descriptor{UUID: ble.UUID16(0x2901)}

	t.Run("reported descriptors", func(t *testing.T) {
		bc := &ble.Characteristic{Descriptors: []*ble.Descriptor{userDesc, cccd}, CCCD: cccd}
		assert.Equal(t, []string{"2901", "2902"}, descriptorUUIDs(bc, device.PropNotify, false))
	})

	t.Run("hidden CCCD is implied for notifiable characteristics", func(t *testing.T) {
		bc := &ble.Characteristic{}
		assert.Equal(t, []string{bledb.ClientCharacteristicConfiguration}, descriptorUUIDs(bc, device.PropNotify, true))
		assert.Empty(t, descriptorUUIDs(bc, device.PropRead, true))
	})

	t.Run("missing CCCD stays missing where the OS reports it", func(t *testing.T) {
		bc := &ble.Characteristic{Descriptors: []*ble.Descriptor{userDesc}}
		assert.Equal(t, []string{"2901"}, descriptorUUIDs(bc, device.PropNotify, false))
	})
}

func TestConvertProfile(t *testing.T) {
	// GOAL: Verify a discovered go-ble profile resolves through the device helpers
	//
	// TEST SCENARIO: BM1000 profile → FindService/FindCharacteristic → notifiable characteristic with CCCD

	cccd := &ble.Descriptor{UUID: ble.UUID16(0x2902)}
	profile := &ble.Profile{Services: []*ble.Service{
		{UUID: ble.UUID16(0x180a)},
		{
			UUID: ble.MustParse("49535343-fe7d-4ae5-8fa9-9fafd205e455"),
			Characteristics: []*ble.Characteristic{{
				UUID:        ble.MustParse("49535343-1e4d-4bd9-ba61-23c647249616"),
				Property:    ble.CharNotify | ble.CharWrite,
				Descriptors: []*ble.Descriptor{cccd},
				CCCD:        cccd,
			}},
		},
	}}

	services := convertProfile(profile)
	require.Len(t, services, 2)

	svc, err := device.FindService(services, bledb.OximeterService)
	require.NoError(t, err)
	assert.Equal(t, "BerryMed Transparent UART", svc.(*BLEService).KnownName())

	char, err := device.FindCharacteristic(svc, "49535343-1E4D-4BD9-BA61-23C647249616")
	require.NoError(t, err)
	assert.True(t, char.Properties().CanNotify())
	assert.True(t, device.HasDescriptor(char, bledb.ClientCharacteristicConfiguration))
	assert.Equal(t, bledb.OximeterCharacteristic, char.UUID())

	assert.Nil(t, convertProfile(nil))
}

type fakeAdvertisement struct {
	ble.Advertisement
	name     string
	services []ble.UUID
	overflow []ble.UUID
	addr     ble.Addr
}

func (a fakeAdvertisement) LocalName() string          { return a.name }
func (a fakeAdvertisement) Services() []ble.UUID        { return a.services }
func (a fakeAdvertisement) OverflowService() []ble.UUID { return a.overflow }
func (a fakeAdvertisement) RSSI() int                   { return -42 }
func (a fakeAdvertisement) Connectable() bool           { return true }
func (a fakeAdvertisement) Addr() ble.Addr              { return a.addr }

func TestAdvertisement(t *testing.T) {
	adv := NewBLEAdvertisement(fakeAdvertisement{
		name:     "WearableDistancia6MWT",
		services: []ble.UUID{ble.MustParse("4fafc201-1fb5-459e-8fcc-c5c9c331914b")},
		overflow: []ble.UUID{ble.UUID16(0x180f)},
		addr:     ble.NewAddr("AA:BB:CC:DD:EE:FF"),
	})

	assert.Equal(t, "WearableDistancia6MWT", adv.LocalName())
	assert.Equal(t, []string{bledb.WearableService, "180f"}, adv.Services())
	assert.Equal(t, -42, adv.RSSI())
	assert.True(t, adv.Connectable())
	assert.True(t, strings.EqualFold("AA:BB:CC:DD:EE:FF", adv.Addr()))
}

// discoveryClient answers profile discovery; the rest of ble.Client is unused.
type discoveryClient struct {
	ble.Client
	profile *ble.Profile
	panics  bool
	down    chan struct{}
}

func (c *discoveryClient) DiscoverProfile(bool) (*ble.Profile, error) {
	if c.panics {
		panic("stack fault during discovery")
	}
	return c.profile, nil
}

func (c *discoveryClient) Disconnected() <-chan struct{} { return c.down }

func newDiscoveryLink(t *testing.T, client *discoveryClient) *BLELink {
	client.down = make(chan struct{})
	l := newLink("AA:BB", client, logrus.NewEntry(logrus.New()))
	t.Cleanup(l.cancel)
	return l
}

func TestDiscoverServices(t *testing.T) {
	t.Run("returns converted profile", func(t *testing.T) {
		profile := &ble.Profile{Services: []*ble.Service{{
			UUID: ble.MustParse("4fafc201-1fb5-459e-8fcc-c5c9c331914b"),
			Characteristics: []*ble.Characteristic{{
				UUID:     ble.MustParse("beb5483e-36e1-4688-b7f5-ea07361b26a8"),
				Property: ble.CharRead | ble.CharNotify,
			}},
		}}}
		l := newDiscoveryLink(t, &discoveryClient{profile: profile})

		services, err := l.DiscoverServices(context.Background())
		require.NoError(t, err)
		require.Len(t, services, 1)
		assert.Equal(t, bledb.WearableService, services[0].UUID())
	})

	t.Run("panicking stack is contained", func(t *testing.T) {
		// GOAL: Verify a panic inside go-ble discovery is recovered and the caller gives up on ctx
		l := newDiscoveryLink(t, &discoveryClient{panics: true})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := l.DiscoverServices(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "discovery MUST end with the caller's deadline after a recovered panic")
	})

	t.Run("link loss ends discovery", func(t *testing.T) {
		client := &discoveryClient{panics: true}
		l := newDiscoveryLink(t, client)
		close(client.down)

		_, err := l.DiscoverServices(context.Background())
		assert.ErrorIs(t, err, device.ErrNotConnected)
	})
}
