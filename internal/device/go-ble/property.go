package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/crafty/internal/device"
)

var propertyBits = []struct {
	ble ble.Property
	dev device.Properties
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
}

// toProperties maps go-ble property flags to device.Properties.
// Signed-write and extended bits have no counterpart and are dropped.
func toProperties(p ble.Property) device.Properties {
	var out device.Properties
	for _, b := range propertyBits {
		if p&b.ble != 0 {
			out |= b.dev
		}
	}
	return out
}
