// Package bledb holds the UUIDs this system talks to and the few standard
// Bluetooth SIG entries it needs to name in diagnostics.
package bledb

import "strings"

// sigBaseSuffix is the Bluetooth SIG base UUID tail, normalized.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Peripheral UUIDs in normalized form.
const (
	OximeterService        = "49535343fe7d4ae58fa99fafd205e455"
	OximeterCharacteristic = "495353431e4d4bd9ba6123c647249616"
	WearableService        = "4fafc2011fb5459e8fccc5c9c331914b"
	WearableCharacteristic = "beb5483e36e14688b7f5ea07361b26a8"
)

// ClientCharacteristicConfiguration is the CCCD that enables notifications.
const ClientCharacteristicConfiguration = "2902"

var services = map[string]string{
	"1800":          "Generic Access",
	"1801":          "Generic Attribute",
	"180a":          "Device Information",
	"180d":          "Heart Rate",
	"180f":          "Battery Service",
	OximeterService: "BerryMed Transparent UART",
	WearableService: "6MWT Step Counter",
}

var characteristics = map[string]string{
	"2a00":                 "Device Name",
	"2a19":                 "Battery Level",
	"2a29":                 "Manufacturer Name String",
	"2a37":                 "Heart Rate Measurement",
	OximeterCharacteristic: "BerryMed Pulse Oximeter Data",
	WearableCharacteristic: "6MWT Total Steps",
}

var descriptors = map[string]string{
	"2900":                            "Characteristic Extended Properties",
	"2901":                            "Characteristic User Descriptor",
	ClientCharacteristicConfiguration: "Client Characteristic Configuration",
	"2903":                            "Server Characteristic Configuration",
	"2904":                            "Characteristic Presentation Format",
}

// NormalizeUUID converts a UUID string to the internal format: lowercase, no dashes,
// braces or 0x prefix. Full UUIDs built on the Bluetooth SIG base are shortened to
// their 16-bit form.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")
	u = strings.ReplaceAll(u, "{", "")
	u = strings.ReplaceAll(u, "}", "")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes every entry of uuids.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, len(uuids))
	for i, u := range uuids {
		out[i] = NormalizeUUID(u)
	}
	return out
}

// LookupService returns the service name for a UUID, or "" when unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the characteristic name for a UUID, or "" when unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// LookupDescriptor returns the descriptor name for a UUID, or "" when unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)]
}
