// Package device defines the domain model shared by every layer of the sensor
// connection manager: device categories, connection statuses, decoded readings,
// typed errors, and the radio port implemented by the BLE backends.
//
// The package has no BLE library dependencies. Backends live in sub-packages:
//   - goble: github.com/go-ble/ble (default)
//   - tinyble: tinygo.org/x/bluetooth
package device
