// Package device defines the GATT transport boundary used by the session engine.
//
// It holds no radio code. A Central finds and dials the heater; the returned
// Connection resolves services and characteristics on demand. The go-ble backed
// implementation lives in the go-ble subpackage, and tests use the in-memory
// peripheral from internal/testutils.
//
// Resolution failures are reported as *NotFoundError so callers can tell which
// resource (device, server, service or characteristic) was missing.
package device
