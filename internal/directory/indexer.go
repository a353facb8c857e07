package directory

import "strings"

// DeviceIDLength is the length of a Sigfox device ID in hex digits.
const DeviceIDLength = 6

// NormalizeDeviceID derives a device ID from a catalog entry name.
//
// The name is uppercased, filtered to hex digits, and the trailing
// DeviceIDLength characters are taken: "Sigfox Device 2c30eb" -> "2C30EB".
// ok is false when fewer than DeviceIDLength hex digits remain.
//
// This is a best-effort match; two differently named entries can map to the
// same ID.
func NormalizeDeviceID(name string) (id string, ok bool) {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') {
			b.WriteRune(r)
		}
	}
	hex := b.String()
	if len(hex) < DeviceIDLength {
		return hex, false
	}
	return hex[len(hex)-DeviceIDLength:], true
}

// BuildIndex indexes one account's catalog entries by device ID.
//
// Entries whose name yields too short an ID are skipped with a warning.
// When two entries yield the same ID the later one replaces the earlier.
// BuildIndex performs no I/O.
func BuildIndex(entries []Entry, account int, accountName string, client Client, logger Logger) Index {
	if logger == nil {
		logger = noopLogger{}
	}

	index := make(Index, len(entries))
	for _, e := range entries {
		id, ok := NormalizeDeviceID(e.Name)
		if !ok {
			logger.Warn("catalog entry name too short for device ID",
				"account", accountName,
				"entry_id", e.ID,
				"name", e.Name,
			)
			continue
		}
		index[id] = Binding{
			Account:     account,
			AccountName: accountName,
			Client:      client,
			Entry:       e,
		}
	}
	return index
}
