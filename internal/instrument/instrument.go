package instrument

import (
	"fmt"
	"sort"
)

// Key identifies a tracked fund. The set is closed: adding a fund means adding
// a constant here plus a registry entry below.
type Key string

const (
	// KeyWorldTotal is the global all-cap equity index fund.
	KeyWorldTotal Key = "wereldwijd"
	// KeyEmerging is the emerging markets equity index fund.
	KeyEmerging Key = "opkomende-landen"
)

// Instrument describes a tracked fund.
type Instrument struct {
	Key         Key
	DisplayName string
	SourceURL   string
	ISIN        string
}

var registry = map[Key]Instrument{
	KeyWorldTotal: {
		Key:         KeyWorldTotal,
		DisplayName: "Aandelen Wereldwijd Totaal",
		SourceURL:   "https://www.meesman.nl/onze-fondsen/aandelen-wereldwijd-totaal/",
		ISIN:        "NL0013689110",
	},
	KeyEmerging: {
		Key:         KeyEmerging,
		DisplayName: "Aandelen Opkomende Landen",
		SourceURL:   "https://www.meesman.nl/onze-fondsen/aandelen-opkomende-landen/",
		ISIN:        "NL0009690221",
	},
}

// Get returns the registry entry for a key.
func Get(key Key) (Instrument, error) {
	inst, ok := registry[key]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument %q", key)
	}
	return inst, nil
}

// Parse converts user input into a Key.
func Parse(raw string) (Key, error) {
	key := Key(raw)
	if _, ok := registry[key]; !ok {
		return "", fmt.Errorf("unknown instrument %q", raw)
	}
	return key, nil
}

// All lists every tracked instrument in stable key order.
func All() []Instrument {
	keys := make([]string, 0, len(registry))
	for key := range registry {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)

	instruments := make([]Instrument, 0, len(keys))
	for _, key := range keys {
		instruments = append(instruments, registry[Key(key)])
	}
	return instruments
}
