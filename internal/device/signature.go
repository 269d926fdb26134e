package device

import "github.com/srg/sixmwt/internal/bledb"

// Signature describes how a category is recognized and where its telemetry lives.
type Signature struct {
	Category           Category
	ServiceUUID        string
	CharacteristicUUID string
	// NameFragments are matched case-insensitively against the advertised name
	// when no service UUID identifies the peripheral.
	NameFragments []string
}

// DefaultSignatures returns the built-in signatures of every connectable category.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Category:           CategoryOximeter,
			ServiceUUID:        bledb.OximeterService,
			CharacteristicUUID: bledb.OximeterCharacteristic,
			NameFragments:      []string{"BM1000", "BerryMed"},
		},
		{
			Category:           CategoryWearable,
			ServiceUUID:        bledb.WearableService,
			CharacteristicUUID: bledb.WearableCharacteristic,
			NameFragments:      []string{"ESP32", "6MWT"},
		},
	}
}

// SignatureFor returns the signature of category c from sigs.
func SignatureFor(sigs []Signature, c Category) (Signature, bool) {
	for _, s := range sigs {
		if s.Category == c {
			return s, true
		}
	}
	return Signature{}, false
}
