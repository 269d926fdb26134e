package connection

import (
	"fmt"
	"time"

	"github.com/srg/sixmwt/internal/bledb"
	"github.com/srg/sixmwt/internal/codec"
	"github.com/srg/sixmwt/internal/device"
)

// DecodeReport carries decoder problems worth a diagnostic.
type DecodeReport struct {
	Desynced int
	Err      error
}

// Profile holds everything that differs between categories: where the telemetry
// lives and how notifications decode. A machine gets its profile once, at creation.
type Profile interface {
	Category() device.Category
	Signature() device.Signature
	// DescriptorUUID is the descriptor that must exist before notifications are enabled.
	DescriptorUUID() string
	// Decode converts one notification. ok is false when there is nothing to publish.
	Decode(data []byte, now time.Time) (reading device.Reading, ok bool, report DecodeReport)
	// Reset drops decoder state carried between notifications.
	Reset()
}

// ProfileOptions tunes profile construction.
type ProfileOptions struct {
	// Signatures overrides the built-in category signatures.
	Signatures []device.Signature
	// ReassembleOximeter enables stream reassembly for firmwares that split frames.
	ReassembleOximeter bool
	AssemblerBuffer    int
}

// ProfileFor selects the strategy for a category.
func ProfileFor(category device.Category, opts ProfileOptions) (Profile, error) {
	sigs := opts.Signatures
	if len(sigs) == 0 {
		sigs = device.DefaultSignatures()
	}
	sig, ok := device.SignatureFor(sigs, category)
	if !ok {
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownCategory, category)
	}

	switch category {
	case device.CategoryOximeter:
		p := &OximeterProfile{sig: sig}
		if opts.ReassembleOximeter {
			p.assembler = codec.NewFrameAssembler(opts.AssemblerBuffer)
		}
		return p, nil
	case device.CategoryWearable:
		return &WearableProfile{sig: sig}, nil
	default:
		return nil, fmt.Errorf("%w: %s", device.ErrUnknownCategory, category)
	}
}

// OximeterProfile decodes BM1000 frames.
type OximeterProfile struct {
	sig       device.Signature
	assembler *codec.FrameAssembler
}

func (p *OximeterProfile) Category() device.Category   { return device.CategoryOximeter }
func (p *OximeterProfile) Signature() device.Signature { return p.sig }
func (p *OximeterProfile) DescriptorUUID() string      { return bledb.ClientCharacteristicConfiguration }

func (p *OximeterProfile) Decode(data []byte, now time.Time) (device.Reading, bool, DecodeReport) {
	var res codec.OximeterResult
	if p.assembler != nil {
		res = p.assembler.Feed(data, now)
	} else {
		res = codec.DecodeOximeter(data, now)
	}

	report := DecodeReport{Desynced: res.Desynced, Err: res.Err}
	latest, ok := res.Latest()
	if !ok {
		return device.EmptyReading(device.CategoryOximeter), false, report
	}
	return device.Reading{Category: device.CategoryOximeter, Oximeter: &latest}, true, report
}

func (p *OximeterProfile) Reset() {
	if p.assembler != nil {
		p.assembler.Reset()
	}
}

// WearableProfile decodes step counter notifications.
type WearableProfile struct {
	sig device.Signature
}

func (p *WearableProfile) Category() device.Category   { return device.CategoryWearable }
func (p *WearableProfile) Signature() device.Signature { return p.sig }
func (p *WearableProfile) DescriptorUUID() string      { return bledb.ClientCharacteristicConfiguration }

// Decode always publishes: a malformed payload yields an absent step count with a fresh timestamp.
func (p *WearableProfile) Decode(data []byte, now time.Time) (device.Reading, bool, DecodeReport) {
	r := codec.DecodeWearable(data, now)
	report := DecodeReport{}
	if r.TotalSteps == nil {
		report.Err = fmt.Errorf("invalid step payload length %d", len(data))
	}
	return device.Reading{Category: device.CategoryWearable, Wearable: &r}, true, report
}

func (p *WearableProfile) Reset() {}
