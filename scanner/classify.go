package scanner

import (
	"github.com/srg/sixmwt/internal/device"
)

// Classifier assigns a category to an advertisement.
type Classifier struct {
	signatures []device.Signature
}

// NewClassifier creates a classifier over sigs. With no signatures the built-in ones are used.
func NewClassifier(sigs ...device.Signature) *Classifier {
	if len(sigs) == 0 {
		sigs = device.DefaultSignatures()
	}
	return &Classifier{signatures: sigs}
}

// Classify matches advertised service UUIDs first and falls back to name fragments.
// When a stage matches more than one category the result of that stage is ambiguous
// and the next stage decides; an ambiguous name match leaves the device Unknown.
func (c *Classifier) Classify(name string, services []string) device.Category {
	if cat, ok := c.byService(services); ok {
		return cat
	}
	if cat, ok := c.byName(name); ok {
		return cat
	}
	return device.CategoryUnknown
}

// ClassifyAdvertisement classifies a radio advertisement.
func (c *Classifier) ClassifyAdvertisement(adv device.Advertisement) device.Category {
	return c.Classify(adv.LocalName(), adv.Services())
}

func (c *Classifier) byService(services []string) (device.Category, bool) {
	if len(services) == 0 {
		return device.CategoryUnknown, false
	}
	advertised := make(map[string]struct{}, len(services))
	for _, u := range services {
		advertised[device.NormalizeUUID(u)] = struct{}{}
	}

	var matches []device.Category
	for _, sig := range c.signatures {
		if _, ok := advertised[device.NormalizeUUID(sig.ServiceUUID)]; ok {
			matches = append(matches, sig.Category)
		}
	}
	return single(matches)
}

func (c *Classifier) byName(name string) (device.Category, bool) {
	if name == "" {
		return device.CategoryUnknown, false
	}

	var matches []device.Category
	for _, sig := range c.signatures {
		for _, frag := range sig.NameFragments {
			if frag != "" && device.ContainsFold(name, frag) {
				matches = append(matches, sig.Category)
				break
			}
		}
	}
	return single(matches)
}

func single(matches []device.Category) (device.Category, bool) {
	if len(matches) != 1 {
		return device.CategoryUnknown, false
	}
	return matches[0], true
}
