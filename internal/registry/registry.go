// Package registry is the address-keyed directory shared by the scanner and
// the connection machines. It records each address's category, which machine
// currently holds the address, the live link owned by that machine, and
// whether the user asked for the disconnect.
package registry

import (
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/srg/sixmwt/internal/device"
)

// Entry is a snapshot of what the registry knows about one address.
type Entry struct {
	Address  string
	Category device.Category
	Link     device.Link
}

// Registry is safe for concurrent use. Category and claim updates are
// serialized; lookups never block.
type Registry struct {
	mu         sync.Mutex
	categories *hashmap.Map[string, device.Category]
	claims     *hashmap.Map[string, device.Category]
	links      *hashmap.Map[string, device.Link]
	userIntent mapset.Set[string]
}

func New() *Registry {
	return &Registry{
		categories: hashmap.New[string, device.Category](),
		claims:     hashmap.New[string, device.Category](),
		links:      hashmap.New[string, device.Link](),
		userIntent: mapset.NewSet[string](),
	}
}

func key(address string) string {
	return strings.ToUpper(address)
}

// RegisterCategory records the category of an address. A known category is
// never overwritten; only an Unknown entry is upgraded.
func (r *Registry) RegisterCategory(address string, category device.Category) device.Category {
	if address == "" {
		return device.CategoryUnknown
	}
	k := key(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Range skips entries created by GetOrInsert, so inserts go through Set.
	current, ok := r.categories.Get(k)
	if !ok || (current == device.CategoryUnknown && category != device.CategoryUnknown) {
		r.categories.Set(k, category)
		return category
	}
	return current
}

// Claim marks address as held by the machine of category and records that
// category for it, overwriting whatever the scanner or an earlier attempt
// registered. It fails, returning the holder, while another category holds
// the address.
func (r *Registry) Claim(address string, category device.Category) (device.Category, bool) {
	k := key(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.claims.Get(k); ok && holder != category {
		return holder, false
	}
	r.claims.Set(k, category)
	r.categories.Set(k, category)
	return category, true
}

// Release drops the claim of category on address. A claim held by another
// category is left alone.
func (r *Registry) Release(address string, category device.Category) {
	k := key(address)

	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, ok := r.claims.Get(k); ok && holder == category {
		r.claims.Del(k)
	}
}

// ClaimedBy returns the category holding address, Unknown when unclaimed.
func (r *Registry) ClaimedBy(address string) device.Category {
	c, ok := r.claims.Get(key(address))
	if !ok {
		return device.CategoryUnknown
	}
	return c
}

// LookupCategory returns the registered category, Unknown when absent.
func (r *Registry) LookupCategory(address string) device.Category {
	c, ok := r.categories.Get(key(address))
	if !ok {
		return device.CategoryUnknown
	}
	return c
}

// BindConnection records link as the live handle for address.
func (r *Registry) BindConnection(address string, link device.Link) {
	r.links.Set(key(address), link)
}

// UnbindConnection forgets the live handle for address.
func (r *Registry) UnbindConnection(address string) {
	r.links.Del(key(address))
}

// LookupHandle returns the live link bound to address.
func (r *Registry) LookupHandle(address string) (device.Link, bool) {
	return r.links.Get(key(address))
}

// IsCurrent reports whether link is the handle bound to address.
// Callbacks carrying any other link are stale.
func (r *Registry) IsCurrent(address string, link device.Link) bool {
	bound, ok := r.links.Get(key(address))
	return ok && bound == link
}

// MarkUserDisconnect records that the user asked to disconnect address.
func (r *Registry) MarkUserDisconnect(address string) {
	r.userIntent.Add(key(address))
}

// ClearUserDisconnect removes the user-intent marker.
func (r *Registry) ClearUserDisconnect(address string) {
	r.userIntent.Remove(key(address))
}

// IsUserDisconnect reports whether the user asked to disconnect address.
func (r *Registry) IsUserDisconnect(address string) bool {
	return r.userIntent.Contains(key(address))
}

// Bound returns a snapshot of every live handle, keyed by address.
func (r *Registry) Bound() map[string]device.Link {
	out := make(map[string]device.Link, r.links.Len())
	r.links.Range(func(k string, v device.Link) bool {
		out[k] = v
		return true
	})
	return out
}

// Entries returns a snapshot of every registered address.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, r.categories.Len())
	r.categories.Range(func(k string, c device.Category) bool {
		link, _ := r.links.Get(k)
		out = append(out, Entry{Address: k, Category: c, Link: link})
		return true
	})
	return out
}
