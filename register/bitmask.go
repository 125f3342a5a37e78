package register

import (
	"fmt"
	"sync"
)

type bitmaskEntry struct {
	mask         int
	allowOverlap bool
}

// BitmaskDictionary maps semantic event keys to register bit masks.
//
// It is safe for concurrent use. See the package documentation for the
// build-once, read-mostly assumption.
type BitmaskDictionary struct {
	mu      sync.RWMutex
	entries map[int]bitmaskEntry
	order   []int
}

// NewBitmaskDictionary creates an empty BitmaskDictionary.
func NewBitmaskDictionary() *BitmaskDictionary {
	return &BitmaskDictionary{entries: make(map[int]bitmaskEntry)}
}

// Add registers mask for key.
//
// It returns ErrDuplicateKey if key is already registered, ErrInvalidMask if mask has no
// bit set, and ErrBitConflict if mask shares a bit with any existing entry while
// allowOverlap is false. Entries added with allowOverlap may cover bits of other entries,
// which is how catch-all summary bits are declared.
func (d *BitmaskDictionary) Add(key int, mask int, allowOverlap bool) error {
	if mask <= 0 {
		return fmt.Errorf("%w: key %d, mask 0x%X", ErrInvalidMask, key, mask)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[key]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateKey, key)
	}

	if !allowOverlap {
		for _, k := range d.order {
			if d.entries[k].mask&mask != 0 {
				return fmt.Errorf("%w: key %d mask 0x%X intersects key %d mask 0x%X",
					ErrBitConflict, key, mask, k, d.entries[k].mask)
			}
		}
	}

	d.entries[key] = bitmaskEntry{mask: mask, allowOverlap: allowOverlap}
	d.order = append(d.order, key)

	return nil
}

// Mask returns the mask registered for key, or ErrUnknownKey.
func (d *BitmaskDictionary) Mask(key int) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[key]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownKey, key)
	}

	return e.mask, nil
}

// IsAnyBitOn reports whether value has any bit of key's mask set.
//
// An unregistered key is a programmer error and yields ErrUnknownKey, never false.
func (d *BitmaskDictionary) IsAnyBitOn(key int, value int) (bool, error) {
	mask, err := d.Mask(key)
	if err != nil {
		return false, err
	}

	return value&mask != 0, nil
}

// AreAllBitsOn reports whether value has every bit of key's mask set.
func (d *BitmaskDictionary) AreAllBitsOn(key int, value int) (bool, error) {
	mask, err := d.Mask(key)
	if err != nil {
		return false, err
	}

	return value&mask == mask, nil
}

// Contains reports whether key is registered.
func (d *BitmaskDictionary) Contains(key int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.entries[key]

	return ok
}

// Remove unregisters key. It returns false if key was not registered.
func (d *BitmaskDictionary) Remove(key int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.entries[key]; !ok {
		return false
	}

	delete(d.entries, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}

	return true
}

// Keys returns the registered keys in insertion order.
func (d *BitmaskDictionary) Keys() []int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]int, len(d.order))
	copy(keys, d.order)

	return keys
}

// Len returns the number of registered keys.
func (d *BitmaskDictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.order)
}

// Union returns the bitwise OR of all registered masks.
func (d *BitmaskDictionary) Union() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	union := 0
	for _, e := range d.entries {
		union |= e.mask
	}

	return union
}

// ActiveKeys returns, in insertion order, the keys with any bit set in value.
func (d *BitmaskDictionary) ActiveKeys(value int) []int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var keys []int
	for _, k := range d.order {
		if d.entries[k].mask&value != 0 {
			keys = append(keys, k)
		}
	}

	return keys
}

// Clone returns an independent copy of the dictionary.
func (d *BitmaskDictionary) Clone() *BitmaskDictionary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	clone := &BitmaskDictionary{
		entries: make(map[int]bitmaskEntry, len(d.entries)),
		order:   make([]int, len(d.order)),
	}
	copy(clone.order, d.order)
	for k, e := range d.entries {
		clone.entries[k] = e
	}

	return clone
}
