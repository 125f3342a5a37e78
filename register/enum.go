package register

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EnumReadWrite binds an enumerated setting to its SCPI representations.
type EnumReadWrite[E ~int] struct {
	// EnumValue is the host-side enumerated value.
	EnumValue E
	// ReadValue is the string the instrument reports when the setting is queried.
	ReadValue string
	// WriteValue is the argument sent to select the setting. It defaults to ReadValue.
	WriteValue string
	// Description is a human readable label.
	Description string
}

// EnumReadWriteCollection is a bidirectional index between enum values and instrument
// readings. Both indices are unique; lookups by either key are O(1).
//
// Readings are normalized before indexing: surrounding white space and a single pair of
// enclosing double quotes are removed, so `"VOLT:DC"` and `VOLT:DC` are the same key.
type EnumReadWriteCollection[E ~int] struct {
	mu        sync.RWMutex
	byEnum    map[E]*EnumReadWrite[E]
	byReading map[string]*EnumReadWrite[E]
}

// NewEnumReadWriteCollection creates an empty collection.
func NewEnumReadWriteCollection[E ~int]() *EnumReadWriteCollection[E] {
	return &EnumReadWriteCollection[E]{
		byEnum:    make(map[E]*EnumReadWrite[E]),
		byReading: make(map[string]*EnumReadWrite[E]),
	}
}

// Add adds an entry whose write value equals its read value.
func (c *EnumReadWriteCollection[E]) Add(enumValue E, readValue string) error {
	return c.AddEntry(EnumReadWrite[E]{EnumValue: enumValue, ReadValue: readValue})
}

// AddEntry adds entry. It returns ErrDuplicateKey if either the enum value or the
// normalized read value is already indexed; the collection is unchanged in that case.
func (c *EnumReadWriteCollection[E]) AddEntry(entry EnumReadWrite[E]) error {
	entry.ReadValue = NormalizeReading(entry.ReadValue)
	if entry.WriteValue == "" {
		entry.WriteValue = entry.ReadValue
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byEnum[entry.EnumValue]; ok {
		return fmt.Errorf("%w: enum value %d", ErrDuplicateKey, entry.EnumValue)
	}
	if _, ok := c.byReading[entry.ReadValue]; ok {
		return fmt.Errorf("%w: read value %q", ErrDuplicateKey, entry.ReadValue)
	}

	e := &entry
	c.byEnum[entry.EnumValue] = e
	c.byReading[entry.ReadValue] = e

	return nil
}

// SelectItem returns the entry for enumValue, or ErrNotFound.
func (c *EnumReadWriteCollection[E]) SelectItem(enumValue E) (EnumReadWrite[E], error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byEnum[enumValue]
	if !ok {
		return EnumReadWrite[E]{}, fmt.Errorf("%w: enum value %d", ErrNotFound, enumValue)
	}

	return *e, nil
}

// SelectByReading returns the entry whose read value matches reading, or ErrNotFound.
func (c *EnumReadWriteCollection[E]) SelectByReading(reading string) (EnumReadWrite[E], error) {
	key := NormalizeReading(reading)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byReading[key]
	if !ok {
		return EnumReadWrite[E]{}, fmt.Errorf("%w: read value %q", ErrNotFound, key)
	}

	return *e, nil
}

// Exists reports whether enumValue is indexed.
func (c *EnumReadWriteCollection[E]) Exists(enumValue E) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.byEnum[enumValue]

	return ok
}

// ExistsReading reports whether reading is indexed.
func (c *EnumReadWriteCollection[E]) ExistsReading(reading string) bool {
	key := NormalizeReading(reading)

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.byReading[key]

	return ok
}

// RemoveAt removes the entry for enumValue from both indices.
// It returns false if enumValue is not indexed.
func (c *EnumReadWriteCollection[E]) RemoveAt(enumValue E) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.byEnum[enumValue]
	if !ok {
		return false
	}

	delete(c.byEnum, enumValue)
	delete(c.byReading, e.ReadValue)

	return true
}

// Len returns the number of entries.
func (c *EnumReadWriteCollection[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.byEnum)
}

// Entries returns a copy of all entries ordered by enum value.
func (c *EnumReadWriteCollection[E]) Entries() []EnumReadWrite[E] {
	c.mu.RLock()
	entries := make([]EnumReadWrite[E], 0, len(c.byEnum))
	for _, e := range c.byEnum {
		entries = append(entries, *e)
	}
	c.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].EnumValue < entries[j].EnumValue
	})

	return entries
}

// NormalizeReading trims white space and one pair of enclosing double quotes from s.
func NormalizeReading(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	return s
}
