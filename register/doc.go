// Package register provides the lookup tables that give meaning to instrument register
// bits and enumerated SCPI replies.
//
// Two structures are provided:
//   - BitmaskDictionary maps a semantic event key to the register bits that signal it.
//     Masks of different keys must not share bits unless an entry explicitly allows the
//     overlap, which is reserved for catch-all summary bits.
//   - EnumReadWriteCollection maps an enumerated setting to the string the instrument
//     reports for it, with O(1) lookup by either side.
//
// Both structures are built once while a subsystem is configured and are read-mostly
// afterwards. Mutation is guarded by a lock so a late Add or Remove cannot corrupt the
// indices, but callers should not rely on mutating a table while it is used to decode
// live register values: a decode racing a removal sees either the old or the new table.
package register
