// Package status decodes IEEE-488.2 status registers into semantic flags.
//
// The Status Byte (STB) is summarized through a BitmaskDictionary keyed by [Key]. Only
// the meaning of each key is fixed; the bit that carries it is configuration data that
// varies between instrument models. [DefaultStatusBitmasks] returns the common
// IEEE-488.2/SCPI-99 layout:
//
//	bit 0 (0x01)  measurement event summary (vendor specific)
//	bit 1 (0x02)  system event summary (vendor specific)
//	bit 2 (0x04)  error available (EAV)
//	bit 3 (0x08)  questionable event summary (QSB)
//	bit 4 (0x10)  message available (MAV)
//	bit 5 (0x20)  standard event summary (ESB)
//	bit 6 (0x40)  request service / master summary (RQS/MSS)
//	bit 7 (0x80)  operation event summary (OSB)
//
// The Standard Event Status Register (ESR) has a fixed layout and is decoded by
// [StandardEvent].
//
// All decoders in this package are pure functions of their inputs.
package status
