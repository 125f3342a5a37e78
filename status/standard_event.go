package status

import "strings"

// StandardEvent is the value of the IEEE-488.2 Standard Event Status Register (*ESR?).
type StandardEvent uint8

// Standard event register bits.
const (
	OperationComplete    StandardEvent = 0x01 // OPC
	RequestControl       StandardEvent = 0x02 // RQC
	QueryError           StandardEvent = 0x04 // QYE
	DeviceDependentError StandardEvent = 0x08 // DDE
	ExecutionError       StandardEvent = 0x10 // EXE
	CommandError         StandardEvent = 0x20 // CME
	UserRequest          StandardEvent = 0x40 // URQ
	PowerOn              StandardEvent = 0x80 // PON

	// AllErrors is the union of the four error bits.
	AllErrors = QueryError | DeviceDependentError | ExecutionError | CommandError
	// AllEvents enables every standard event.
	AllEvents StandardEvent = 0xFF
)

var standardEventNames = []struct {
	bit  StandardEvent
	name string
}{
	{OperationComplete, "OPC"},
	{RequestControl, "RQC"},
	{QueryError, "QYE"},
	{DeviceDependentError, "DDE"},
	{ExecutionError, "EXE"},
	{CommandError, "CME"},
	{UserRequest, "URQ"},
	{PowerOn, "PON"},
}

// Has reports whether all bits of b are set in e.
func (e StandardEvent) Has(b StandardEvent) bool {
	return e&b == b
}

// HasError reports whether any of the query, device, execution or command error bits is set.
func (e StandardEvent) HasError() bool {
	return e&AllErrors != 0
}

// String returns the set bits joined by '|', or "none".
func (e StandardEvent) String() string {
	var names []string
	for _, n := range standardEventNames {
		if e&n.bit != 0 {
			names = append(names, n.name)
		}
	}

	if len(names) == 0 {
		return "none"
	}

	return strings.Join(names, "|")
}
