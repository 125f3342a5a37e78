// Package resource parses VISA resource names, translates VISA search expressions and
// persists the list of known resources.
package resource

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/arloliu/go-ivi/ivierr"
)

// ErrInvalidName is returned for a resource name that cannot be parsed.
var ErrInvalidName = ivierr.New("resource: invalid resource name", ivierr.ErrConfiguration)

// Interface is the VISA interface type of a resource.
type Interface string

const (
	TCPIP Interface = "TCPIP"
	GPIB  Interface = "GPIB"
	USB   Interface = "USB"
	ASRL  Interface = "ASRL"
)

// Class is the VISA resource class.
type Class string

const (
	INSTR  Class = "INSTR"
	SOCKET Class = "SOCKET"
)

// NoAddress marks an absent GPIB secondary address.
const NoAddress = -1

// Name is a parsed VISA resource name.
type Name struct {
	Interface Interface
	Board     int
	Class     Class

	// TCPIP
	Host      string
	Port      int
	LANDevice string

	// GPIB
	Primary   int
	Secondary int

	// USB
	VendorID     string
	ProductID    string
	SerialNumber string
	USBInterface int

	// ASRL: Device is the port path when the name carries one instead of a board number.
	Device string
}

// Parse parses a resource name such as "TCPIP0::192.168.1.5::5025::SOCKET",
// "GPIB0::22::INSTR", "USB0::0x0957::0x1A07::MY123::INSTR" or "ASRL/dev/ttyUSB0::INSTR".
// Interface and class are case-insensitive; the class defaults to INSTR.
func Parse(s string) (Name, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Name{}, fmt.Errorf("%w: empty", ErrInvalidName)
	}

	parts := strings.Split(raw, "::")
	n := Name{Class: INSTR, Secondary: NoAddress, USBInterface: NoAddress}

	last := strings.ToUpper(parts[len(parts)-1])
	switch Class(last) {
	case INSTR, SOCKET:
		n.Class = Class(last)
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return Name{}, fmt.Errorf("%w: %q", ErrInvalidName, s)
	}

	head := parts[0]
	upper := strings.ToUpper(head)
	var err error
	switch {
	case strings.HasPrefix(upper, string(TCPIP)):
		n.Interface = TCPIP
		err = n.parseTCPIP(head[len(TCPIP):], parts[1:])
	case strings.HasPrefix(upper, string(GPIB)):
		n.Interface = GPIB
		err = n.parseGPIB(head[len(GPIB):], parts[1:])
	case strings.HasPrefix(upper, string(USB)):
		n.Interface = USB
		err = n.parseUSB(head[len(USB):], parts[1:])
	case strings.HasPrefix(upper, string(ASRL)):
		n.Interface = ASRL
		err = n.parseASRL(head[len(ASRL):], parts[1:])
	default:
		err = fmt.Errorf("unknown interface %q", head)
	}
	if err != nil {
		return Name{}, fmt.Errorf("%w: %q: %w", ErrInvalidName, s, err)
	}

	if n.Class == SOCKET && n.Interface != TCPIP {
		return Name{}, fmt.Errorf("%w: %q: SOCKET class requires TCPIP", ErrInvalidName, s)
	}

	return n, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Name {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return n
}

func parseBoard(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	b, err := strconv.Atoi(s)
	if err != nil || b < 0 {
		return 0, fmt.Errorf("invalid board %q", s)
	}

	return b, nil
}

func (n *Name) parseTCPIP(board string, rest []string) (err error) {
	if n.Board, err = parseBoard(board); err != nil {
		return err
	}
	if len(rest) == 0 || rest[0] == "" {
		return fmt.Errorf("missing host")
	}
	n.Host = rest[0]

	if n.Class == SOCKET {
		if len(rest) != 2 {
			return fmt.Errorf("SOCKET resource needs host and port")
		}
		n.Port, err = strconv.Atoi(rest[1])
		if err != nil || n.Port <= 0 || n.Port > 65535 {
			return fmt.Errorf("invalid port %q", rest[1])
		}

		return nil
	}

	switch len(rest) {
	case 1:
		n.LANDevice = "inst0"
	case 2:
		n.LANDevice = rest[1]
	default:
		return fmt.Errorf("too many fields")
	}

	return nil
}

func (n *Name) parseGPIB(board string, rest []string) (err error) {
	if n.Board, err = parseBoard(board); err != nil {
		return err
	}
	if len(rest) == 0 || len(rest) > 2 {
		return fmt.Errorf("GPIB resource needs a primary address")
	}

	n.Primary, err = strconv.Atoi(rest[0])
	if err != nil || n.Primary < 0 || n.Primary > 30 {
		return fmt.Errorf("invalid primary address %q", rest[0])
	}
	if len(rest) == 2 {
		n.Secondary, err = strconv.Atoi(rest[1])
		if err != nil || n.Secondary < 0 || n.Secondary > 30 {
			return fmt.Errorf("invalid secondary address %q", rest[1])
		}
	}

	return nil
}

func (n *Name) parseUSB(board string, rest []string) (err error) {
	if n.Board, err = parseBoard(board); err != nil {
		return err
	}
	if len(rest) < 3 || len(rest) > 4 {
		return fmt.Errorf("USB resource needs vendor, product and serial number")
	}

	for _, id := range rest[:2] {
		if _, err := strconv.ParseUint(id, 0, 16); err != nil {
			return fmt.Errorf("invalid USB id %q", id)
		}
	}
	n.VendorID, n.ProductID, n.SerialNumber = rest[0], rest[1], rest[2]
	if len(rest) == 4 {
		n.USBInterface, err = strconv.Atoi(rest[3])
		if err != nil || n.USBInterface < 0 {
			return fmt.Errorf("invalid USB interface %q", rest[3])
		}
	}

	return nil
}

func (n *Name) parseASRL(board string, rest []string) error {
	if len(rest) != 0 {
		return fmt.Errorf("too many fields")
	}
	if board == "" {
		return fmt.Errorf("missing port")
	}

	if b, err := strconv.Atoi(board); err == nil && b >= 0 {
		n.Board = b
		return nil
	}
	n.Device = board

	return nil
}

// String returns the canonical form of the name.
func (n Name) String() string {
	var b strings.Builder

	switch n.Interface {
	case TCPIP:
		fmt.Fprintf(&b, "TCPIP%d::%s", n.Board, n.Host)
		if n.Class == SOCKET {
			fmt.Fprintf(&b, "::%d", n.Port)
		} else if n.LANDevice != "" {
			b.WriteString("::" + n.LANDevice)
		}
	case GPIB:
		fmt.Fprintf(&b, "GPIB%d::%d", n.Board, n.Primary)
		if n.Secondary != NoAddress {
			fmt.Fprintf(&b, "::%d", n.Secondary)
		}
	case USB:
		fmt.Fprintf(&b, "USB%d::%s::%s::%s", n.Board, n.VendorID, n.ProductID, n.SerialNumber)
		if n.USBInterface != NoAddress {
			fmt.Fprintf(&b, "::%d", n.USBInterface)
		}
	case ASRL:
		if n.Device != "" {
			b.WriteString("ASRL" + n.Device)
		} else {
			fmt.Fprintf(&b, "ASRL%d", n.Board)
		}
	default:
		return ""
	}

	b.WriteString("::" + string(n.Class))

	return b.String()
}

// Address returns the host:port of a TCPIP SOCKET resource.
func (n Name) Address() string {
	return net.JoinHostPort(n.Host, strconv.Itoa(n.Port))
}
