package session

import (
	"fmt"
	"strings"

	"github.com/arloliu/go-ivi/status"
)

// Identity is the parsed reply of *IDN?.
type Identity struct {
	Manufacturer string
	Model        string
	SerialNumber string
	Firmware     string
	Raw          string
}

func (id Identity) String() string {
	return id.Raw
}

// Identity queries *IDN? and splits the reply into its four comma-separated fields.
// Missing fields are left empty.
func (s *Session) Identity() (Identity, error) {
	reply, err := s.Query("*IDN?")
	if err != nil {
		return Identity{}, err
	}

	reply = strings.TrimSpace(reply)
	fields := strings.SplitN(reply, ",", 4)
	for len(fields) < 4 {
		fields = append(fields, "")
	}

	return Identity{
		Manufacturer: strings.TrimSpace(fields[0]),
		Model:        strings.TrimSpace(fields[1]),
		SerialNumber: strings.TrimSpace(fields[2]),
		Firmware:     strings.TrimSpace(fields[3]),
		Raw:          reply,
	}, nil
}

// ResetKnownState sends *RST.
func (s *Session) ResetKnownState() error {
	return s.WriteLine("*RST")
}

// ClearExecutionState sends *CLS, which clears the event registers and the error queue.
func (s *Session) ClearExecutionState() error {
	return s.WriteLine("*CLS")
}

// ReadStandardEventStatus queries and clears the Standard Event Status Register.
func (s *Session) ReadStandardEventStatus() (status.StandardEvent, error) {
	reply, err := s.Query("*ESR?")
	if err != nil {
		return 0, err
	}

	v, err := status.ParseRegister(reply)
	if err != nil || v > 0xFF {
		return 0, fmt.Errorf("%w: *ESR? returned %q", ErrUnexpectedReply, reply)
	}

	return status.StandardEvent(v), nil
}

// EnableServiceRequest programs the Standard Event Status Enable register with esrMask and
// the Service Request Enable register with stbMask.
func (s *Session) EnableServiceRequest(stbMask status.StatusByte, esrMask status.StandardEvent) error {
	if err := s.WriteLine(fmt.Sprintf("*ESE %d", uint8(esrMask))); err != nil {
		return err
	}

	return s.WriteLine(fmt.Sprintf("*SRE %d", uint8(stbMask)))
}

// QueryOperationComplete blocks on *OPC? until the instrument finishes pending operations
// or the session timeout elapses.
func (s *Session) QueryOperationComplete() (bool, error) {
	reply, err := s.Query("*OPC?")
	if err != nil {
		return false, err
	}

	v, err := status.ParseRegister(reply)
	if err != nil {
		return false, fmt.Errorf("%w: *OPC? returned %q", ErrUnexpectedReply, reply)
	}

	return v == 1, nil
}
