package publish

import (
	"encoding/json"
	"time"

	"github.com/arloliu/go-ivi/srq"
)

// DeviceError is one entry of a device error queue drain.
type DeviceError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Message is the JSON document published for one service request event.
type Message struct {
	Time       time.Time     `json:"time"`
	Resource   string        `json:"resource"`
	Source     string        `json:"source"`
	StatusByte uint8         `json:"status_byte"`
	Flags      []string      `json:"flags,omitempty"`
	Reading    *string       `json:"reading,omitempty"`
	Errors     []DeviceError `json:"errors,omitempty"`
	Failure    string        `json:"failure,omitempty"`
}

// NewMessage converts ev into a Message of resource.
func NewMessage(resource string, ev srq.Event) Message {
	msg := Message{
		Time:       ev.Time.UTC(),
		Resource:   resource,
		Source:     ev.Source.String(),
		StatusByte: uint8(ev.Flags.Raw),
		Flags:      flagNames(ev),
	}
	if ev.HasReading {
		reading := ev.Reading
		msg.Reading = &reading
	}
	for _, rec := range ev.Errors {
		msg.Errors = append(msg.Errors, DeviceError{Code: rec.Code, Message: rec.Message})
	}
	if ev.Err != nil {
		msg.Failure = ev.Err.Error()
	}

	return msg
}

// Marshal encodes m as JSON.
func (m Message) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func unmarshal(data []byte, m *Message) error {
	return json.Unmarshal(data, m)
}

func flagNames(ev srq.Event) []string {
	f := ev.Flags
	var names []string
	for _, e := range []struct {
		on   bool
		name string
	}{
		{f.MessageAvailable, "message_available"},
		{f.ErrorAvailable, "error_available"},
		{f.HasMeasurementEvent, "measurement_event"},
		{f.HasOperationEvent, "operation_event"},
		{f.HasQuestionableEvent, "questionable_event"},
		{f.HasStandardEvent, "standard_event"},
		{f.HasSystemEvent, "system_event"},
		{f.RequestedService, "requested_service"},
	} {
		if e.on {
			names = append(names, e.name)
		}
	}

	return names
}
