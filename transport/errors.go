package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/status"
)

var (
	// ErrUnsupportedResource is returned by Dial for resources without a transport in this package.
	ErrUnsupportedResource = ivierr.New("transport: unsupported resource", ivierr.ErrConfiguration)
	// ErrInvalidSerialSettings is returned for unknown parity, stop bits or out of range line settings.
	ErrInvalidSerialSettings = ivierr.New("transport: invalid serial settings", ivierr.ErrConfiguration)
	// ErrBadStatusReply is returned when the *STB? reply is not a byte value.
	ErrBadStatusReply = ivierr.New("transport: malformed status byte reply", ivierr.ErrProtocolViolation)
	// ErrClearTimeout is returned by Clear when the device keeps sending for the whole timeout.
	ErrClearTimeout = ivierr.New("transport: device kept sending during clear", ivierr.ErrTimeout)
	// ErrInvalidTermination is returned by SetTermination for an empty sequence.
	ErrInvalidTermination = ivierr.New("transport: empty termination", ivierr.ErrConfiguration)
)

const statusQuery = "*STB?"

// queryStatusByte sends *STB? on rw and parses its reply. Replies still owed to the caller
// of Read are kept by f.
func queryStatusByte(rw io.ReadWriter, f *framer, timeout time.Duration) (byte, error) {
	term := f.termination()
	cmd := make([]byte, 0, len(statusQuery)+len(term))
	cmd = append(cmd, statusQuery...)
	cmd = append(cmd, term...)
	if err := writeAll(rw, cmd); err != nil {
		return 0, err
	}

	reply, err := f.statusReply(rw, time.Now().Add(timeout))
	if err != nil {
		return 0, err
	}

	v, err := status.ParseRegister(reply)
	if err != nil || v > 0xFF {
		return 0, fmt.Errorf("%w: %q", ErrBadStatusReply, reply)
	}

	return byte(v), nil
}

func writeAll(w io.Writer, data []byte) error {
	for written := 0; written < len(data); {
		n, err := w.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}
