package simulator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/arloliu/go-ivi/status"
)

// execute runs one command. It must be called with mu held.
func (i *Instrument) execute(cmd string) {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return
	}
	i.history = append(i.history, cmd)
	i.logger.Debug("simulator command", "command", cmd)

	header, args, _ := strings.Cut(cmd, " ")
	header = shortForm(header)
	args = strings.TrimSpace(args)

	if fn, ok := i.commands[header]; ok {
		reply, err := fn(args)
		if err != nil {
			var devErr *DeviceError
			if errors.As(err, &devErr) {
				i.pushError(devErr)
			} else {
				i.pushError(ErrExecution)
			}
			return
		}
		if reply != "" {
			i.push(reply)
		}
		return
	}

	switch header {
	case "*IDN?":
		i.push(i.identity)
	case "*STB?":
		i.push(strconv.Itoa(int(i.statusByte())))
	case "*ESR?":
		i.push(strconv.Itoa(int(i.esr)))
		i.esr = 0
	case "*ESE":
		if v, ok := i.parseInt(args, 0xFF); ok {
			i.ese = status.StandardEvent(v)
		}
	case "*ESE?":
		i.push(strconv.Itoa(int(i.ese)))
	case "*SRE":
		if v, ok := i.parseInt(args, 0xFF); ok {
			// bit 6 cannot be enabled
			i.sre = status.StatusByte(v) &^ stbRQS
		}
	case "*SRE?":
		i.push(strconv.Itoa(int(i.sre)))
	case "*CLS":
		i.esr = 0
		i.errQueue.Reset()
		i.meas.event, i.oper.event, i.ques.event = 0, 0, 0
	case "*RST":
		i.readingIdx = 0
		i.contactThreshold = DefaultContactThreshold
	case "*OPC":
		i.esr |= status.OperationComplete
	case "*OPC?":
		i.push("1")
	case "*WAI":
	case "*TRG", "INIT", "INIT:IMM":
		i.push(i.nextReading())
	case "READ?", "FETC?", "MEAS?":
		i.push(i.nextReading())
	case "SYST:ERR?", "SYST:ERR:NEXT?":
		if e, ok := i.errQueue.Dequeue(); ok {
			i.push(e.Error())
		} else {
			i.push(`0,"No error"`)
		}
	case "STAT:MEAS?", "STAT:MEAS:EVEN?":
		i.push(strconv.Itoa(i.meas.event))
		i.meas.event = 0
	case "STAT:MEAS:ENAB":
		i.setEnable(&i.meas, args)
	case "STAT:MEAS:ENAB?":
		i.push(strconv.Itoa(i.meas.enable))
	case "STAT:OPER?", "STAT:OPER:EVEN?":
		i.push(strconv.Itoa(i.oper.event))
		i.oper.event = 0
	case "STAT:OPER:ENAB":
		i.setEnable(&i.oper, args)
	case "STAT:OPER:ENAB?":
		i.push(strconv.Itoa(i.oper.enable))
	case "STAT:QUES?", "STAT:QUES:EVEN?":
		i.push(strconv.Itoa(i.ques.event))
		i.ques.event = 0
	case "STAT:QUES:ENAB":
		i.setEnable(&i.ques, args)
	case "STAT:QUES:ENAB?":
		i.push(strconv.Itoa(i.ques.enable))
	case "CONT:THR":
		v, err := strconv.ParseFloat(args, 64)
		if err != nil || v < 0 {
			i.pushError(ErrIllegalParameter)
			return
		}
		i.contactThreshold = v
	case "CONT:THR?":
		i.push(strconv.FormatFloat(i.contactThreshold, 'g', -1, 64))
	case "CONT:RES?":
		i.push(fmt.Sprintf("%g,%g", i.highOhms, i.lowOhms))
		if i.highOhms > i.contactThreshold || i.lowOhms > i.contactThreshold {
			i.meas.event |= ContactCheckFailedBit
		}
	default:
		if strings.HasPrefix(header, "MEAS:") && strings.HasSuffix(header, "?") {
			i.push(i.nextReading())
			return
		}
		i.pushError(ErrUndefinedHeader)
	}
}

func (i *Instrument) parseInt(args string, maxValue int) (int, bool) {
	v, err := status.ParseRegister(args)
	if err != nil {
		i.pushError(ErrIllegalParameter)
		return 0, false
	}
	if v > maxValue {
		i.pushError(ErrDataOutOfRange)
		return 0, false
	}

	return v, true
}

func (i *Instrument) setEnable(r *eventRegister, args string) {
	if v, ok := i.parseInt(args, 0xFFFF); ok {
		r.enable = v
	}
}

// shortForm converts a SCPI header to upper-case short form, e.g. ":SYSTem:ERRor?" and
// "SYSTEM:ERROR?" both become "SYST:ERR?".
func shortForm(header string) string {
	header = strings.ToUpper(strings.TrimSpace(header))
	header = strings.TrimPrefix(header, ":")

	query := strings.HasSuffix(header, "?")
	header = strings.TrimSuffix(header, "?")

	nodes := strings.Split(header, ":")
	for n, node := range nodes {
		if strings.HasPrefix(node, "*") || len(node) <= 4 {
			continue
		}
		// the short form is the first four characters, or three when the fourth is a vowel
		if strings.ContainsRune("AEIOU", rune(node[3])) {
			nodes[n] = node[:3]
		} else {
			nodes[n] = node[:4]
		}
	}

	header = strings.Join(nodes, ":")
	if query {
		header += "?"
	}

	return header
}
