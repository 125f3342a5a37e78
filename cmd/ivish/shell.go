package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/arloliu/go-ivi/contact"
	"github.com/arloliu/go-ivi/errqueue"
	"github.com/arloliu/go-ivi/logger"
	"github.com/arloliu/go-ivi/resource"
	"github.com/arloliu/go-ivi/session"
	"github.com/arloliu/go-ivi/srq"
)

// shell runs the interactive command loop against one session.
type shell struct {
	sess   *session.Session
	coord  *srq.Coordinator
	errs   *errqueue.Reader
	list   *resource.List
	logger logger.Logger

	rl  *readline.Instance
	out io.Writer
}

func newShell(sess *session.Session, coord *srq.Coordinator, errs *errqueue.Reader, list *resource.List, l logger.Logger) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "ivi> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		HistoryLimit:    500,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &shell{sess: sess, coord: coord, errs: errs, list: list, logger: l, rl: rl, out: rl.Stdout()}, nil
}

// Run reads commands until quit, EOF or ctx is done.
func (sh *shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer sh.rl.Close()

	fmt.Fprintf(sh.out, "connected to %s, type 'help' for commands\n", sh.sess.ResourceName())

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := sh.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			cancel()
			return
		}

		if quit := sh.exec(line); quit {
			cancel()
			return
		}
	}
}

// exec runs one input line and reports whether the shell should exit. Lines that are not
// shell commands are sent to the instrument: as a query when they contain '?', as a
// command otherwise.
func (sh *shell) exec(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch strings.ToLower(cmd) {
	case "help":
		sh.printHelp()
	case "quit", "exit", "q":
		return true
	case "idn":
		sh.cmdIdentity()
	case "stb":
		sh.cmdStatusByte()
	case "esr":
		sh.cmdEventStatus()
	case "read":
		sh.report(sh.sess.ReadLine())
	case "write":
		sh.reportErr(sh.sess.WriteLine(rest))
	case "query":
		sh.report(sh.sess.Query(rest))
	case "errors":
		sh.cmdErrors(args)
	case "clear":
		sh.cmdClear(args)
	case "rst":
		sh.reportErr(sh.sess.ResetKnownState())
	case "cls":
		sh.reportErr(sh.sess.ClearExecutionState())
	case "timeout":
		sh.cmdTimeout(args)
	case "srq":
		sh.cmdServiceRequest(args)
	case "contact":
		sh.cmdContact(args)
	case "list":
		sh.cmdList(args)
	case "add":
		sh.cmdAdd(args)
	case "remove":
		sh.cmdRemove(args)
	default:
		if strings.Contains(cmd, "?") {
			sh.report(sh.sess.Query(input))
		} else {
			sh.reportErr(sh.sess.WriteLine(input))
		}
	}

	return false
}

func (sh *shell) printHelp() {
	fmt.Fprintln(sh.out, `
Instrument:
  <scpi>                 - Send a SCPI line; lines with '?' are queries
  write <scpi>           - Send a line
  query <scpi>           - Send a line and read the reply
  read                   - Read one reply line
  idn                    - Show the identity
  stb                    - Read and decode the status byte
  esr                    - Read the standard event status register
  errors [clear]         - Drain the device error queue, or clear the local report
  clear [refractory]     - Device clear, e.g. clear 50ms
  rst | cls              - *RST | *CLS
  timeout [duration]     - Show or set the I/O timeout
  contact <ohms>         - Run a contact check with the given threshold

Service requests:
  srq                    - Show the mode and counters
  srq attach | detach    - Attach or detach the SRQ interrupt
  srq poll <interval>    - Start polling the status byte
  srq stop               - Stop polling

Resource list:
  list [filter]          - List resources, e.g. list TCPIP?*
  add <name> [alias]     - Add a resource
  remove <name|alias>    - Remove a resource

  help | quit`)
}

func (sh *shell) printEvent(ev srq.Event) {
	if ev.Err != nil {
		fmt.Fprintf(sh.out, "[%s] status read failed: %v\n", ev.Source, ev.Err)
		return
	}

	fmt.Fprintf(sh.out, "[%s] STB 0x%02X %s\n", ev.Source, uint8(ev.Flags.Raw), ev.Flags)
	if ev.HasReading {
		fmt.Fprintf(sh.out, "  reading: %s\n", ev.Reading)
	}
	for _, rec := range ev.Errors {
		fmt.Fprintf(sh.out, "  error: %s\n", rec)
	}
}

func (sh *shell) report(reply string, err error) {
	if err != nil {
		sh.reportErr(err)
		return
	}
	fmt.Fprintln(sh.out, reply)
}

func (sh *shell) reportErr(err error) {
	if err != nil {
		fmt.Fprintf(sh.out, "Error: %v\n", err)
	}
}

func (sh *shell) cmdIdentity() {
	id, err := sh.sess.Identity()
	if err != nil {
		sh.reportErr(err)
		return
	}
	fmt.Fprintf(sh.out, "manufacturer: %s\nmodel: %s\nserial: %s\nfirmware: %s\n",
		id.Manufacturer, id.Model, id.SerialNumber, id.Firmware)
}

func (sh *shell) cmdStatusByte() {
	stb, err := sh.sess.ReadStatusByte()
	if err != nil {
		sh.reportErr(err)
		return
	}
	flags := sh.sess.ApplyStatusByte(stb)
	fmt.Fprintf(sh.out, "0x%02X %s\n", uint8(stb), flags)
}

func (sh *shell) cmdEventStatus() {
	esr, err := sh.sess.ReadStandardEventStatus()
	if err != nil {
		sh.reportErr(err)
		return
	}
	fmt.Fprintf(sh.out, "0x%02X %s\n", uint8(esr), esr)
}

func (sh *shell) cmdErrors(args []string) {
	if len(args) > 0 && args[0] == "clear" {
		sh.errs.ClearErrorReport()
		return
	}

	records, err := sh.errs.ReadDeviceErrors()
	for _, rec := range records {
		fmt.Fprintln(sh.out, rec)
	}
	if err != nil {
		sh.reportErr(err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(sh.out, "no errors")
	}
}

func (sh *shell) cmdClear(args []string) {
	var refractory time.Duration
	if len(args) > 0 {
		d, err := time.ParseDuration(args[0])
		if err != nil {
			sh.reportErr(err)
			return
		}
		refractory = d
	}
	sh.reportErr(sh.sess.ClearActiveState(refractory))
}

func (sh *shell) cmdTimeout(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(sh.out, sh.sess.Timeout())
		return
	}

	d, err := time.ParseDuration(args[0])
	if err != nil {
		sh.reportErr(err)
		return
	}
	sh.reportErr(sh.sess.SetTimeout(d))
}

func (sh *shell) cmdServiceRequest(args []string) {
	if len(args) == 0 {
		fmt.Fprintf(sh.out, "mode: %s, events: %d, coalesced: %d\n",
			sh.coord.Mode(), sh.coord.Processed(), sh.coord.Coalesced())
		return
	}

	switch args[0] {
	case "attach":
		sh.reportErr(sh.coord.AttachInterrupt())
	case "detach":
		sh.reportErr(sh.coord.DetachInterrupt())
	case "poll":
		if len(args) < 2 {
			fmt.Fprintln(sh.out, "Usage: srq poll <interval>")
			return
		}
		d, err := time.ParseDuration(args[1])
		if err != nil {
			sh.reportErr(err)
			return
		}
		sh.reportErr(sh.coord.StartPolling(d))
	case "stop":
		sh.reportErr(sh.coord.StopPolling())
	default:
		fmt.Fprintf(sh.out, "Unknown srq command: %s\n", args[0])
	}
}

func (sh *shell) cmdContact(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(sh.out, "Usage: contact <ohms>")
		return
	}

	threshold, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		sh.reportErr(err)
		return
	}
	checker, err := contact.NewChecker(sh.sess, threshold, contact.WithLogger(sh.logger))
	if err != nil {
		sh.reportErr(err)
		return
	}

	m, err := checker.Check()
	if err != nil {
		sh.reportErr(err)
		return
	}
	fmt.Fprintf(sh.out, "sense high: %g ohm, sense low: %g ohm, %s\n", m.HighOhms, m.LowOhms, m.Result)
}

func (sh *shell) cmdList(args []string) {
	if sh.list == nil {
		fmt.Fprintln(sh.out, "no resource list, start with -resources")
		return
	}

	filter := "?*"
	if len(args) > 0 {
		filter = args[0]
	}
	names, err := sh.list.Names(filter)
	if err != nil {
		sh.reportErr(err)
		return
	}
	for _, name := range names {
		fmt.Fprintln(sh.out, name)
	}
}

func (sh *shell) cmdAdd(args []string) {
	if sh.list == nil {
		fmt.Fprintln(sh.out, "no resource list, start with -resources")
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(sh.out, "Usage: add <name> [alias]")
		return
	}

	entry := resource.Entry{Name: args[0]}
	if len(args) > 1 {
		entry.Alias = args[1]
	}
	added, err := sh.list.Add(entry)
	if err != nil {
		sh.reportErr(err)
		return
	}
	if !added {
		fmt.Fprintln(sh.out, "already listed")
		return
	}
	sh.reportErr(sh.list.Save())
}

func (sh *shell) cmdRemove(args []string) {
	if sh.list == nil {
		fmt.Fprintln(sh.out, "no resource list, start with -resources")
		return
	}
	if len(args) < 1 {
		fmt.Fprintln(sh.out, "Usage: remove <name|alias>")
		return
	}

	if err := sh.list.Remove(args[0]); err != nil {
		sh.reportErr(err)
		return
	}
	sh.reportErr(sh.list.Save())
}
