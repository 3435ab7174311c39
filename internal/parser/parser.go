// Package parser reads the text formats used to drive a session offline:
// per-frame input lines and scheduler scripts.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/handlers"
	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/pkg/arena"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrBadArgument    = errors.New("bad argument")
)

// Script verbs.
const (
	VerbBegin    = "begin"
	VerbAdvance  = "advance"
	VerbSave     = "save"
	VerbLoad     = "load"
	VerbFree     = "free"
	VerbFrame    = "frame"
	VerbChecksum = "checksum"
	VerbLog      = "log"
	VerbEnd      = "end"
)

// Frame is one tick of inputs for every participant.
type Frame struct {
	Inputs         []arena.Input
	DisconnectMask uint32
}

// Command is one parsed script line.
type Command struct {
	Line  int
	Verb  string
	Label string
	Frame Frame
	// Handle is the buffer handle for load, free and log. Handles are
	// numbered from 1 in the order save commands run.
	Handle   int
	Filename string
	// Expect is set when a checksum line names the value it should see.
	Expect    uint32
	HasExpect bool
}

// Parser converts text to frames and commands for a fixed participant count.
type Parser struct {
	logger       *slog.Logger
	participants int
}

// NewParser creates a parser for sessions with the given participant count.
func NewParser(logger *slog.Logger, participants int) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger, participants: participants}
}

// ParseInput reads a single participant's input: flag names joined by '|'
// or '+', "none", "-", an empty string, or a plain number.
func ParseInput(s string) (arena.Input, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "", "-", "none":
		return 0, nil
	}
	if v, err := strconv.ParseUint(s, 0, 8); err == nil {
		return arena.Input(v), nil
	}

	var in arena.Input
	for _, name := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == '+' }) {
		bit, ok := arena.InputByName(strings.ToLower(strings.TrimSpace(name)))
		if !ok {
			return 0, fmt.Errorf("%w: unknown input %q", ErrBadArgument, name)
		}
		in |= bit
	}
	return in, nil
}

// parseDisconnect turns "disconnect=0|2" into a mask with bits 0 and 2 set.
func (p *Parser) parseDisconnect(s string) (uint32, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) != "disconnect" {
		return 0, fmt.Errorf("%w: expected disconnect=<slots>, got %q", ErrBadArgument, s)
	}
	var mask uint32
	for _, slot := range strings.Split(value, "|") {
		n, err := strconv.Atoi(strings.TrimSpace(slot))
		if err != nil || n < 0 || n >= p.participants {
			return 0, fmt.Errorf("%w: disconnect slot %q", ErrBadArgument, slot)
		}
		mask |= 1 << n
	}
	return mask, nil
}

// ParseFrameLine reads comma separated per-participant inputs, optionally
// followed by "; disconnect=<slot>[|<slot>]". Missing trailing inputs are
// zero; extra inputs are an error.
func (p *Parser) ParseFrameLine(line string) (Frame, error) {
	f := Frame{Inputs: make([]arena.Input, p.participants)}

	inputs, tail, hasTail := strings.Cut(line, ";")
	if hasTail {
		mask, err := p.parseDisconnect(strings.TrimSpace(tail))
		if err != nil {
			return f, err
		}
		f.DisconnectMask = mask
	}

	if strings.TrimSpace(inputs) == "" {
		return f, nil
	}
	fields := strings.Split(inputs, ",")
	if len(fields) > p.participants {
		return f, fmt.Errorf("%w: %d inputs for %d participants", ErrBadArgument, len(fields), p.participants)
	}
	for i, field := range fields {
		in, err := ParseInput(field)
		if err != nil {
			return f, fmt.Errorf("participant %d: %w", i, err)
		}
		f.Inputs[i] = in
	}
	return f, nil
}

func parseHandle(args string) (int, string, error) {
	head, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	h, err := strconv.Atoi(head)
	if err != nil || h < 1 {
		return 0, "", fmt.Errorf("%w: handle %q", ErrBadArgument, head)
	}
	return h, strings.TrimSpace(rest), nil
}

// ParseCommand reads one script line. Comments and blank lines yield ok=false.
func (p *Parser) ParseCommand(line string) (cmd Command, ok bool, err error) {
	line = util.StripComment(line)
	if line == "" {
		return cmd, false, nil
	}

	verb, args, _ := strings.Cut(line, " ")
	cmd.Verb = strings.ToLower(verb)
	args = strings.TrimSpace(args)

	switch cmd.Verb {
	case VerbBegin:
		cmd.Label = util.TrimQuotes(args)
	case VerbAdvance:
		cmd.Frame, err = p.ParseFrameLine(args)
	case VerbLoad, VerbFree:
		cmd.Handle, _, err = parseHandle(args)
	case VerbLog:
		cmd.Handle, cmd.Filename, err = parseHandle(args)
		if err == nil && cmd.Filename == "" {
			err = fmt.Errorf("%w: log needs a filename", ErrBadArgument)
		}
		cmd.Filename = util.TrimQuotes(cmd.Filename)
	case VerbChecksum:
		if args != "" {
			cmd.Expect, err = util.ParseChecksum(args)
			cmd.HasExpect = err == nil
		}
	case VerbSave, VerbFrame, VerbEnd:
		if args != "" {
			err = fmt.Errorf("%w: %s takes no arguments", ErrBadArgument, cmd.Verb)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, verb)
	}
	if err != nil {
		return cmd, false, err
	}
	return cmd, true, nil
}

// ParseScript reads a whole script. Errors name the offending line.
func (p *Parser) ParseScript(r io.Reader) ([]Command, error) {
	var cmds []Command
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		cmd, ok, err := p.ParseCommand(scanner.Text())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if !ok {
			continue
		}
		cmd.Line = lineNo
		cmds = append(cmds, cmd)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}

	p.logger.Debug("Parsed script", "commands", len(cmds), "lines", lineNo)
	return cmds, nil
}

// ParseFrames reads one frame per non-blank, non-comment line.
func (p *Parser) ParseFrames(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := util.StripComment(scanner.Text())
		if line == "" {
			continue
		}
		f, err := p.ParseFrameLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		frames = append(frames, f)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}
	return frames, nil
}

// Event maps a command to the dispatcher event that carries it out.
func (c Command) Event() dispatcher.Event {
	switch c.Verb {
	case VerbBegin:
		return dispatcher.Event{Command: handlers.CmdBegin, Payload: c.Label}
	case VerbAdvance:
		return dispatcher.Event{Command: handlers.CmdAdvance, Payload: handlers.AdvancePayload{
			Inputs:         c.Frame.Inputs,
			DisconnectMask: c.Frame.DisconnectMask,
		}}
	case VerbSave:
		return dispatcher.Event{Command: handlers.CmdSave}
	case VerbLoad:
		return dispatcher.Event{Command: handlers.CmdLoad, Payload: c.Handle}
	case VerbFree:
		return dispatcher.Event{Command: handlers.CmdFree, Payload: c.Handle}
	case VerbFrame:
		return dispatcher.Event{Command: handlers.CmdFrame}
	case VerbChecksum:
		return dispatcher.Event{Command: handlers.CmdChecksum}
	case VerbLog:
		return dispatcher.Event{Command: handlers.CmdLog, Payload: handlers.LogPayload{Handle: c.Handle, Filename: c.Filename}}
	default:
		return dispatcher.Event{Command: handlers.CmdEnd}
	}
}
