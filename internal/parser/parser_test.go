package parser

import (
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwar/arena/internal/handlers"
	"github.com/vectorwar/arena/pkg/arena"
)

func newTestParser() *Parser {
	return NewParser(slog.Default(), 2)
}

func TestParseInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    arena.Input
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"none", "none", 0, false},
		{"dash", " - ", 0, false},
		{"single", "thrust", arena.InputThrust, false},
		{"pipe joined", "thrust|fire", arena.InputThrust | arena.InputFire, false},
		{"plus joined", "left+fire", arena.InputRotateLeft | arena.InputFire, false},
		{"upper case", "RIGHT", arena.InputRotateRight, false},
		{"numeric", "17", arena.InputThrust | arena.InputFire, false},
		{"hex", "0x3", arena.InputThrust | arena.InputBrake, false},
		{"unknown", "jump", 0, true},
		{"too large", "256", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadArgument)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseInput_RoundTripsString(t *testing.T) {
	for v := range 64 {
		in := arena.Input(v)
		got, err := ParseInput(in.String())
		require.NoError(t, err)
		assert.Equal(t, in, got, in.String())
	}
}

func TestParseFrameLine(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		name    string
		line    string
		want    Frame
		wantErr bool
	}{
		{"both", "thrust, fire", Frame{Inputs: []arena.Input{arena.InputThrust, arena.InputFire}}, false},
		{"missing trailing", "brake", Frame{Inputs: []arena.Input{arena.InputBrake, 0}}, false},
		{"blank", "", Frame{Inputs: []arena.Input{0, 0}}, false},
		{"disconnect", "thrust,left ; disconnect=1", Frame{Inputs: []arena.Input{arena.InputThrust, arena.InputRotateLeft}, DisconnectMask: 2}, false},
		{"disconnect both", ";disconnect=0|1", Frame{Inputs: []arena.Input{0, 0}, DisconnectMask: 3}, false},
		{"too many", "thrust,fire,left", Frame{}, true},
		{"slot out of range", "thrust; disconnect=2", Frame{}, true},
		{"bad tail", "thrust; drop=1", Frame{}, true},
		{"bad input", "thrust, warp", Frame{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.ParseFrameLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCommand(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		name   string
		line   string
		want   Command
		wantOK bool
	}{
		{"comment", "# setup", Command{}, false},
		{"blank", "   ", Command{}, false},
		{"begin quoted", `begin "duel one"`, Command{Verb: VerbBegin, Label: "duel one"}, true},
		{"save", "save", Command{Verb: VerbSave}, true},
		{"load", "load 2 # rewind", Command{Verb: VerbLoad, Handle: 2}, true},
		{"free", "FREE 1", Command{Verb: VerbFree, Handle: 1}, true},
		{"log", "log 1 out/state.log", Command{Verb: VerbLog, Handle: 1, Filename: "out/state.log"}, true},
		{"checksum bare", "checksum", Command{Verb: VerbChecksum}, true},
		{"checksum expect", "checksum 0000abcd", Command{Verb: VerbChecksum, Expect: 0xabcd, HasExpect: true}, true},
		{"end", "end", Command{Verb: VerbEnd}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := p.ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseCommand_Errors(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		line string
		err  error
	}{
		{"teleport 3", ErrUnknownCommand},
		{"load", ErrBadArgument},
		{"load zero", ErrBadArgument},
		{"free 0", ErrBadArgument},
		{"log 1", ErrBadArgument},
		{"save now", ErrBadArgument},
		{"advance thrust,fire,left", ErrBadArgument},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, ok, err := p.ParseCommand(tt.line)
			assert.False(t, ok)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, _, err := p.ParseCommand("checksum nothex")
	assert.Error(t, err)
}

func TestParseScript(t *testing.T) {
	script := `# two frames then rewind
begin duel

advance thrust, fire
save
advance left, right ; disconnect=0
load 1
checksum
end
`
	cmds, err := newTestParser().ParseScript(strings.NewReader(script))
	require.NoError(t, err)
	require.Len(t, cmds, 7)

	assert.Equal(t, VerbBegin, cmds[0].Verb)
	assert.Equal(t, 2, cmds[0].Line)
	assert.Equal(t, 4, cmds[1].Line)
	assert.Equal(t, uint32(1), cmds[3].Frame.DisconnectMask)
	assert.Equal(t, 1, cmds[4].Handle)
	assert.Equal(t, VerbEnd, cmds[6].Verb)
}

func TestParseScript_ReportsLine(t *testing.T) {
	_, err := newTestParser().ParseScript(strings.NewReader("begin x\nadvance\nwarp\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "line 3")
}

func TestParseFrames(t *testing.T) {
	frames, err := newTestParser().ParseFrames(strings.NewReader("thrust,fire\n# pause\n\n-,-\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []arena.Input{arena.InputThrust, arena.InputFire}, frames[0].Inputs)
	assert.Equal(t, []arena.Input{0, 0}, frames[1].Inputs)

	_, err = newTestParser().ParseFrames(strings.NewReader("thrust\nbogus\n"))
	assert.ErrorContains(t, err, "line 2")
}

func TestCommandEvent(t *testing.T) {
	p := newTestParser()
	tests := []struct {
		line    string
		command string
		payload any
	}{
		{"begin duel", handlers.CmdBegin, "duel"},
		{"advance thrust ; disconnect=1", handlers.CmdAdvance, handlers.AdvancePayload{
			Inputs: []arena.Input{arena.InputThrust, 0}, DisconnectMask: 2,
		}},
		{"save", handlers.CmdSave, nil},
		{"load 3", handlers.CmdLoad, 3},
		{"free 3", handlers.CmdFree, 3},
		{"frame", handlers.CmdFrame, nil},
		{"checksum", handlers.CmdChecksum, nil},
		{"log 2 a.log", handlers.CmdLog, handlers.LogPayload{Handle: 2, Filename: "a.log"}},
		{"end", handlers.CmdEnd, nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, ok, err := p.ParseCommand(tt.line)
			require.NoError(t, err)
			require.True(t, ok)
			e := cmd.Event()
			assert.Equal(t, tt.command, e.Command)
			assert.Equal(t, tt.payload, e.Payload)
		})
	}
}
