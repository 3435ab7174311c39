package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/vectorwar/arena/internal/config"
	"github.com/vectorwar/arena/internal/database"
	"github.com/vectorwar/arena/internal/dispatcher"
	"github.com/vectorwar/arena/internal/handlers"
	"github.com/vectorwar/arena/internal/inputlog"
	"github.com/vectorwar/arena/internal/parser"
	"github.com/vectorwar/arena/internal/synctest"
	"github.com/vectorwar/arena/internal/util"
	"github.com/vectorwar/arena/internal/worker"
	"github.com/vectorwar/arena/pkg/arena"
	"github.com/vectorwar/arena/pkg/netstatus"
	"github.com/vectorwar/arena/pkg/session"
	"github.com/vectorwar/arena/pkg/snapshot"
)

var errUsage = errors.New("usage")

func printUsage() {
	fmt.Println(`Usage: vectorwar <command> [args]

Commands:
  synctest [frames]          run the rollback consistency check on random inputs
  replay <inputlog>          replay a recorded input log with rollback checks
  record <inputlog> <frames> write a random input log
  script <file>              drive a session through a command script
  dump <snapshot> [out]      render a saved snapshot as text
  save <frames> <out>        advance random frames and write the snapshot
  sessions [dir]             list SQLite session dumps
  version                    print the version`)
}

// run executes one subcommand and returns the process exit code.
func run(ctx context.Context, command string, args []string) int {
	var err error
	switch command {
	case "synctest":
		err = runSyncTest(ctx, args)
	case "replay":
		err = runReplay(ctx, args)
	case "record":
		err = runRecord(args)
	case "script":
		err = runScript(ctx, args)
	case "dump":
		err = runDump(args)
	case "save":
		err = runSave(args)
	case "sessions":
		err = runSessions(args)
	case "version":
		fmt.Printf("%s %s (built %s)\n", ExtensionName, CurrentVersion, BuildDate)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, command)
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		printUsage()
		return 2
	default:
		Logger.Error("Command failed", "command", command, "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
}

func parseCount(s, what string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", errUsage, what, s)
	}
	return n, nil
}

// sessionConfig sizes the pool so a sync test with checkDistance can run.
func sessionConfig(participants, checkDistance int) session.Config {
	a := config.GetArenaConfig()
	if participants <= 0 {
		participants = a.Players
	}
	pool := a.PoolSize
	if pool > 0 && pool < checkDistance+2 {
		pool = checkDistance + 2
	}
	return session.Config{Width: a.Width, Height: a.Height, Participants: participants, PoolSize: pool}
}

// newRecordedSession creates a session whose callbacks feed the worker.
func newRecordedSession(cfg session.Config) (*session.Session, *worker.Recorder, error) {
	var sess *session.Session
	rec := worker.NewRecorder(eventDispatcher, func() arena.Arena { return sess.View() }, config.GetStorageConfig().ArchiveEvery)
	rec.OnError(func(cmd string, err error) {
		Logger.Debug("Dropped session record", "command", cmd, "error", err)
	})
	sess, err := session.New(cfg, session.WithLogger(Logger), session.WithObserver(rec))
	if err != nil {
		return nil, nil, err
	}
	return sess, rec, nil
}

func printResult(res synctest.Result, rollbacks int) {
	fmt.Printf("frames=%d final=%d checksum=%s checks=%d rollbacks=%d duration=%s\n",
		res.Frames, res.FinalFrame, util.FormatChecksum(res.Checksum), res.Checks, rollbacks, res.Duration)
	if res.ExportPath != "" {
		fmt.Println("export:", res.ExportPath)
	}
}

func runSyncTest(ctx context.Context, args []string) error {
	cfg := config.GetSyncTestConfig()
	if len(args) > 0 {
		n, err := parseCount(args[0], "frames")
		if err != nil {
			return err
		}
		cfg.Frames = n
	}

	if err := setup(ctx); err != nil {
		return err
	}

	sessCfg := sessionConfig(0, cfg.CheckDistance)
	sess, rec, err := newRecordedSession(sessCfg)
	if err != nil {
		return err
	}

	runner := synctest.NewRunner(synctest.Config{
		Label:         fmt.Sprintf("synctest_seed%d", cfg.Seed),
		Frames:        cfg.Frames,
		CheckDistance: cfg.CheckDistance,
		DumpDir:       cfg.DumpDir,
		Session:       sessCfg,
	}, sess, eventDispatcher, Logger)

	src := synctest.NewRandomInputs(cfg.Seed, sessCfg.Participants, cfg.DisconnectRate)
	res, err := runner.Run(ctx, src)
	printResult(res, rec.Rollbacks())
	printStatus(os.Stdout, src.Status())
	return err
}

// printStatus lists every participant that did not finish the run connected.
func printStatus(w io.Writer, status *netstatus.Report) {
	for i, info := range status.Participants() {
		if info.State != netstatus.Running {
			fmt.Fprintf(w, "player %d: %s\n", i, info.Label())
		}
	}
}

func runReplay(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: replay needs an input log", errUsage)
	}
	in, err := inputlog.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	if err := setup(ctx); err != nil {
		return err
	}

	cfg := config.GetSyncTestConfig()
	sessCfg := sessionConfig(in.Header.Participants, cfg.CheckDistance)
	sess, rec, err := newRecordedSession(sessCfg)
	if err != nil {
		return err
	}

	label := strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	runner := synctest.NewRunner(synctest.Config{
		Label:         label,
		CheckDistance: cfg.CheckDistance,
		DumpDir:       cfg.DumpDir,
		Session:       sessCfg,
	}, sess, eventDispatcher, Logger)

	res, err := runner.Run(ctx, in)
	printResult(res, rec.Rollbacks())
	return err
}

func runRecord(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: record needs an output path and a frame count", errUsage)
	}
	frames, err := parseCount(args[1], "frames")
	if err != nil {
		return err
	}

	cfg := config.GetSyncTestConfig()
	sessCfg := sessionConfig(0, 0)
	sess, err := session.New(sessCfg, session.WithLogger(Logger))
	if err != nil {
		return err
	}

	w, err := inputlog.Create(args[0], sessCfg.Participants, cfg.Seed)
	if err != nil {
		return err
	}
	src := synctest.NewRandomInputs(cfg.Seed, sessCfg.Participants, cfg.DisconnectRate)
	for range frames {
		frame := int32(sess.FrameNumber())
		inputs, mask, _ := src.Next(frame)
		if err := w.Write(inputlog.NewFrame(frame, inputs, mask)); err != nil {
			w.Close()
			return err
		}
		sess.AdvanceFrame(inputs, mask)
	}
	if err := w.Close(); err != nil {
		return err
	}

	fmt.Printf("recorded %d frames to %s, final=%d checksum=%s\n",
		w.Frames(), args[0], sess.FrameNumber(), util.FormatChecksum(sess.StateChecksum()))
	return nil
}

func runScript(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: script needs a file", errUsage)
	}
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open script: %w", err)
	}
	defer f.Close()

	sessCfg := sessionConfig(0, 0)
	cmds, err := parser.NewParser(Logger, sessCfg.Participants).ParseScript(f)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	if err := setup(ctx); err != nil {
		return err
	}
	sess, _, err := newRecordedSession(sessCfg)
	if err != nil {
		return err
	}

	svc := handlers.NewService(handlers.Dependencies{Session: sess, Config: sessCfg, Logger: Logger})
	svc.RegisterHandlers(eventDispatcher)

	return executeScript(eventDispatcher, cmds, os.Stdout)
}

// executeScript dispatches each command in order and prints what the
// queries return. A script that begins a game but never ends it is ended
// after its last line.
func executeScript(d *dispatcher.Dispatcher, cmds []parser.Command, out io.Writer) error {
	started := false
	for _, cmd := range cmds {
		res, err := d.Dispatch(cmd.Event())
		if err != nil {
			return fmt.Errorf("line %d (%s): %w", cmd.Line, cmd.Verb, err)
		}

		switch cmd.Verb {
		case parser.VerbBegin:
			started = true
		case parser.VerbEnd:
			started = false
			if path, ok := res.(string); ok && path != "" {
				fmt.Fprintf(out, "%d: export %s\n", cmd.Line, path)
			}
		case parser.VerbSave:
			saved := res.(handlers.SaveResult)
			fmt.Fprintf(out, "%d: handle %d frame %d checksum %s\n", cmd.Line, saved.Handle, saved.Frame, util.FormatChecksum(saved.Checksum))
		case parser.VerbFrame:
			fmt.Fprintf(out, "%d: frame %v\n", cmd.Line, res)
		case parser.VerbChecksum:
			sum := res.(uint32)
			fmt.Fprintf(out, "%d: checksum %s\n", cmd.Line, util.FormatChecksum(sum))
			if cmd.HasExpect && sum != cmd.Expect {
				return fmt.Errorf("line %d: checksum %s, expected %s: %w",
					cmd.Line, util.FormatChecksum(sum), util.FormatChecksum(cmd.Expect), synctest.ErrDesync)
			}
		case parser.VerbLog:
			fmt.Fprintf(out, "%d: wrote %v\n", cmd.Line, res)
		}
	}

	if started {
		if _, err := d.Dispatch(dispatcher.Event{Command: handlers.CmdEnd}); err != nil {
			return fmt.Errorf("ending game: %w", err)
		}
	}
	return nil
}

func runDump(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: dump needs a snapshot file", errUsage)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(args) < 2 {
		return snapshot.Dump(os.Stdout, data)
	}
	if err := snapshot.DumpFile(args[1], data); err != nil {
		return err
	}
	fmt.Println("wrote", args[1])
	return nil
}

func runSave(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: save needs a frame count and an output path", errUsage)
	}
	frames, err := parseCount(args[0], "frames")
	if err != nil {
		return err
	}

	cfg := config.GetSyncTestConfig()
	sessCfg := sessionConfig(0, 0)
	sess, err := session.New(sessCfg, session.WithLogger(Logger))
	if err != nil {
		return err
	}
	src := synctest.NewRandomInputs(cfg.Seed, sessCfg.Participants, cfg.DisconnectRate)
	for range frames {
		inputs, mask, _ := src.Next(int32(sess.FrameNumber()))
		sess.AdvanceFrame(inputs, mask)
	}

	buf, err := sess.SaveGameState(sess.FrameNumber())
	if err != nil {
		return err
	}
	defer sess.FreeBuffer(buf)

	if err := os.WriteFile(args[1], buf.Data[:buf.Len()], 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	fmt.Printf("saved frame %d (%d bytes, checksum %s) to %s\n",
		buf.Frame, buf.Len(), util.FormatChecksum(buf.Checksum), args[1])
	return nil
}

func runSessions(args []string) error {
	dir := viper.GetString("storage.sqlite.outputDir")
	if len(args) > 0 {
		dir = args[0]
	}
	paths, err := database.GetBackupDBPaths(dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		fmt.Println("no session dumps in", dir)
		return nil
	}
	for _, p := range paths {
		fmt.Println(p)
	}
	return nil
}
