package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/itohio/goalt/pkg/config"
	"github.com/itohio/goalt/pkg/datastore"
	"github.com/itohio/goalt/pkg/flash"
	"github.com/itohio/goalt/pkg/flash/serialflash"
	"github.com/itohio/goalt/pkg/flight"
	"github.com/itohio/goalt/pkg/record"
	"github.com/itohio/goalt/pkg/recorder"
	"github.com/itohio/goalt/pkg/sensor"
)

// app holds what every command works on.
type app struct {
	cfg   *config.Config
	dev   flash.Device
	store *datastore.Store
	out   io.Writer
}

func newApp(cfg *config.Config, dev flash.Device, out io.Writer) *app {
	return &app{
		cfg:   cfg,
		dev:   dev,
		store: datastore.New(dev),
		out:   out,
	}
}

// withTimeout bounds a single store operation by the configured timeout.
func (a *app) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.cfg.Flash.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.cfg.Flash.Timeout)
}

// scan recovers the log state. A whole-device pass is bounded only by ctx.
func (a *app) scan(ctx context.Context) error {
	if err := a.store.Scan(ctx); err != nil {
		return fmt.Errorf("failed to scan flash log: %w", err)
	}
	return nil
}

// progressEvery is how often record reports progress.
const progressEvery = 20

type command struct {
	help     string
	noDevice bool
	run      func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"info":     {help: "show device and log usage", run: runInfo},
	"sessions": {help: "list recorded sessions with a flight summary", run: runSessions},
	"dump":     {help: "export records as CSV [-session n] [-max-points n] [-o file]", run: runDump},
	"erase":    {help: "erase the whole device -y", run: runErase},
	"record":   {help: "log a simulated flight [-duration d]", run: runRecord},
	"fill":     {help: "append simulated sessions quickly [-sessions n] [-entries n]", run: runFill},
	"selftest": {help: "verify the log store round trip [-y to use the device]", run: runSelftest},
	"ports":    {help: "list serial ports", noDevice: true, run: runPorts},
}

func runInfo(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	s := a.store
	cursor := s.WriteCursor()
	free := uint32(0)
	if cursor < s.Ceiling() {
		free = (s.Ceiling() - cursor) / record.Size
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "device:\t%s\n", a.cfg.Flash.Device)
	fmt.Fprintf(w, "size:\t%d bytes\n", a.dev.Size())
	fmt.Fprintf(w, "capacity:\t%d records\n", s.Capacity())
	fmt.Fprintf(w, "write cursor:\t%d\n", cursor)
	fmt.Fprintf(w, "entries:\t%d\n", s.EntryCount())
	fmt.Fprintf(w, "sessions:\t%d\n", s.SessionCount())
	fmt.Fprintf(w, "free:\t%d records (%s at %s)\n", free,
		time.Duration(free)*a.cfg.Logging.Interval, a.cfg.Logging.Interval)
	fmt.Fprintf(w, "full:\t%t\n", s.Full())
	return w.Flush()
}

func runSessions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	sessions, err := a.store.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(a.out, "no sessions")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTART\tRECORDS\tDURATION\tMAX HEIGHT\tLAUNCH\tMIN BATTERY\tCOMPLETE")
	for _, s := range sessions {
		sum := flight.Analyze(s.Samples, a.cfg.Logging.Interval, a.cfg.Flight)
		launch := "-"
		if sum.Launched {
			launch = fmt.Sprintf("%s @ %.1f",
				time.Duration(sum.LaunchIndex)*a.cfg.Logging.Interval, sum.LaunchHeight)
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%.1f\t%s\t%.2f V\t%t\n",
			s.Index, s.Start, len(s.Samples), sum.Duration, sum.MaxHeight, launch, sum.MinBattery, s.Complete)
	}
	return w.Flush()
}

func runDump(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	session := fs.Int("session", -1, "Session index to export (-1 = all)")
	maxPoints := fs.Int("max-points", 0, "Decimate each session to at most n rows (0 = all)")
	output := fs.String("o", "", "Output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sessions, err := a.store.Sessions(ctx)
	if err != nil {
		return err
	}
	if *session >= 0 {
		if *session >= len(sessions) {
			return fmt.Errorf("session %d not found, log has %d", *session, len(sessions))
		}
		sessions = sessions[*session : *session+1]
	}

	write := func(w io.Writer) error {
		return writeCSV(w, sessions, a.cfg, *maxPoints)
	}
	if *output == "" {
		return write(a.out)
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *output, err)
	}
	if err := writeAndClose(f, write); err != nil {
		return fmt.Errorf("failed to write %s: %w", *output, err)
	}
	return nil
}

// writeAndClose runs write on wc and closes it. A close error is reported
// when the write itself succeeded.
func writeAndClose(wc io.WriteCloser, write func(io.Writer) error) error {
	if err := write(wc); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func runErase(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("erase", flag.ContinueOnError)
	yes := fs.Bool("y", false, "Confirm erasing the whole device")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("refusing to erase %d sessions without -y", a.store.SessionCount())
	}

	opCtx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.store.Erase(opCtx); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "erased")
	return nil
}

func runRecord(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	duration := fs.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	mock := sensor.NewMock(&a.cfg.Mock)
	rec := recorder.New(a.store, mock.Set(), a.cfg.Logging)
	rec.OnSample(func(s record.Sample) {
		if n := rec.Stats().Entries; n%progressEvery == 0 {
			fmt.Fprintf(a.out, "%d records, last %s\n", n, s)
		}
	})
	rec.OnFull(func() {
		fmt.Fprintln(a.out, "storage full")
	})

	err := rec.Run(ctx)
	stats := rec.Stats()
	fmt.Fprintf(a.out, "recorded %d records in %d sessions\n", stats.Entries, stats.Sessions)
	if errors.Is(err, recorder.ErrStorageFull) {
		return nil
	}
	return err
}

func runFill(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("fill", flag.ContinueOnError)
	sessions := fs.Int("sessions", 3, "Number of sessions to append")
	entries := fs.Int("entries", 100, "Records per session")
	if err := fs.Parse(args); err != nil {
		return err
	}

	total := 0
	for i := range *sessions {
		mock := sensor.NewMock(&a.cfg.Mock)
		rec := recorder.New(a.store, mock.Set(), a.cfg.Logging)

		for range *entries {
			opCtx, cancel := a.withTimeout(ctx)
			ok, err := rec.Step(opCtx)
			cancel()
			if err != nil {
				return err
			}
			if !ok {
				rec.EndSession()
				total += rec.Stats().Entries
				fmt.Fprintf(a.out, "storage full after %d records in session %d\n", rec.Stats().Entries, i)
				fmt.Fprintf(a.out, "appended %d records\n", total)
				return nil
			}
			// simulated time, no waiting
			mock.Advance(a.cfg.Logging.Interval)
		}

		rec.EndSession()
		total += rec.Stats().Entries
	}

	fmt.Fprintf(a.out, "appended %d records in %d sessions\n", total, *sessions)
	return nil
}

func runSelftest(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("selftest", flag.ContinueOnError)
	yes := fs.Bool("y", false, "Run against the configured device, erasing it")
	if err := fs.Parse(args); err != nil {
		return err
	}

	dev := a.dev
	if !*yes {
		dev = flash.NewMemory(a.dev.Size())
		fmt.Fprintf(a.out, "selftest on a %d byte in-memory device\n", dev.Size())
	} else {
		log.Printf("Selftest erases the %s device", a.cfg.Flash.Device)
	}

	if err := selftest(ctx, dev, a.out); err != nil {
		return fmt.Errorf("selftest failed: %w", err)
	}
	fmt.Fprintln(a.out, "selftest ok")

	// the configured store was erased underneath
	if *yes {
		return a.scan(ctx)
	}
	return nil
}

func runPorts(ctx context.Context, a *app, args []string) error {
	ports, err := serialflash.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Fprintln(a.out, "no serial ports")
		return nil
	}
	for _, p := range ports {
		fmt.Fprintln(a.out, p.Name)
	}
	return nil
}
