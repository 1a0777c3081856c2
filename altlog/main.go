package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/itohio/goalt/pkg/config"
)

func main() {
	var (
		configFlag  = flag.String("config", "altlog.yaml", "Configuration file path")
		deviceFlag  = flag.String("device", "", "Flash device override: memory, image or serial")
		imageFlag   = flag.String("image", "", "Flash image file override")
		portFlag    = flag.String("p", "", "Serial port override (e.g., COM3 or /dev/ttyACM0)")
		timeoutFlag = flag.Duration("timeout", 0, "Per-operation timeout override (e.g., 10s)")
	)
	flag.Usage = usage
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *deviceFlag != "" {
		cfg.Flash.Device = *deviceFlag
	}
	if *imageFlag != "" {
		cfg.Flash.Image = *imageFlag
	}
	if *portFlag != "" {
		cfg.Serial.Port = *portFlag
	}
	if *timeoutFlag > 0 {
		cfg.Flash.Timeout = *timeoutFlag
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cmd.noDevice {
		if err := cmd.run(ctx, &app{cfg: cfg, out: os.Stdout}, args[1:]); err != nil {
			log.Fatalf("%s: %v", args[0], err)
		}
		return
	}

	dev, closeDev, err := openDevice(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open flash device: %v", err)
	}

	a := newApp(cfg, dev, os.Stdout)
	err = a.scan(ctx)
	if err == nil {
		err = cmd.run(ctx, a, args[1:])
	}

	if cerr := closeDev(); cerr != nil {
		log.Printf("Failed to close flash device: %v", cerr)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: altlog [flags] <command> [command flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, commands[name].help)
	}

	fmt.Fprintf(out, "\nFlags:\n")
	flag.PrintDefaults()
}
