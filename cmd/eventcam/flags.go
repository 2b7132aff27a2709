package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/mikeyg42/eventcam/internal/config"
	"github.com/mikeyg42/eventcam/internal/secrets"
)

// cliOptions holds the command line. Flags that were given override the
// configuration file.
type cliOptions struct {
	configPath string
	input      string
	prefix     string
	mask       string
	debug      int
	genMask    bool
	name       string
	timestamp  bool
	outDir     string
	eventsAddr string
	logLevel   string
	seal       string
	genKey     bool
	help       bool

	set map[string]bool
}

func parseFlags(args []string) (*cliOptions, error) {
	o := &cliOptions{set: make(map[string]bool)}

	fs := flag.NewFlagSet("eventcam", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.input, "i", "", "input video source: device index, file or URL (default device 0)")
	fs.StringVar(&o.input, "input", "", "same as -i")
	fs.StringVar(&o.prefix, "o", "", "output file prefix for event segments")
	fs.StringVar(&o.mask, "m", "", "ROI mask file")
	fs.StringVar(&o.mask, "mask", "", "same as -m")
	fs.IntVar(&o.debug, "d", 0, "debug mode: 1 blurred, 2 difference, 3 binary, 4 dilated")
	fs.BoolVar(&o.genMask, "g", false, "generate template image for ROI mask and exit")
	fs.StringVar(&o.name, "name", "", "name of camera, drawn on every frame")
	fs.BoolVar(&o.timestamp, "ts", false, "put time stamp on video")
	fs.BoolVar(&o.timestamp, "timestamp", false, "same as -ts")
	fs.StringVar(&o.outDir, "out-dir", "", "directory for event segments")
	fs.StringVar(&o.eventsAddr, "events-addr", "", "listen address of the websocket event feed, e.g. :8080")
	fs.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVar(&o.seal, "seal", "", "print VALUE sealed with $"+secrets.MasterKeyEnv+" for use in the config file and exit")
	fs.BoolVar(&o.genKey, "gen-key", false, "print a new master key and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			o.help = true
			return o, nil
		}
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func (o *cliOptions) has(names ...string) bool {
	for _, n := range names {
		if o.set[n] {
			return true
		}
	}
	return false
}

// apply copies the given flags onto cfg.
func (o *cliOptions) apply(cfg *config.Config) {
	if o.has("i", "input") {
		cfg.Camera.Input = o.input
	}
	if o.has("o") {
		cfg.Recording.Prefix = o.prefix
	}
	if o.has("m", "mask") {
		cfg.Camera.MaskPath = o.mask
	}
	if o.has("d") {
		cfg.Camera.DebugStage = o.debug
	}
	if o.has("name") {
		cfg.Camera.Name = o.name
	}
	if o.has("ts", "timestamp") {
		cfg.Camera.Timestamp = o.timestamp
	}
	if o.has("out-dir") {
		cfg.Recording.Dir = o.outDir
	}
	if o.has("events-addr") {
		cfg.Feed.Addr = o.eventsAddr
	}
	if o.has("log-level") {
		cfg.Log.Level = o.logLevel
	}
}
