package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/classifier"
	"turbine-wpa/internal/engine"
	"turbine-wpa/internal/ingest"
	"turbine-wpa/internal/logger"
	"turbine-wpa/internal/models"
)

// channelFiles флаг -channel COLUMN=path, может повторяться
type channelFiles map[string]string

func (c channelFiles) String() string {
	parts := make([]string, 0, len(c))
	for col, path := range c {
		parts = append(parts, col+"="+path)
	}
	return strings.Join(parts, ",")
}

func (c channelFiles) Set(v string) error {
	col, path, ok := strings.Cut(v, "=")
	if !ok || col == "" || path == "" {
		return fmt.Errorf("expected COLUMN=path, got %q", v)
	}
	c[strings.ToUpper(col)] = path
	return nil
}

// constantFlag необязательная константа: не задана, пока флаг не указан
type constantFlag struct{ v *float64 }

func (c *constantFlag) String() string {
	if c.v == nil {
		return ""
	}
	return fmt.Sprint(*c.v)
}

func (c *constantFlag) Set(s string) error {
	var v float64
	if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	c.v = &v
	return nil
}

type options struct {
	file         string
	channels     channelFiles
	turbineID    string
	timezone     string
	bandPolicy   string
	eps          float64
	skipGate     bool
	estimateOnly bool
	pretty       bool
	logLevel     string

	cutin, cutout, ratedWind, ratedPower, sweptArea constantFlag
}

func parseFlags(args []string) (*options, error) {
	o := &options{channels: channelFiles{}}
	fs := flag.NewFlagSet("wpa", flag.ContinueOnError)
	fs.StringVar(&o.file, "file", "", "SCADA export (.csv or .xlsx)")
	fs.Var(o.channels, "channel", "Per-channel file COLUMN=path, repeatable (e.g. WIND_SPEED=ws.csv)")
	fs.StringVar(&o.turbineID, "turbine", "", "Turbine identifier")
	fs.StringVar(&o.timezone, "tz", "UTC", "Timezone for timestamps without offset and calendar grouping")
	fs.StringVar(&o.bandPolicy, "band-policy", "cap", "Band ceiling policy: cap or error")
	fs.Float64Var(&o.eps, "eps", 0, "DBSCAN radius, 0 for automatic")
	fs.BoolVar(&o.skipGate, "skip-gate", false, "Skip the normal operation sufficiency check")
	fs.BoolVar(&o.estimateOnly, "estimate-only", false, "Only estimate turbine constants")
	fs.BoolVar(&o.pretty, "pretty", false, "Indent JSON output")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level")
	fs.Var(&o.cutin, "cutin", "Cut-in wind speed, m/s")
	fs.Var(&o.cutout, "cutout", "Cut-out wind speed, m/s")
	fs.Var(&o.ratedWind, "rated-wind", "Rated wind speed, m/s")
	fs.Var(&o.ratedPower, "rated-power", "Rated power, kW")
	fs.Var(&o.sweptArea, "swept-area", "Rotor swept area, m2 (required)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if (o.file == "") == (len(o.channels) == 0) {
		return nil, errors.New("exactly one of -file or -channel is required")
	}
	if o.turbineID == "" {
		o.turbineID = "turbine"
	}
	return o, nil
}

func (o *options) constants() models.ConstantsInput {
	return models.ConstantsInput{
		VCutin:    o.cutin.v,
		VCutout:   o.cutout.v,
		VRated:    o.ratedWind.v,
		PRated:    o.ratedPower.v,
		SweptArea: o.sweptArea.v,
	}
}

func (o *options) engineOptions() (engine.Options, error) {
	opts := engine.DefaultOptions()
	loc, err := time.LoadLocation(o.timezone)
	if err != nil {
		return opts, fmt.Errorf("invalid timezone: %w", err)
	}
	policy, err := classifier.ParseBandCeilingPolicy(o.bandPolicy)
	if err != nil {
		return opts, err
	}
	opts.Location = loc
	opts.Classifier.Eps = o.eps
	opts.Classifier.BandPolicy = policy
	opts.SkipDataGate = o.skipGate
	return opts, nil
}

func readDataset(o *options, loc *time.Location) (models.Dataset, error) {
	if o.file != "" {
		return ingest.ReadFile(o.file, loc)
	}
	readers := make(map[string]io.Reader, len(o.channels))
	for col, path := range o.channels {
		f, err := os.Open(path)
		if err != nil {
			return models.Dataset{}, fmt.Errorf("failed to open channel %s: %w", col, err)
		}
		defer f.Close()
		readers[col] = f
	}
	return ingest.MergeChannels(readers, loc)
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(o.logLevel, "console", "")
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	opts, err := o.engineOptions()
	if err != nil {
		return err
	}
	ds, err := readDataset(o, opts.Location)
	if err != nil {
		return err
	}
	log.Info("Dataset loaded", zap.Int("samples", len(ds.Samples)), zap.Strings("columns", ds.Columns))

	eng := engine.New(opts, log)
	req := engine.Request{TurbineID: o.turbineID, Dataset: ds, Constants: o.constants()}

	var out any
	if o.estimateOnly {
		out, err = eng.EstimateConstants(ctx, req)
	} else {
		out, err = eng.Compute(ctx, req)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	if o.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "wpa: %v\n", err)
		switch {
		case errors.Is(err, engine.ErrInvalidInput):
			os.Exit(2)
		case errors.Is(err, engine.ErrInsufficientData):
			os.Exit(3)
		}
		os.Exit(1)
	}
}
