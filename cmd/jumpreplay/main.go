// Command jumpreplay scores recorded contact mat sessions offline.
//
// Each fixture argument holds the mat output of one sub-test, in protocol
// order. The Completed Result is printed as JSON and optionally plotted.
//
//	jumpreplay -type combined sj.txt cmj.txt abk.txt
//	jumpreplay -type drop_jump -drop-heights 20,40 -plot drop.png d20.txt d40.txt
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/banshee-data/jump.report/internal/config"
	"github.com/banshee-data/jump.report/internal/contactmat"
	"github.com/banshee-data/jump.report/internal/jump"
	"github.com/banshee-data/jump.report/internal/jump/protocol"
	"github.com/banshee-data/jump.report/internal/jump/result"
	"github.com/banshee-data/jump.report/internal/monitoring"
	"github.com/banshee-data/jump.report/internal/report"
	"github.com/banshee-data/jump.report/internal/security"
	"github.com/banshee-data/jump.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Station config providing defaults (optional)")
	testType    = flag.String("type", "", "Test type: single, combined, drop_jump or rebound")
	sensitivity = flag.Float64("sensitivity", 0, "Minimum valid flight in ms (0 = default)")
	dropHeights = flag.String("drop-heights", "", "Comma-separated drop heights in cm")
	foot        = flag.String("foot", "", "Takeoff foot: both, left or right")
	kind        = flag.String("kind", "", "Movement of a single test")
	athlete     = flag.String("athlete", "", "Athlete id recorded on the result")
	plotPath    = flag.String("plot", "", "Write a PNG plot of jump heights to this path")
	logLevel    = flag.String("log-level", "warn", "Log level")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] fixture...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Get())
		return
	}

	log := monitoring.New(monitoring.Config{Level: *logLevel, Pretty: true, Out: os.Stderr})
	monitoring.SetLogger(log)

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := sessionConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	fixtures := make([]io.Reader, 0, flag.NArg())
	for _, path := range flag.Args() {
		f, err := os.Open(path)
		if err != nil {
			log.Fatal().Err(err).Msg("open fixture")
		}
		defer f.Close()
		fixtures = append(fixtures, f)
	}

	r, err := replay(cfg, *athlete, fixtures)
	if err != nil {
		log.Fatal().Err(err).Msg("replay failed")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		log.Fatal().Err(err).Msg("encode result")
	}

	if *plotPath != "" {
		if err := security.ValidateOutputPath(*plotPath); err != nil {
			log.Fatal().Err(err).Msg("refusing plot path")
		}
		if err := report.SavePNG(*plotPath, r); err != nil {
			log.Fatal().Err(err).Msg("plot failed")
		}
		log.Info().Str("path", *plotPath).Msg("plot written")
	}
}

// sessionConfig layers the command-line flags over the optional station
// config file.
func sessionConfig() (jump.Config, error) {
	var cfg jump.Config
	if *configPath != "" {
		sc, err := config.LoadStationConfig(*configPath)
		if err != nil {
			return jump.Config{}, err
		}
		cfg = sc.SessionConfig()
	}
	if *testType != "" {
		tt, err := jump.ParseTestType(*testType)
		if err != nil {
			return jump.Config{}, err
		}
		cfg.TestType = tt
		if tt != jump.TestSingle {
			cfg.Kind = ""
		}
	}
	if cfg.TestType == "" {
		cfg.TestType = jump.TestSingle
	}
	if *sensitivity != 0 {
		cfg.SensitivityMS = *sensitivity
	}
	if *dropHeights != "" {
		heights, err := parseCSVFloatSlice(*dropHeights)
		if err != nil {
			return jump.Config{}, err
		}
		cfg.DropHeightsCM = heights
	}
	if *foot != "" {
		cfg.TakeoffFoot = jump.TakeoffFoot(*foot)
	}
	if *kind != "" {
		cfg.Kind = jump.JumpKind(*kind)
	}
	return cfg, cfg.WithDefaults().Validate()
}

// parseCSVFloatSlice parses a comma-separated list of floats
func parseCSVFloatSlice(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// replay runs one fixture per sub-test through a controller and finishes
// each sub-test at the end of its fixture.
func replay(cfg jump.Config, athleteID string, fixtures []io.Reader) (*result.Result, error) {
	var roster []string
	if athleteID != "" {
		roster = []string{athleteID}
	}
	ctrl, err := protocol.New(cfg, roster)
	if err != nil {
		return nil, err
	}
	if n := ctrl.Session().SubTestCount(); len(fixtures) != n {
		return nil, fmt.Errorf("%s test has %d sub-tests, got %d fixtures", ctrl.Config().TestType, n, len(fixtures))
	}

	log := monitoring.Component("replay")
	for i, fx := range fixtures {
		if i > 0 && !ctrl.NextSubTest() {
			return nil, fmt.Errorf("cannot advance to sub-test %d", i)
		}
		events, err := contactmat.ReadEvents(fx)
		if err != nil {
			return nil, fmt.Errorf("sub-test %d: %w", i, err)
		}
		for _, ev := range events {
			out := ctrl.Apply(ev)
			if out.Phase == jump.PhaseDeviceError {
				return nil, fmt.Errorf("sub-test %d: mat reported a device error", i)
			}
		}

		out, r, err := ctrl.Finish()
		if err != nil {
			return nil, err
		}
		switch out.Phase {
		case jump.PhaseNoJumpsError:
			return nil, fmt.Errorf("sub-test %d: no jumps recorded", i)
		case jump.PhaseFinished:
		default:
			return nil, fmt.Errorf("sub-test %d: finished in phase %s", i, out.Phase)
		}
		log.Debug().Int("sub_test", i).Int("events", len(events)).Int("jumps", len(ctrl.Session().ActiveJumps())).Msg("sub-test finished")
		if r != nil {
			return r, nil
		}
	}
	return nil, errors.New("protocol ended without a result")
}
