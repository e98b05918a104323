package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/cyber-run/OpenMV-H7/config"
	"github.com/cyber-run/OpenMV-H7/data"
	"github.com/cyber-run/OpenMV-H7/logging"
	"github.com/cyber-run/OpenMV-H7/services/calibration"
	"github.com/cyber-run/OpenMV-H7/vision"
	"github.com/cyber-run/OpenMV-H7/vision/colorblob"
)

const (
	flagConfig = "config"
	flagDebug  = "debug"
	flagSpeed  = "speed"
	flagCode   = "code"
	flagFreq   = "freq"
	flagPlot   = "plot"
)

func codeFlag() cli.Flag {
	return &cli.UintFlag{
		Name:  flagCode,
		Usage: "color code of the target, 0 for the primary code of the config",
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:            "panbot",
		Usage:           "track and follow colored targets with a pan camera robot",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE`",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "reset",
				Usage:  "release every servo and center the pan",
				Action: withRobot(resetAction),
			},
			{
				Name:   "track",
				Usage:  "keep a target centered with the pan servo",
				Flags:  []cli.Flag{codeFlag()},
				Action: withRobot(trackAction),
			},
			{
				Name:  "follow",
				Usage: "drive after a target",
				Flags: []cli.Flag{
					codeFlag(),
					&cli.Float64Flag{
						Name:  flagSpeed,
						Value: 0.5,
						Usage: "forward drive in [-1, 1]",
					},
				},
				Action: withRobot(followAction),
			},
			{
				Name:  "calibrate",
				Usage: "find the pan range and record the response to a target oscillating at --freq",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:     flagFreq,
						Required: true,
						Usage:    "oscillation frequency of the target in Hz",
					},
				},
				Action: withRobot(calibrateAction),
			},
			{
				Name:      "analyze",
				Usage:     "fit the gain and phase of a recorded curve",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:  flagFreq,
						Usage: "oscillation frequency in Hz, taken from the file name when unset",
					},
					&cli.StringFlag{
						Name:  flagPlot,
						Usage: "also chart the curve to `IMAGE` (png, svg, pdf)",
					},
				},
				Action: analyzeAction,
			},
		},
	}
}

func newLogger(c *cli.Context) logging.Logger {
	if c.Bool(flagDebug) {
		return logging.NewDebugLogger("panbot")
	}
	return logging.NewLogger("panbot")
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	var cfg *config.Config
	if path := c.String(flagConfig); path != "" {
		read, err := config.Read(path, logger)
		if err != nil {
			return nil, err
		}
		cfg = read
	} else {
		def := config.Default()
		cfg = &def
	}
	if !c.Bool(flagDebug) {
		level, err := logging.LevelFromString(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	return cfg, nil
}

type robotAction func(c *cli.Context, r *robot) error

// withRobot assembles the robot for one command and releases it afterwards.
func withRobot(action robotAction) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		logger := newLogger(c)
		defer func() {
			//nolint:errcheck
			_ = logger.Sync()
		}()
		cfg, err := loadConfig(c, logger)
		if err != nil {
			return err
		}
		r, err := openRobot(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Combine(err, r.Close())
		}()
		return action(c, r)
	}
}

func targetCode(c *cli.Context, cfg *config.Config) vision.Code {
	if code := c.Uint(flagCode); code != 0 {
		return vision.Code(code)
	}
	return cfg.Calibration.PrimaryCode
}

// endOfReplay turns running out of recorded frames into a normal stop.
func endOfReplay(err error) error {
	if errors.Is(err, colorblob.ErrNoMoreFrames) {
		return nil
	}
	return err
}

func resetAction(c *cli.Context, r *robot) error {
	return r.servos.SoftReset(c.Context)
}

func trackAction(c *cli.Context, r *robot) error {
	code := targetCode(c, r.cfg)
	r.logger.Infow("tracking", "code", code)
	return endOfReplay(r.tracker.Run(c.Context, code))
}

func followAction(c *cli.Context, r *robot) error {
	speed := c.Float64(flagSpeed)
	if speed < -1 || speed > 1 {
		return errors.Errorf("speed must be in [-1, 1], got %v", speed)
	}
	code := targetCode(c, r.cfg)
	r.logger.Infow("following", "code", code, "speed", speed)
	return endOfReplay(r.tracker.Follow(c.Context, speed, code))
}

func calibrateAction(c *cli.Context, r *robot) error {
	sink := data.NewCSVSink(appFs, r.cfg.Data.Dir, r.logger.Sublogger("data"))
	tuner, err := calibration.NewTuner(r.cfg.Calibration, calibration.Deps{
		Source:  r.source,
		Tracker: r.tracker,
		Pan:     r.servos,
		Sink:    sink,
		Clock:   r.clk,
		Logger:  r.logger.Sublogger("calibration"),
	})
	if err != nil {
		return err
	}
	name, err := tuner.Run(c.Context, c.Float64(flagFreq))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, name)
	return nil
}

func analyzeAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return errors.New("analyze needs a FILE")
	}
	freq := c.Float64(flagFreq)
	if freq == 0 {
		var ok bool
		if freq, ok = data.FreqFromFileName(path); !ok {
			return errors.Errorf("no frequency in the name of %q, pass --%s", path, flagFreq)
		}
	}
	rec, err := data.ReadCSVFile(appFs, path)
	if err != nil {
		return err
	}
	res, err := data.Analyze(rec, freq)
	if err != nil {
		return err
	}

	w := c.App.Writer
	fmt.Fprintf(w, "file:       %s\n", path)
	fmt.Fprintf(w, "frequency:  %g Hz\n", res.Freq)
	fmt.Fprintf(w, "samples:    %d over %.2f s\n", res.Samples, res.Duration)
	fmt.Fprintf(w, "target:     %.2f deg amplitude, %.2f deg offset\n", res.Target.Amplitude, res.Target.Offset)
	fmt.Fprintf(w, "pan:        %.2f deg amplitude, %.2f deg offset\n", res.Pan.Amplitude, res.Pan.Offset)
	fmt.Fprintf(w, "gain:       %.3f\n", res.Gain)
	fmt.Fprintf(w, "phase:      %.1f deg\n", res.PhaseDeg)
	fmt.Fprintf(w, "error:      mean %.2f, rms %.2f, max %.2f deg\n", res.MeanError, res.RMSError, res.MaxError)

	if out := c.String(flagPlot); out != "" {
		if err := data.WritePlot(appFs, out, rec, freq); err != nil {
			return err
		}
		fmt.Fprintf(w, "plot:       %s\n", out)
	}
	return nil
}
