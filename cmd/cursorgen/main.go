// cursorgen generates a human-like cursor trajectory for a task file and
// writes it out as JSON.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/steeringlab/cursorplan/simulate"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "cursorgen",
		Usage: "synthesize a biomechanically plausible cursor trajectory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "task",
				Usage:    "task JSON file with waypoints, constraints, and screen size",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "simulator config JSON file; defaults are used for absent fields",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "output file for the trajectory JSON; stdout when empty",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Usage: "override the noise stream seed",
			},
			&cli.BoolFlag{
				Name:  "no-noise",
				Usage: "disable the motor/device noise stage",
			},
			&cli.IntFlag{
				Name:  "max-steps",
				Usage: "override the trajectory step cap",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("cursorgen")
			} else {
				logger = golog.NewLogger("cursorgen")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return runGenerate(c, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		golog.Global.Fatal(err)
	}
}

func runGenerate(c *cli.Context, logger golog.Logger) error {
	cfg := simulate.DefaultConfig()
	if path := c.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "cannot read config file")
		}
		if cfg, err = simulate.ParseConfig(data); err != nil {
			return err
		}
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Uint64("seed")
	}
	if c.Bool("no-noise") {
		cfg.AddNoise = false
	}
	if c.IsSet("max-steps") {
		cfg.MaxSteps = c.Int("max-steps")
	}

	taskData, err := os.ReadFile(c.String("task"))
	if err != nil {
		return errors.Wrap(err, "cannot read task file")
	}
	var task simulate.Task
	if err := json.Unmarshal(taskData, &task); err != nil {
		return errors.Wrap(err, "cannot decode task file")
	}

	sim, err := simulate.New(cfg, logger)
	if err != nil {
		return err
	}
	samples, err := sim.GenerateTrajectory(context.Background(), task)
	if err != nil {
		return err
	}
	logger.Infow("trajectory generated", "samples", len(samples))

	out, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')

	if path := c.String("out"); path != "" {
		return os.WriteFile(path, out, 0o644)
	}
	_, err = os.Stdout.Write(out)
	return err
}
