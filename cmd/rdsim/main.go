package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"rdsim/internal/core"
	"rdsim/internal/session"
	"rdsim/internal/sims/formula"
)

func main() {
	cfg := session.NewConfig()
	cfg.Bind(flag.CommandLine)
	open := flag.String("open", "", "pattern file to open instead of the default Gray-Scott pattern")
	steps := flag.Int("steps", 1000, "timesteps to compute")
	save := flag.String("save", "", "write the final pattern to this file")
	set := flag.String("set", "", "comma-separated parameter overrides, e.g. F=0.04,k=0.06")
	timestep := flag.Float64("timestep", 0, "override the rule's timestep")
	listRules := flag.Bool("list-rules", false, "list the inbuilt rules and exit")
	listDevices := flag.Bool("list-devices", false, "list OpenCL devices and exit")
	diagnostics := flag.Bool("diagnostics", false, "print the OpenCL diagnostics report and exit")
	quiet := flag.Bool("quiet", false, "only print the final report")
	flag.Parse()

	logger := log.New(os.Stderr, "rdsim: ", log.LstdFlags)
	sess, err := session.New(cfg, nil, logger)
	if err != nil {
		log.Fatalf("creating session: %v", err)
	}
	defer sess.Close()

	if *diagnostics {
		fmt.Println(sess.Diagnostics())
		return
	}
	if *listRules {
		for _, name := range core.Names() {
			fmt.Println(name)
		}
		return
	}
	if *listDevices {
		devices, err := sess.Devices()
		if err != nil {
			log.Fatalf("listing devices: %v", err)
		}
		for ip, platform := range devices {
			for id, d := range platform {
				fmt.Printf("[%d,%d] %s\n", ip, id, d)
			}
		}
		return
	}

	if *open != "" {
		if err := sess.Open(*open); err != nil {
			if !core.IsWarning(err) {
				log.Fatalf("opening %s: %v", *open, err)
			}
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	e := sess.Engine()
	if *timestep > 0 {
		e.SetTimestep(*timestep)
	}
	if err := applyOverrides(e, *set); err != nil {
		log.Fatalf("setting parameters: %v", err)
	}
	if fe, ok := e.(core.FormulaEngine); ok {
		if err := fe.Compile(); err != nil {
			log.Fatalf("compiling formula for %s: %v", formula.Entry, err)
		}
	}

	if !*quiet {
		fmt.Println(sess.Title())
		fmt.Printf("parameters: %s\n", describeParams(e.Parameters()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	last := start
	err = sess.Run(ctx, *steps, func() {
		if *quiet || time.Since(last) < time.Second {
			return
		}
		last = time.Now()
		fmt.Printf("step %d: %.0f steps/s, %.2f Mcell-gen/s\n", e.TimestepsTaken(), sess.FramesPerSecond(), sess.MCGS())
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("run stopped after %d steps: %v", e.TimestepsTaken(), err)
	}
	elapsed := time.Since(start)

	report(e, elapsed)
	if *save != "" {
		if err := sess.Save(*save); err != nil {
			log.Fatalf("saving %s: %v", *save, err)
		}
		fmt.Printf("saved %s\n", *save)
	}
}

// applyOverrides parses "name=value" pairs and applies them by name.
func applyOverrides(e core.Engine, overrides string) error {
	if strings.TrimSpace(overrides) == "" {
		return nil
	}
	for _, pair := range strings.Split(overrides, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return fmt.Errorf("malformed override %q", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("override %q: %w", pair, err)
		}
		if err := e.SetParameterValueByName(name, v); err != nil {
			return err
		}
	}
	return nil
}

func describeParams(params core.ParameterList) string {
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}

func report(e core.Engine, elapsed time.Duration) {
	taken := e.TimestepsTaken()
	fmt.Printf("\n%d steps in %s", taken, elapsed.Round(time.Millisecond))
	if secs := elapsed.Seconds(); secs > 0 && taken > 0 {
		fps := float64(taken) / secs
		fmt.Printf(" (%.0f steps/s, %.2f Mcell-gen/s)", fps, fps*float64(e.Shape().Cells())/1e6)
	}
	fmt.Println()
	img := e.Image()
	for c := 0; c < e.NumChemicals(); c++ {
		st := img.Stats(c)
		fmt.Printf("  %s: min=%.5f max=%.5f mean=%.5f\n", formula.ChemicalName(c), st.Min, st.Max, st.Mean)
	}
}
