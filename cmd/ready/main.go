//go:build ebiten

package main

import (
	"errors"
	"flag"
	"log"

	"rdsim/internal/app"
	"rdsim/internal/core"
	"rdsim/internal/session"

	"github.com/hajimehoshi/ebiten/v2"
)

func main() {
	cfg := session.NewConfig()
	cfg.Bind(flag.CommandLine)
	open := flag.String("open", "", "pattern file to open")
	scale := flag.Int("scale", 16, "pixel scale multiplier")
	panel := flag.Int("panel", 280, "width of the parameter panel in pixels")
	tps := flag.Int("tps", 30, "ticks per second")
	save := flag.String("save", "pattern.vti", "file written when S is pressed")
	flag.Parse()

	sess, err := session.New(cfg, nil, nil)
	if err != nil {
		log.Fatalf("creating session: %v", err)
	}
	defer sess.Close()
	if *open != "" {
		if err := sess.Open(*open); err != nil && !core.IsWarning(err) {
			log.Fatalf("opening %s: %v", *open, err)
		}
	}

	game := app.New(sess, *scale, *panel, *save)
	w, h := game.Layout(0, 0)

	ebiten.SetWindowTitle("Ready - " + sess.Title())
	ebiten.SetTPS(*tps)
	ebiten.SetWindowSize(w, h)

	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		log.Fatal(err)
	}
}
