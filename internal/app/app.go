//go:build ebiten

package app

import (
	"image/color"
	"log"

	"rdsim/internal/render"
	"rdsim/internal/session"
	"rdsim/internal/ui"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Game adapts a session to the ebiten.Game interface, drawing one chemical
// z-slice of the current engine.
type Game struct {
	sess    *session.Session
	painter *render.GridPainter
	hud     *ui.HUD

	scale    int
	panel    int
	paused   bool
	tickOnce bool
	chemical int
	z        int
	gray     bool
	savePath string
}

// New constructs a Game for the provided session. The simulation starts
// paused.
func New(sess *session.Session, scale, panel int, savePath string) *Game {
	s := sess.Engine().Shape()
	return &Game{
		sess:     sess,
		painter:  render.NewGridPainter(s.X, s.Y),
		hud:      ui.NewHUD(sess, panel),
		scale:    scale,
		panel:    panel,
		paused:   true,
		z:        s.Z / 2,
		savePath: savePath,
	}
}

// Update handles per-frame input and advances the simulation.
func (g *Game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyQ) || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyN) {
		g.tickOnce = true
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.report(g.sess.Reset())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyG) {
		g.report(g.sess.Generate())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyB) {
		g.report(g.sess.Blank())
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		g.report(g.sess.Save(g.savePath))
	}
	e := g.sess.Engine()
	if inpututil.IsKeyJustPressed(ebiten.KeyC) {
		g.chemical = (g.chemical + 1) % e.NumChemicals()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		g.gray = !g.gray
		if g.gray {
			g.painter.SetPalette(render.Grayscale())
		} else {
			g.painter.SetPalette(render.DefaultPalette())
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) && g.z < e.Shape().Z-1 {
		g.z++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) && g.z > 0 {
		g.z--
	}

	if !g.paused || g.tickOnce {
		steps := g.sess.Config().StepsPerRender
		if g.tickOnce {
			steps = 1
		}
		if err := g.sess.Step(steps); err != nil {
			g.paused = true
		}
		g.tickOnce = false
	}
	g.hud.Update(g.viewWidth(), g.chemical, g.z)
	return nil
}

func (g *Game) report(err error) {
	if err != nil {
		log.Printf("%v", err)
	}
}

func (g *Game) viewWidth() int {
	w, _ := g.painter.Size()
	return w * g.scale
}

// Draw renders the current slice and the HUD.
func (g *Game) Draw(screen *ebiten.Image) {
	screen.Fill(color.Black)
	img := g.sess.Engine().Image()
	if img != nil {
		lo, hi := render.AutoRange(img, g.chemical)
		g.painter.Blit(screen, img, g.chemical, g.z, lo, hi, g.scale)
	}
	_, h := g.painter.Size()
	g.hud.Draw(screen, g.viewWidth(), h*g.scale)
}

// Layout returns the logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	_, h := g.painter.Size()
	return g.viewWidth() + g.panel, h * g.scale
}
