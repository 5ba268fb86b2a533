//go:build !ebiten

package ui

import "rdsim/internal/session"

// HUD is a no-op placeholder for headless builds.
type HUD struct{}

// NewHUD returns nil in the headless build.
func NewHUD(*session.Session, int) *HUD { return nil }

// Update is a no-op in the headless build.
func (h *HUD) Update(int, int, int) {}

// Draw is a no-op in the headless build.
func (h *HUD) Draw(any, int, int) {}
