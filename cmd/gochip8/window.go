//go:build !headless

// Copyright (C) 2021  Antonio Lassandro

// This program is free software: you can redistribute it and/or modify it
// under the terms of the GNU General Public License as published by the Free
// Software Foundation, either version 3 of the License, or (at your option)
// any later version.

// This program is distributed in the hope that it will be useful, but WITHOUT
// ANY WARRANTY; without even the implied warranty of MERCHANTABILITY or
// FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public License for
// more details.

// You should have received a copy of the GNU General Public License along
// with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"golang.org/x/image/font/basicfont"

	"github.com/lassandro/gochip8/pkg/host"
	"github.com/lassandro/gochip8/pkg/machine"
)

var windowKeys = [machine.KEY_COUNT]ebiten.Key{
	0x0: ebiten.KeyX,
	0x1: ebiten.KeyDigit1,
	0x2: ebiten.KeyDigit2,
	0x3: ebiten.KeyDigit3,
	0x4: ebiten.KeyQ,
	0x5: ebiten.KeyW,
	0x6: ebiten.KeyE,
	0x7: ebiten.KeyA,
	0x8: ebiten.KeyS,
	0x9: ebiten.KeyD,
	0xA: ebiten.KeyZ,
	0xB: ebiten.KeyC,
	0xC: ebiten.KeyDigit4,
	0xD: ebiten.KeyR,
	0xE: ebiten.KeyF,
	0xF: ebiten.KeyV,
}

var (
	pixelOn  = color.RGBA{0xE0, 0xE0, 0xD0, 0xFF}
	pixelOff = color.RGBA{0x10, 0x10, 0x18, 0xFF}
)

type window struct {
	runner *host.Runner
	tone   toner

	image  *ebiten.Image
	pixels []byte
}

func newWindow(runner *host.Runner, tone toner) *window {
	wn := &window{
		runner: runner,
		tone:   tone,
		image:  ebiten.NewImage(machine.DISPLAY_WIDTH, machine.DISPLAY_HEIGHT),
		pixels: make([]byte, machine.DISPLAY_WIDTH*machine.DISPLAY_HEIGHT*4),
	}

	wn.Present(&runner.Machine.State.Display)
	return wn
}

func (wn *window) Poll(keypad *[machine.KEY_COUNT]bool) host.Command {
	for key, hostKey := range windowKeys {
		keypad[key] = ebiten.IsKeyPressed(hostKey)
	}

	switch {
	case inpututil.IsKeyJustPressed(ebiten.KeyEscape):
		return host.Quit
	case inpututil.IsKeyJustPressed(ebiten.KeySpace):
		return host.TogglePause
	}

	return host.None
}

func (wn *window) Present(display *machine.Display) {
	for i, on := range display {
		c := pixelOff
		if on {
			c = pixelOn
		}

		wn.pixels[i*4+0] = c.R
		wn.pixels[i*4+1] = c.G
		wn.pixels[i*4+2] = c.B
		wn.pixels[i*4+3] = c.A
	}

	wn.image.WritePixels(wn.pixels)
}

func (wn *window) Tone(on bool) {
	wn.tone.Tone(on)
}

func (wn *window) Update() error {
	if err := wn.runner.Frame(); err != nil {
		return err
	}

	if wn.runner.Done() {
		return ebiten.Termination
	}

	return nil
}

func (wn *window) Draw(screen *ebiten.Image) {
	bounds := screen.Bounds()

	opts := &ebiten.DrawImageOptions{}
	opts.GeoM.Scale(
		float64(bounds.Dx())/machine.DISPLAY_WIDTH,
		float64(bounds.Dy())/machine.DISPLAY_HEIGHT,
	)
	screen.DrawImage(wn.image, opts)

	if wn.runner.Machine.State.RunState == machine.Paused {
		text.Draw(screen, "PAUSED", basicfont.Face7x13, 8, 16, color.White)
	}
}

func (wn *window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

func runWindow(runner *host.Runner, tone toner, scale int) error {
	if scale <= 0 {
		scale = 1
	}

	ebiten.SetTPS(host.FrameRate)
	ebiten.SetWindowTitle("gochip8")
	ebiten.SetWindowSize(
		machine.DISPLAY_WIDTH*scale, machine.DISPLAY_HEIGHT*scale,
	)

	wn := newWindow(runner, tone)
	runner.Frontend = wn

	defer wn.Tone(false)

	return ebiten.RunGame(wn)
}
