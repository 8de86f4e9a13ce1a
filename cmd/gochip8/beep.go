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
	"sync/atomic"

	"github.com/ebitengine/oto/v3"
)

const (
	beepSampleRate = 44100
	beepFrequency  = 440
	beepVolume     = 0x1800
)

// beeper plays a square wave while the sound timer is running. oto pulls
// samples from Read on its own goroutine, so the on/off state is atomic.
type beeper struct {
	ctx    *oto.Context
	player *oto.Player
	on     atomic.Bool
	phase  int
}

func newBeeper() (*beeper, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   beepSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
	})

	if err != nil {
		return nil, err
	}

	<-ready

	b := &beeper{ctx: ctx}
	b.player = ctx.NewPlayer(b)
	b.player.Play()

	return b, nil
}

func (b *beeper) Read(p []byte) (int, error) {
	const period = beepSampleRate / beepFrequency

	on := b.on.Load()
	n := len(p) &^ 1

	for i := 0; i < n; i += 2 {
		var sample int16

		if on {
			if b.phase < period/2 {
				sample = beepVolume
			} else {
				sample = -beepVolume
			}
		}

		b.phase = (b.phase + 1) % period

		p[i] = byte(sample)
		p[i+1] = byte(uint16(sample) >> 8)
	}

	return n, nil
}

func (b *beeper) Tone(on bool) {
	b.on.Store(on)
}

func (b *beeper) Close() error {
	return b.player.Close()
}
