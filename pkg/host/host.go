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

// Package host drives a machine the way the original hardware did: a fixed
// number of instructions per 60Hz frame, with the timers decaying once per
// frame independently of how many of those instructions actually ran.
package host

import (
	"context"
	"time"

	"github.com/lassandro/gochip8/pkg/machine"
)

const (
	FrameRate = 60
	FrameTime = time.Second / FrameRate

	DefaultStepsPerFrame = 10
)

type Command uint8

const (
	None Command = iota
	TogglePause
	Quit
)

// Frontend is the presentation and input side of the host. Poll writes the
// current key state straight into the keypad it is given.
type Frontend interface {
	Poll(keypad *[machine.KEY_COUNT]bool) Command
	Present(display *machine.Display)
	Tone(on bool)
}

type Runner struct {
	Machine       *machine.Machine
	Frontend      Frontend
	StepsPerFrame int

	// Called with each fault that halts the machine
	OnFault func(err error)

	quit bool
}

func (r *Runner) Done() bool {
	return r.quit || r.Machine.State.RunState == machine.Halted
}

// Frame runs one host frame. Timers are frozen while paused.
func (r *Runner) Frame() error {
	mc := r.Machine

	switch r.Frontend.Poll(&mc.State.Keypad) {
	case TogglePause:
		if mc.State.RunState == machine.Paused {
			mc.Resume()
		} else {
			mc.Pause()
		}
	case Quit:
		r.quit = true
		r.Frontend.Tone(false)
		return nil
	}

	steps := r.StepsPerFrame
	if steps <= 0 {
		steps = DefaultStepsPerFrame
	}

	var fault error

	for i := 0; i < steps && mc.State.RunState == machine.Running; i++ {
		if err := mc.Step(); err != nil {
			fault = err
			break
		}
	}

	if mc.State.RunState != machine.Paused {
		mc.DecrementTimers()
	}

	if mc.State.Draw {
		r.Frontend.Present(&mc.State.Display)
		mc.State.Draw = false
	}

	r.Frontend.Tone(mc.State.RunState == machine.Running && mc.Tone())

	if fault != nil && r.OnFault != nil {
		r.OnFault(fault)
	}

	return fault
}

// Run calls Frame at FrameRate until the context is cancelled, the frontend
// asks to quit, or the machine halts.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(FrameTime)
	defer ticker.Stop()

	for !r.Done() {
		if err := r.Frame(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			r.Frontend.Tone(false)
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
