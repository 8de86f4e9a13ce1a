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

package machine

import (
	"errors"
	"math/rand"
)

var (
	ErrProgramTooLarge   = errors.New("program too large")
	ErrProgramUnreadable = errors.New("program unreadable")
	ErrStackOverflow     = errors.New("stack overflow")
	ErrStackUnderflow    = errors.New("stack underflow")
	ErrProgramCounter    = errors.New("program counter out of range")
)

type RunState uint8

const (
	Running RunState = iota
	Paused
	Halted
)

func (rs RunState) String() string {
	switch rs {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Halted:
		return "halted"
	default:
		return "invalid"
	}
}

// Row-major, index = y*DISPLAY_WIDTH + x
type Display [DISPLAY_WIDTH * DISPLAY_HEIGHT]bool

func (d *Display) Pixel(x, y int) bool {
	return d[y*DISPLAY_WIDTH+x]
}

func (d *Display) Set(x, y int, on bool) {
	d[y*DISPLAY_WIDTH+x] = on
}

// Instruction is the most recently fetched opcode split into every field the
// instruction set addresses, whether or not the opcode uses them.
type Instruction struct {
	Opcode uint16
	Addr   uint16 // nnn
	Byte   uint8  // nn
	Nibble uint8  // n
	X      uint8
	Y      uint8
}

// KeyWait tracks an in-progress Fx0A across steps. Pressed is set once a key
// has gone down; the register is written when that key comes back up.
type KeyWait struct {
	Pressed bool
	Key     uint8
}

type MachineState struct {
	Registers    [REGISTER_COUNT]uint8
	Index        uint16
	Program      uint16
	Stack        [STACK_SIZE]uint16
	StackPointer uint8
	Delay        uint8
	Sound        uint8
	Memory       [MEMSPACE_SIZE]byte

	Display Display
	Draw    bool
	Keypad  [KEY_COUNT]bool

	RunState    RunState
	Instruction Instruction
	KeyWait     KeyWait

	// Unrecognized opcodes executed as no-ops
	Unknown uint64
}

type MachineDebugger interface {
	Step(mc *Machine)
	Read(addr uint16, mc *Machine)
	Write(addr uint16, mc *Machine)
	Unknown(opcode uint16, mc *Machine)
}

type Machine struct {
	State    MachineState
	Debugger MachineDebugger

	// Source for Cxnn, seeded from the clock when nil
	Rand *rand.Rand
}
