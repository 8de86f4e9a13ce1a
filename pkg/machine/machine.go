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
	"fmt"
	"io"
	"math/rand"
	"time"
)

func (mc *MachineState) Reset() {
	*mc = MachineState{}

	copy(mc.Memory[MEMSPACE_FONT:], Font[:])

	mc.Program = MEMSPACE_PROGRAM
	mc.StackPointer = 0
	mc.RunState = Running
}

func (mc *Machine) Load(image []byte) error {
	if len(image) > PROGRAM_MAX_SIZE {
		return fmt.Errorf(
			"%w: %d bytes, limit is %d", ErrProgramTooLarge,
			len(image), PROGRAM_MAX_SIZE,
		)
	}

	mc.State.Reset()
	copy(mc.State.Memory[MEMSPACE_PROGRAM:], image)

	return nil
}

func (mc *Machine) LoadBin(reader io.Reader) error {
	// One extra byte is enough to tell an oversized image apart
	image, err := io.ReadAll(io.LimitReader(reader, int64(PROGRAM_MAX_SIZE)+1))

	if err != nil {
		return fmt.Errorf("%w: %v", ErrProgramUnreadable, err)
	}

	return mc.Load(image)
}

func (mc *Machine) Pause() {
	if mc.State.RunState == Running {
		mc.State.RunState = Paused
	}
}

func (mc *Machine) Resume() {
	if mc.State.RunState == Paused {
		mc.State.RunState = Running
	}
}

func (mc *Machine) Halt() {
	mc.State.RunState = Halted
}

// Called by the host at 60Hz regardless of how many steps ran in between
func (mc *Machine) DecrementTimers() {
	if mc.State.Delay > 0 {
		mc.State.Delay--
	}

	if mc.State.Sound > 0 {
		mc.State.Sound--
	}
}

func (mc *Machine) Tone() bool {
	return mc.State.Sound > 0
}

func (mc *Machine) fault(err error, addr uint16) error {
	mc.Halt()
	return fmt.Errorf("%w at %#04x", err, addr)
}

func (mc *Machine) push(value uint16) error {
	if mc.State.StackPointer >= STACK_SIZE {
		return ErrStackOverflow
	}

	mc.State.Stack[mc.State.StackPointer] = value
	mc.State.StackPointer++
	return nil
}

func (mc *Machine) pop() (uint16, error) {
	if mc.State.StackPointer == 0 {
		return 0, ErrStackUnderflow
	}

	mc.State.StackPointer--
	return mc.State.Stack[mc.State.StackPointer], nil
}

// Indexed accesses wrap to the 12-bit address space
func (mc *Machine) read(addr uint16) byte {
	addr &= MEMSPACE_SIZE - 1

	if mc.Debugger != nil {
		mc.Debugger.Read(addr, mc)
	}

	return mc.State.Memory[addr]
}

func (mc *Machine) write(addr uint16, value byte) {
	addr &= MEMSPACE_SIZE - 1

	mc.State.Memory[addr] = value

	if mc.Debugger != nil {
		mc.Debugger.Write(addr, mc)
	}
}

func (mc *Machine) random() uint8 {
	if mc.Rand == nil {
		mc.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return uint8(mc.Rand.Intn(256))
}

func (mc *Machine) skipIf(cond bool) {
	if cond {
		mc.State.Program += 2
	}
}

func (mc *Machine) unknown(opcode uint16) {
	mc.State.Unknown++

	if mc.Debugger != nil {
		mc.Debugger.Unknown(opcode, mc)
	}
}

func Decode(opcode uint16) Instruction {
	return Instruction{
		Opcode: opcode,
		Addr:   opcode & 0x0FFF,
		Byte:   uint8(opcode & 0xFF),
		Nibble: uint8(opcode & 0xF),
		X:      uint8((opcode >> 8) & 0xF),
		Y:      uint8((opcode >> 4) & 0xF),
	}
}

// Step executes a single instruction. Stack faults and fetches past the end
// of memory halt the machine and are returned; unknown opcodes are counted
// and otherwise ignored. Callers must not step a machine that isn't Running.
func (mc *Machine) Step() error {
	pc := mc.State.Program

	if int(pc) > MEMSPACE_SIZE-2 {
		return mc.fault(ErrProgramCounter, pc)
	}

	opcode := uint16(mc.State.Memory[pc])<<8 | uint16(mc.State.Memory[pc+1])
	mc.State.Program += 2

	ins := Decode(opcode)
	mc.State.Instruction = ins

	v := &mc.State.Registers
	x, y := ins.X, ins.Y

	switch opcode >> 12 {
	// CLS  |0000    |0000   |1110   |0000   | Clear display
	// RET  |0000    |0000   |1110   |1110   | Return from subroutine
	// SYS  |0000    |nnn                    | Machine routine (unsupported)
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_SYS:
		switch opcode {
		case SYS_CLS:
			mc.State.Display = Display{}
			mc.State.Draw = true

		case SYS_RET:
			addr, err := mc.pop()

			if err != nil {
				return mc.fault(err, pc)
			}

			mc.State.Program = addr

		default:
			mc.unknown(opcode)
		}

	// JP   |0001    |nnn                    | Jump
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_JP:
		mc.State.Program = ins.Addr

	// CALL |0010    |nnn                    | Call subroutine
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_CALL:
		if err := mc.push(mc.State.Program); err != nil {
			return mc.fault(err, pc)
		}

		mc.State.Program = ins.Addr

	// SE   |0011    |x      |nn             | Skip if Vx == nn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_SE:
		mc.skipIf(v[x] == ins.Byte)

	// SNE  |0100    |x      |nn             | Skip if Vx != nn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_SNE:
		mc.skipIf(v[x] != ins.Byte)

	// SE   |0101    |x      |y      |0000   | Skip if Vx == Vy
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_SER:
		if ins.Nibble != 0 {
			mc.unknown(opcode)
			break
		}

		mc.skipIf(v[x] == v[y])

	// LD   |0110    |x      |nn             | Vx = nn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_LD:
		v[x] = ins.Byte

	// ADD  |0111    |x      |nn             | Vx += nn, flag untouched
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_ADD:
		v[x] += ins.Byte

	// ALU  |1000    |x      |y      |op     | Register arithmetic
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_ALU:
		mc.alu(ins)

	// SNE  |1001    |x      |y      |0000   | Skip if Vx != Vy
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_SNER:
		if ins.Nibble != 0 {
			mc.unknown(opcode)
			break
		}

		mc.skipIf(v[x] != v[y])

	// LD   |1010    |nnn                    | I = nnn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_LDI:
		mc.State.Index = ins.Addr

	// JP   |1011    |nnn                    | Jump to V0 + nnn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_JPV:
		mc.State.Program = ins.Addr + uint16(v[0])

	// RND  |1100    |x      |nn             | Vx = random & nn
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_RND:
		v[x] = mc.random() & ins.Byte

	// DRW  |1101    |x      |y      |n      | Draw n-byte sprite at Vx, Vy
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_DRW:
		mc.draw(ins)

	// SKP  |1110    |x      |1001   |1110   | Skip if key Vx is held
	// SKNP |1110    |x      |1010   |0001   | Skip if key Vx is not held
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_KEY:
		held := mc.State.Keypad[v[x]&0xF]

		switch uint16(ins.Byte) {
		case KEY_SKP:
			mc.skipIf(held)
		case KEY_SKNP:
			mc.skipIf(!held)
		default:
			mc.unknown(opcode)
		}

	// MISC |1111    |x      |op             | Timers, keys, index, memory
	// ---- [ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ _ ]
	case OP_MISC:
		mc.misc(ins)
	}

	if mc.Debugger != nil {
		mc.Debugger.Step(mc)
	}

	return nil
}

// Flags are derived from the operands before Vx is written, and written
// after it, so VF as a destination ends up holding the flag.
func (mc *Machine) alu(ins Instruction) {
	v := &mc.State.Registers
	x, y := ins.X, ins.Y
	vx, vy := v[x], v[y]

	switch uint16(ins.Nibble) {
	case ALU_LD:
		v[x] = vy

	case ALU_OR:
		v[x] = vx | vy

	case ALU_AND:
		v[x] = vx & vy

	case ALU_XOR:
		v[x] = vx ^ vy

	case ALU_ADD:
		sum := uint16(vx) + uint16(vy)
		v[x] = uint8(sum)
		v[REGISTER_FLAG] = boolToFlag(sum > 0xFF)

	case ALU_SUB:
		v[x] = vx - vy
		v[REGISTER_FLAG] = boolToFlag(vy <= vx)

	case ALU_SHR:
		v[x] = vx >> 1
		v[REGISTER_FLAG] = vx & 0x1

	case ALU_SUBN:
		v[x] = vy - vx
		v[REGISTER_FLAG] = boolToFlag(vx <= vy)

	case ALU_SHL:
		v[x] = vx << 1
		v[REGISTER_FLAG] = vx >> 7

	default:
		mc.unknown(ins.Opcode)
	}
}

// Coordinates wrap once at the origin; rows and columns past the edge are
// clipped rather than wrapped.
func (mc *Machine) draw(ins Instruction) {
	v := &mc.State.Registers
	originX := int(v[ins.X]) % DISPLAY_WIDTH
	originY := int(v[ins.Y]) % DISPLAY_HEIGHT

	v[REGISTER_FLAG] = 0

	for row := 0; row < int(ins.Nibble); row++ {
		py := originY + row

		if py >= DISPLAY_HEIGHT {
			break
		}

		sprite := mc.read(mc.State.Index + uint16(row))

		for col := 0; col < 8; col++ {
			px := originX + col

			if px >= DISPLAY_WIDTH {
				break
			}

			if sprite&(0x80>>col) == 0 {
				continue
			}

			i := py*DISPLAY_WIDTH + px

			if mc.State.Display[i] {
				v[REGISTER_FLAG] = 1
			}

			mc.State.Display[i] = !mc.State.Display[i]
		}
	}

	mc.State.Draw = true
}

func (mc *Machine) misc(ins Instruction) {
	v := &mc.State.Registers
	x := ins.X

	switch uint16(ins.Byte) {
	case MISC_LD_DT:
		v[x] = mc.State.Delay

	case MISC_LD_K:
		mc.waitKey(x)

	case MISC_SET_DT:
		mc.State.Delay = v[x]

	case MISC_SET_ST:
		mc.State.Sound = v[x]

	case MISC_ADD_I:
		mc.State.Index += uint16(v[x])

	case MISC_LD_F:
		mc.State.Index = MEMSPACE_FONT + uint16(v[x]&0xF)*FONT_GLYPH

	case MISC_LD_B:
		value := v[x]
		mc.write(mc.State.Index, value/100)
		mc.write(mc.State.Index+1, (value/10)%10)
		mc.write(mc.State.Index+2, value%10)

	case MISC_STORE:
		for i := uint16(0); i <= uint16(x); i++ {
			mc.write(mc.State.Index+i, v[i])
		}

	case MISC_LOAD:
		for i := uint16(0); i <= uint16(x); i++ {
			v[i] = mc.read(mc.State.Index + i)
		}

	default:
		mc.unknown(ins.Opcode)
	}
}

// Fx0A never blocks the caller. Until a key goes down and comes back up the
// program counter is rewound so the same instruction is fetched next step.
func (mc *Machine) waitKey(x uint8) {
	wait := &mc.State.KeyWait

	if !wait.Pressed {
		for key, held := range mc.State.Keypad {
			if held {
				wait.Pressed = true
				wait.Key = uint8(key)
				break
			}
		}

		mc.State.Program -= 2
		return
	}

	if mc.State.Keypad[wait.Key] {
		mc.State.Program -= 2
		return
	}

	mc.State.Registers[x] = wait.Key
	*wait = KeyWait{}
}

func boolToFlag(b bool) uint8 {
	if b {
		return 1
	}

	return 0
}
