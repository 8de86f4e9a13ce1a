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

// Package disasm renders CHIP-8 opcodes as assembly mnemonics for the
// debugger. Operands follow the usual V<x>/I/DT/ST naming with $-prefixed
// hex immediates; anything outside the instruction set is emitted as data.
package disasm

import (
	"fmt"

	"github.com/lassandro/gochip8/pkg/machine"
)

type Line struct {
	Addr   uint16
	Opcode uint16
	Text   string
}

func (l Line) String() string {
	return fmt.Sprintf("%04X  %04X  %s", l.Addr, l.Opcode, l.Text)
}

func Disassemble(opcode uint16) string {
	ins := machine.Decode(opcode)
	x, y := ins.X, ins.Y

	switch opcode >> 12 {
	case machine.OP_SYS:
		switch opcode {
		case machine.SYS_CLS:
			return "CLS"
		case machine.SYS_RET:
			return "RET"
		}

	case machine.OP_JP:
		return fmt.Sprintf("JP $%03X", ins.Addr)

	case machine.OP_CALL:
		return fmt.Sprintf("CALL $%03X", ins.Addr)

	case machine.OP_SE:
		return fmt.Sprintf("SE V%X, $%02X", x, ins.Byte)

	case machine.OP_SNE:
		return fmt.Sprintf("SNE V%X, $%02X", x, ins.Byte)

	case machine.OP_SER:
		if ins.Nibble == 0 {
			return fmt.Sprintf("SE V%X, V%X", x, y)
		}

	case machine.OP_LD:
		return fmt.Sprintf("LD V%X, $%02X", x, ins.Byte)

	case machine.OP_ADD:
		return fmt.Sprintf("ADD V%X, $%02X", x, ins.Byte)

	case machine.OP_ALU:
		if name, ok := aluNames[uint16(ins.Nibble)]; ok {
			switch uint16(ins.Nibble) {
			case machine.ALU_SHR, machine.ALU_SHL:
				return fmt.Sprintf("%s V%X", name, x)
			default:
				return fmt.Sprintf("%s V%X, V%X", name, x, y)
			}
		}

	case machine.OP_SNER:
		if ins.Nibble == 0 {
			return fmt.Sprintf("SNE V%X, V%X", x, y)
		}

	case machine.OP_LDI:
		return fmt.Sprintf("LD I, $%03X", ins.Addr)

	case machine.OP_JPV:
		return fmt.Sprintf("JP V0, $%03X", ins.Addr)

	case machine.OP_RND:
		return fmt.Sprintf("RND V%X, $%02X", x, ins.Byte)

	case machine.OP_DRW:
		return fmt.Sprintf("DRW V%X, V%X, $%X", x, y, ins.Nibble)

	case machine.OP_KEY:
		switch uint16(ins.Byte) {
		case machine.KEY_SKP:
			return fmt.Sprintf("SKP V%X", x)
		case machine.KEY_SKNP:
			return fmt.Sprintf("SKNP V%X", x)
		}

	case machine.OP_MISC:
		if format, ok := miscFormats[uint16(ins.Byte)]; ok {
			return fmt.Sprintf(format, x)
		}
	}

	return fmt.Sprintf(".word $%04X", opcode)
}

// Listing decodes count consecutive opcodes starting at start. Decoding stops
// early when the next opcode would run past the end of mem.
func Listing(mem []byte, start, count uint16) []Line {
	lines := make([]Line, 0, count)

	for i := uint16(0); i < count; i++ {
		addr := int(start) + int(i)*2

		if addr+1 >= len(mem) {
			break
		}

		opcode := uint16(mem[addr])<<8 | uint16(mem[addr+1])

		lines = append(lines, Line{
			Addr:   uint16(addr),
			Opcode: opcode,
			Text:   Disassemble(opcode),
		})
	}

	return lines
}

var aluNames = map[uint16]string{
	machine.ALU_LD:   "LD",
	machine.ALU_OR:   "OR",
	machine.ALU_AND:  "AND",
	machine.ALU_XOR:  "XOR",
	machine.ALU_ADD:  "ADD",
	machine.ALU_SUB:  "SUB",
	machine.ALU_SHR:  "SHR",
	machine.ALU_SUBN: "SUBN",
	machine.ALU_SHL:  "SHL",
}

var miscFormats = map[uint16]string{
	machine.MISC_LD_DT:  "LD V%X, DT",
	machine.MISC_LD_K:   "LD V%X, K",
	machine.MISC_SET_DT: "LD DT, V%X",
	machine.MISC_SET_ST: "LD ST, V%X",
	machine.MISC_ADD_I:  "ADD I, V%X",
	machine.MISC_LD_F:   "LD F, V%X",
	machine.MISC_LD_B:   "LD B, V%X",
	machine.MISC_STORE:  "LD [I], V%X",
	machine.MISC_LOAD:   "LD V%X, [I]",
}
