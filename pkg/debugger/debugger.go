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

package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lassandro/gochip8/pkg/disasm"
	"github.com/lassandro/gochip8/pkg/machine"
)

var _ machine.MachineDebugger = (*Debugger)(nil)

func (dbg *Debugger) out() io.Writer {
	if dbg.Output == nil {
		return os.Stdout
	}

	return dbg.Output
}

func (dbg *Debugger) Step(mc *machine.Machine) {
	if dbg.HandleBreak == nil {
		return
	}

	if dbg.Break {
		dbg.HandleBreak(dbg, mc)
		return
	}

	for _, breakpoint := range dbg.Breakpoints {
		if mc.State.Program == breakpoint.Addr {
			dbg.HandleBreak(dbg, mc)
			break
		}
	}
}

func (dbg *Debugger) Read(addr uint16, mc *machine.Machine) {
	if dbg.HandleRead == nil {
		return
	}

	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == WriteWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleRead(addr, dbg, mc)
			break
		}
	}
}

func (dbg *Debugger) Write(addr uint16, mc *machine.Machine) {
	if dbg.HandleWrite == nil {
		return
	}

	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Type == ReadWatch {
			continue
		}

		if addr == watchpoint.Addr {
			dbg.HandleWrite(addr, dbg, mc)
			break
		}
	}
}

func (dbg *Debugger) Unknown(opcode uint16, mc *machine.Machine) {
	if dbg.HandleUnknown != nil {
		dbg.HandleUnknown(opcode, dbg, mc)
	}
}

// Returns false when a breakpoint already exists at addr
func (dbg *Debugger) AddBreakpoint(addr uint16) bool {
	for _, breakpoint := range dbg.Breakpoints {
		if breakpoint.Addr == addr {
			return false
		}
	}

	dbg.Breakpoints = append(dbg.Breakpoints, Breakpoint{Addr: addr})
	return true
}

func (dbg *Debugger) AddWatchpoint(addr uint16, wtype WatchpointType) bool {
	for _, watchpoint := range dbg.Watchpoints {
		if watchpoint.Addr == addr && watchpoint.Type == wtype {
			return false
		}
	}

	dbg.Watchpoints = append(dbg.Watchpoints, Watchpoint{addr, wtype})
	return true
}

func (dbg *Debugger) PrintDisasm(mc *machine.MachineState, addr uint16, count uint16) {
	w := dbg.out()
	lines := disasm.Listing(mc.Memory[:], addr, count)

	if len(lines) == 0 {
		fmt.Fprintf(w, "No instruction found at %#04x\n", addr)
		return
	}

	for _, line := range lines {
		if label, ok := dbg.label(line.Addr); ok {
			fmt.Fprintf(w, "\033[1;30m%s:\033[0m\n", label)
		}

		marker := "  "
		if line.Addr == mc.Program {
			marker = "=>"
		}

		fmt.Fprintf(
			w, "%s \033[1m[%#04x]\033[0m %04X  %s\n",
			marker, line.Addr, line.Opcode, line.Text,
		)
	}
}

func (dbg *Debugger) label(addr uint16) (string, bool) {
	if dbg.SymTable == nil {
		return "", false
	}

	label, ok := dbg.SymTable.Labels[addr]
	return label, ok
}

// Resolves a label through the symbol table, if one is loaded
func (dbg *Debugger) Lookup(label string) (uint16, bool) {
	if dbg.SymTable == nil {
		return 0, false
	}

	return dbg.SymTable.Lookup(label)
}

// PrintSource prints count source lines starting from the statement that
// assembled to addr, prefixing each with its address when it has one.
func (dbg *Debugger) PrintSource(addr uint16, count uint16) {
	w := dbg.out()

	if dbg.Source == nil || dbg.SymTable == nil {
		fmt.Fprintln(w, "No source file loaded")
		return
	}

	offset, exists := dbg.SymTable.Symbols[addr]

	if !exists {
		fmt.Fprintf(w, "No instruction found at %#04x\n", addr)
		return
	}

	lines := make(map[int64]uint16, len(dbg.SymTable.Symbols))
	for lineaddr, linebyte := range dbg.SymTable.Symbols {
		lines[linebyte] = lineaddr
	}

	if _, err := dbg.Source.Seek(offset, io.SeekStart); err != nil {
		fmt.Fprintln(w, err)
		return
	}

	scanner := bufio.NewScanner(dbg.Source)

	for i := uint16(0); i < count && scanner.Scan(); i++ {
		line := scanner.Text()

		if lineaddr, ok := lines[offset]; ok {
			fmt.Fprintf(w, "\033[1m[%#04x]\033[0m ", lineaddr)
		} else {
			fmt.Fprint(w, "\033[1;30m~~~~~~~~\033[0m ")
		}

		fmt.Fprintln(w, line)

		offset += int64(len(line) + 1)
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(w, err)
	}
}

func (dbg *Debugger) PrintMem(mc *machine.MachineState, addr, count uint16) {
	w := dbg.out()

	for i := uint32(addr); i < uint32(addr)+uint32(count); i++ {
		if i >= machine.MEMSPACE_SIZE {
			break
		}

		if i == uint32(addr) {
			fmt.Fprintf(w, "\033[1m[%#04x]\033[0m ", i)
		} else if (i-uint32(addr))%8 == 0 {
			fmt.Fprintln(w)
			fmt.Fprintf(w, "\033[1m[%#04x]\033[0m ", i)
		}

		result := mc.Memory[i]

		if result == 0 {
			fmt.Fprintf(w, "\033[1;30m%#02x\033[0m ", result)
		} else {
			fmt.Fprintf(w, "%#02x ", result)
		}
	}

	fmt.Fprintln(w)
}

func (dbg *Debugger) PrintRegisters(mc *machine.MachineState) {
	w := dbg.out()

	for i, register := range mc.Registers {
		fmt.Fprintf(w, "\033[1mV%X:\033[0m %#02x\t", i, register)
		if i%8 == 7 {
			fmt.Fprintln(w)
		}
	}

	fmt.Fprintf(
		w,
		"\033[1mPC:\033[0m %#04x\t\033[1mI:\033[0m %#04x\t"+
			"\033[1mSP:\033[0m %d\t\033[1mDT:\033[0m %d\t\033[1mST:\033[0m %d\n",
		mc.Program,
		mc.Index,
		mc.StackPointer,
		mc.Delay,
		mc.Sound,
	)

	stack := make([]string, 0, mc.StackPointer)
	for _, addr := range mc.Stack[:mc.StackPointer] {
		stack = append(stack, fmt.Sprintf("%#04x", addr))
	}

	fmt.Fprintf(w, "\033[1mStack:\033[0m [%s]\n", strings.Join(stack, " "))
}

func (dbg *Debugger) PrintKeypad(mc *machine.MachineState) {
	w := dbg.out()

	for key, held := range mc.Keypad {
		if held {
			fmt.Fprintf(w, "\033[1m%X\033[0m ", key)
		} else {
			fmt.Fprintf(w, "\033[1;30m%X\033[0m ", key)
		}
	}

	fmt.Fprintln(w)
}
