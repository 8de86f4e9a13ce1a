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
	"bufio"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lassandro/gochip8/pkg/debugger"
	"github.com/lassandro/gochip8/pkg/encoding"
	"github.com/lassandro/gochip8/pkg/machine"
)

var lastcmd []string

// Accepts a hex address or a label from the loaded symbol table
func resolveAddr(dbg *debugger.Debugger, s string) (uint16, error) {
	if addr, err := encoding.DecodeHex(s); err == nil {
		return addr, nil
	}

	if addr, ok := dbg.Lookup(s); ok {
		return addr, nil
	}

	if dbg.SymTable == nil {
		return 0, encoding.ErrInvalidHex
	}

	return 0, fmt.Errorf("unable to find '%s'", s)
}

func debugBreak(dbg *debugger.Debugger, args []string) {
	const usage = "break [add|list|remove|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "a", "add":
		const usage = "break add [0x###|label]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		addr, err := resolveAddr(dbg, args[0])

		if err != nil {
			log.Println(err)
			return
		}

		if dbg.AddBreakpoint(addr) {
			fmt.Printf("Breakpoint added [%#04x]\n", addr)
		}

	case "l", "ls", "list":
		if len(args) != 0 {
			log.Println("break list")
			return
		}

		for i, breakpoint := range dbg.Breakpoints {
			fmt.Printf("#%02d: %#04x\n", i, breakpoint.Addr)
		}

	case "r", "rm", "remove":
		const usage = "break remove [#]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		i, err := strconv.Atoi(args[0])

		if err != nil {
			log.Println(err)
			return
		}

		if i < 0 || i >= len(dbg.Breakpoints) {
			log.Println("Invalid breakpoint number")
			return
		}

		dbg.Breakpoints = append(dbg.Breakpoints[:i], dbg.Breakpoints[i+1:]...)
		fmt.Printf("Breakpoint removed [%d]\n", i)

	case "clear":
		dbg.Breakpoints = nil
		fmt.Println("Breakpoints reset")

	default:
		log.Println(usage)
	}
}

func parseWatchType(s string) (debugger.WatchpointType, bool) {
	switch s {
	case "r", "read":
		return debugger.ReadWatch, true
	case "w", "write":
		return debugger.WriteWatch, true
	case "rw", "rwrite", "readwrite":
		return debugger.ReadWriteWatch, true
	}

	return 0, false
}

func debugWatch(dbg *debugger.Debugger, args []string) {
	const usage = "watch [add|list|remove|clear]"

	if len(args) == 0 {
		args = append(args, "l")
	}

	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "a", "add":
		const usage = "watch add [0x###|label] [read|write|readwrite]"

		if len(args) != 2 {
			log.Println(usage)
			return
		}

		addr, err := resolveAddr(dbg, args[0])

		if err != nil {
			log.Println(err)
			return
		}

		wtype, ok := parseWatchType(args[1])

		if !ok {
			log.Println(usage)
			return
		}

		if dbg.AddWatchpoint(addr&0xFFF, wtype) {
			fmt.Printf("Watchpoint added [%#04x] (%s)\n", addr&0xFFF, wtype)
		}

	case "l", "ls", "list":
		for i, watchpoint := range dbg.Watchpoints {
			fmt.Printf("#%02d: %#04x %s\n", i, watchpoint.Addr, watchpoint.Type)
		}

	case "r", "rm", "remove":
		const usage = "watch remove [#]"

		if len(args) != 1 {
			log.Println(usage)
			return
		}

		i, err := strconv.Atoi(args[0])

		if err != nil {
			log.Println(err)
			return
		}

		if i < 0 || i >= len(dbg.Watchpoints) {
			log.Println("Invalid watchpoint number")
			return
		}

		dbg.Watchpoints = append(dbg.Watchpoints[:i], dbg.Watchpoints[i+1:]...)
		fmt.Printf("Watchpoint removed [%d]\n", i)

	case "clear":
		dbg.Watchpoints = nil
		fmt.Println("Watchpoints reset")

	default:
		log.Println(usage)
	}
}

// Assigns a named register, returning false for unknown names
func setRegister(mc *machine.MachineState, name string, value uint16) bool {
	name = strings.ToUpper(name)

	switch name {
	case "PC":
		mc.Program = value & 0xFFF
	case "I":
		mc.Index = value
	case "DT":
		mc.Delay = uint8(value)
	case "ST":
		mc.Sound = uint8(value)
	default:
		if len(name) != 2 || name[0] != 'V' {
			return false
		}

		i, err := strconv.ParseUint(name[1:], 16, 8)

		if err != nil {
			return false
		}

		mc.Registers[i] = uint8(value)
	}

	return true
}

func debugReg(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "register [V#|PC|I|DT|ST] [value]"

	if len(args) == 0 {
		dbg.PrintRegisters(mc)
		return
	}

	if len(args) != 2 {
		log.Println(usage)
		return
	}

	value, err := encoding.DecodeValue(args[1])

	if err != nil {
		log.Println(err)
		return
	}

	if !setRegister(mc, args[0], value) {
		log.Println("Invalid register")
		return
	}

	dbg.PrintRegisters(mc)
}

// Parses an optional [addr] [count] pair, where a lone decimal is a count
// starting at the program counter
func parseRange(dbg *debugger.Debugger, mc *machine.MachineState, args []string, count uint16) (uint16, uint16, error) {
	addr := mc.Program

	if len(args) > 0 {
		if value, err := resolveAddr(dbg, args[0]); err == nil {
			addr = value
		} else {
			value, err := encoding.DecodeInt(args[0])

			if err != nil {
				return 0, 0, err
			}

			count = uint16(value)
		}
	}

	if len(args) > 1 {
		value, err := encoding.DecodeInt(args[1])

		if err != nil {
			return 0, 0, err
		}

		count = uint16(value)
	}

	return addr, count, nil
}

func debugDisasm(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "disasm [0x###|label|#] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	addr, count, err := parseRange(dbg, mc, args, 8)

	if err != nil {
		log.Println(err)
		return
	}

	dbg.PrintDisasm(mc, addr, count)
}

func debugSource(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "source [0x###|label|#] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	addr, count, err := parseRange(dbg, mc, args, 3)

	if err != nil {
		log.Println(err)
		return
	}

	dbg.PrintSource(addr, count)
}

func debugLabels(dbg *debugger.Debugger, args []string) {
	if len(args) > 0 {
		log.Println("labels")
		return
	}

	if dbg.SymTable == nil {
		fmt.Println("No symbol table loaded")
		return
	}

	addrs := make([]uint16, 0, len(dbg.SymTable.Labels))
	for addr := range dbg.SymTable.Labels {
		addrs = append(addrs, addr)
	}

	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	for _, addr := range addrs {
		fmt.Printf(
			"\033[1m[%#04x]\033[0m %s\n", addr, dbg.SymTable.Labels[addr],
		)
	}
}

func debugMemory(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "memory [0x###|label|#] [#]"

	if len(args) > 2 {
		log.Println(usage)
		return
	}

	addr, count, err := parseRange(dbg, mc, args, 8)

	if err != nil {
		log.Println(err)
		return
	}

	dbg.PrintMem(mc, addr, count)
}

func debugJump(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "jump [0x###|label]"

	if len(args) != 1 {
		log.Println(usage)
		return
	}

	addr, err := resolveAddr(dbg, args[0])

	if err != nil {
		log.Println(err)
		return
	}

	mc.Program = addr & 0xFFF
	fmt.Printf("\033[1mPC:\033[0m %#04x\n", mc.Program)
}

func debugSet(dbg *debugger.Debugger, mc *machine.MachineState, args []string) {
	const usage = "set [0x###] [value]"

	if len(args) != 2 {
		log.Println(usage)
		return
	}

	addr, err := encoding.DecodeHex(args[0])

	if err != nil {
		log.Println(err)
		return
	}

	value, err := encoding.DecodeValue(args[1])

	if err != nil {
		log.Println(err)
		return
	}

	addr &= 0xFFF
	mc.Memory[addr] = uint8(value)
	dbg.PrintMem(mc, addr, 1)
}

func debugREPL(dbg *debugger.Debugger, mc *machine.Machine) {
	exitRawTerm()
	defer enterRawTerm()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\033[1;30m(dbg)\033[0m ")

		if !scanner.Scan() {
			fmt.Println()
			shouldexit = true
			return
		}

		args := strings.Fields(scanner.Text())

		if len(args) == 0 {
			if len(lastcmd) == 0 {
				continue
			}
			args = lastcmd
		} else {
			lastcmd = append([]string(nil), args...)
		}

		cmd := args[0]
		args = args[1:]

		switch cmd {
		case "b", "bp", "break", "breakpoint":
			debugBreak(dbg, args)

		case "w", "wp", "watch", "watchpoint":
			debugWatch(dbg, args)

		case "r", "reg", "register", "registers":
			debugReg(dbg, &mc.State, args)

		case "d", "dis", "disasm":
			debugDisasm(dbg, &mc.State, args)

		case "s", "src", "source":
			debugSource(dbg, &mc.State, args)

		case "l", "label", "labels":
			debugLabels(dbg, args)

		case "j", "jmp", "jump":
			debugJump(dbg, &mc.State, args)

		case "m", "mem", "memory":
			debugMemory(dbg, &mc.State, args)

		case "set":
			debugSet(dbg, &mc.State, args)

		case "k", "keys":
			dbg.PrintKeypad(&mc.State)

		case "c", "continue":
			dbg.Break = false
			return

		case "n", "next":
			dbg.Break = true
			return

		case "q", "quit", "exit":
			shouldexit = true
			return

		case "clear":
			fmt.Print("\033[H\033[2J")

		case "reset":
			if err := mc.Load(dbg.Binary); err != nil {
				log.Println(err)
			} else {
				fmt.Println("Machine reset")
			}

		default:
			fmt.Printf("error: '%s' is not a valid command\n", cmd)
		}
	}
}

func handleBreak(dbg *debugger.Debugger, mc *machine.Machine) {
	exitRawTerm()

	if !dbg.Break {
		fmt.Println("Program stopped")
	}

	dbg.PrintDisasm(&mc.State, mc.State.Program, 4)
	debugREPL(dbg, mc)
}

func handleRead(addr uint16, dbg *debugger.Debugger, mc *machine.Machine) {
	exitRawTerm()
	fmt.Printf("Read from %#04x\n", addr)
	dbg.PrintMem(&mc.State, addr, 1)
	debugREPL(dbg, mc)
}

func handleWrite(addr uint16, dbg *debugger.Debugger, mc *machine.Machine) {
	exitRawTerm()
	fmt.Printf("Write to %#04x\n", addr)
	dbg.PrintMem(&mc.State, addr, 1)
	debugREPL(dbg, mc)
}

func handleUnknown(opcode uint16, dbg *debugger.Debugger, mc *machine.Machine) {
	log.Printf(
		"Unrecognized opcode %04X at %#04x",
		opcode, mc.State.Program-2,
	)
}
