// Command hvctl is an interactive front end to an in-process, simulated
// partitioning hypervisor: it seeds a Hypervisor from the host's own cpu
// count and lets an operator drive the six hypercalls by hand, the way
// minimega's own CLI attaches an interactive shell to a running instance.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/minipart/hvcore/cellcore"
	"github.com/minipart/hvcore/hvlog"
	"github.com/minipart/hvcore/internal/simarch"
)

func main() {
	nCPU := discoverCPUCount()
	hvlog.Info("%s", describeHost(nCPU))

	machine := simarch.NewMachine()
	hv, err := cellcore.NewHypervisor(cellcore.SystemConfig{
		Root: cellcore.SystemRootConfig{
			CPUSetBytes: rootCPUSetBytes(nCPU),
			MemoryRegions: []cellcore.MemoryRegion{
				{PhysStart: 0, VirtStart: 0, Size: 0x1000_0000, Flags: cellcore.MemRead | cellcore.MemWrite},
			},
		},
		MemPoolSize:   1 << 20,
		RemapPoolSize: 1 << 16,
	}, machine)
	if err != nil {
		hvlog.Fatal("could not start hypervisor: %v", err)
	}

	fmt.Println("hvctl: simulated partitioning hypervisor shell")
	fmt.Println("commands: create <name> <cpu,cpu,...> <phys> <virt> <size> <flags> | destroy <id> | state <id> | cpustate <cpu> | info <selector> | shutdown | quit")

	input := liner.NewLiner()
	defer input.Close()
	input.SetCtrlCAborts(true)

	const prompt = "hvctl$ "
	initiator := 0

	for {
		line, err := input.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		} else if err == io.EOF {
			break
		} else if err != nil {
			hvlog.Error("prompt: %v", err)
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		input.AppendHistory(line)

		if line == "quit" {
			break
		}

		if err := dispatch(context.Background(), hv, initiator, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, hv *cellcore.Hypervisor, initiator int, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "create":
		return cmdCreate(ctx, hv, initiator, fields[1:])
	case "destroy":
		return cmdDestroy(ctx, hv, initiator, fields[1:])
	case "state":
		return cmdState(hv, initiator, fields[1:])
	case "cpustate":
		return cmdCPUState(hv, initiator, fields[1:])
	case "info":
		return cmdInfo(hv, fields[1:])
	case "shutdown":
		return hv.Shutdown(ctx, initiator)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
}

func cmdCreate(ctx context.Context, hv *cellcore.Hypervisor, initiator int, args []string) error {
	if len(args) != 6 {
		return fmt.Errorf("usage: create <name> <cpu,cpu,...> <phys> <virt> <size> <flags>")
	}
	name, cpuList, physStr, virtStr, sizeStr, flagsStr := args[0], args[1], args[2], args[3], args[4], args[5]

	var maxCPU int
	cpuIDs := []int{}
	for _, f := range strings.Split(cpuList, ",") {
		id, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("bad cpu id %q: %v", f, err)
		}
		cpuIDs = append(cpuIDs, id)
		if id > maxCPU {
			maxCPU = id
		}
	}
	bitmap := make([]byte, maxCPU/8+1)
	for _, id := range cpuIDs {
		bitmap[id/8] |= 1 << uint(id%8)
	}

	phys, err := strconv.ParseUint(physStr, 0, 64)
	if err != nil {
		return fmt.Errorf("bad phys_start: %v", err)
	}
	virt, err := strconv.ParseUint(virtStr, 0, 64)
	if err != nil {
		return fmt.Errorf("bad virt_start: %v", err)
	}
	size, err := strconv.ParseUint(sizeStr, 0, 64)
	if err != nil {
		return fmt.Errorf("bad size: %v", err)
	}
	flags, err := strconv.ParseUint(flagsStr, 0, 32)
	if err != nil {
		return fmt.Errorf("bad flags: %v", err)
	}

	id, err := hv.CreateCell(ctx, initiator, cellcore.CellConfig{
		Name:        name,
		CPUSetBytes: bitmap,
		MemoryRegions: []cellcore.MemoryRegion{
			{PhysStart: phys, VirtStart: virt, Size: size, Flags: cellcore.MemFlags(flags)},
		},
	})
	if err != nil {
		return err
	}
	fmt.Printf("created cell id %d\n", id)
	return nil
}

func cmdDestroy(ctx context.Context, hv *cellcore.Hypervisor, initiator int, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: destroy <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	return hv.DestroyCell(ctx, initiator, id)
}

func cmdState(hv *cellcore.Hypervisor, initiator int, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: state <id>")
	}
	id, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	state, err := hv.GetCellState(initiator, id)
	if err != nil {
		return err
	}
	fmt.Println(state)
	return nil
}

func cmdCPUState(hv *cellcore.Hypervisor, initiator int, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: cpustate <cpu>")
	}
	cpu, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	state, err := hv.CPUGetState(initiator, cpu)
	if err != nil {
		return err
	}
	fmt.Println(state)
	return nil
}

func cmdInfo(hv *cellcore.Hypervisor, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: info <selector 0-4>")
	}
	sel, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hv.Info(sel))
	return nil
}
