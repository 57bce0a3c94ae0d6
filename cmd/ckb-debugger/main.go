// Command ckb-debugger runs, steps, or remotely debugs an RV64 on-chain
// script against a mock transaction.
package main

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/nervosnetwork/ckb-standalone-debugger/config"
	"github.com/nervosnetwork/ckb-standalone-debugger/decode"
	"github.com/nervosnetwork/ckb-standalone-debugger/dsyscall"
	"github.com/nervosnetwork/ckb-standalone-debugger/errs"
	"github.com/nervosnetwork/ckb-standalone-debugger/gdbserver"
	"github.com/nervosnetwork/ckb-standalone-debugger/mocktx"
	"github.com/nervosnetwork/ckb-standalone-debugger/overlap"
	"github.com/nervosnetwork/ckb-standalone-debugger/profiler"
	"github.com/nervosnetwork/ckb-standalone-debugger/resource"
	"github.com/nervosnetwork/ckb-standalone-debugger/scheduler"
	"github.com/nervosnetwork/ckb-standalone-debugger/script"
	"github.com/nervosnetwork/ckb-standalone-debugger/steplog"
	"github.com/nervosnetwork/ckb-standalone-debugger/vm"
)

// Version information, overridable at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ckb-debugger", flag.ContinueOnError)
	var (
		mode              = fs.String("mode", "full", "full, fast, gdb, probe, or decode-instruction")
		txFile            = fs.String("tx-file", "", "mock transaction JSON file")
		bin               = fs.String("bin", "", "path to the RISC-V ELF binary, overriding the cell data resolved from tx-file")
		groupType         = fs.String("script-group-type", "lock", "lock or type")
		scriptHashHex     = fs.String("script-hash", "", "hex hash identifying the script group to run")
		cellType          = fs.String("cell-type", "input", "input or output, used with --cell-index to pick the script by position")
		cellIndex         = fs.Int("cell-index", -1, "cell index, used with --cell-type instead of --script-hash")
		scriptVersion     = fs.Uint("script-version", 2, "script version: 0, 1, or 2")
		maxCycles         = fs.Uint64("max-cycles", config.DefaultConfig().Execution.MaxCycles, "maximum cycles before the run is aborted")
		gdbListen         = fs.String("gdb-listen", "127.0.0.1:9999", "listen address for --mode=gdb")
		pprofOut          = fs.String("pprof", "", "write a flame-graph profile to this file")
		dumpFile          = fs.String("dump-file", "", "ELF snapshot output path for the elf_dump syscall")
		readFile          = fs.String("read-file", "", "file backing the read_stream syscall")
		enableSteplog     = fs.Bool("enable-steplog", false, "print every register file after each step")
		enableOverlapping = fs.Bool("enable-overlapping-detection", false, "fail the run if the stack overlaps the heap")
		showVersion       = fs.Bool("version", false, "show version information")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *showVersion {
		fmt.Printf("ckb-debugger %s (%s)\n", Version, Commit)
		return 0
	}

	if *mode == "decode-instruction" {
		return runDecode(fs.Args())
	}

	isa := isaForVersion(uint32(*scriptVersion))
	machine := vm.NewMachine(isa, uint32(*scriptVersion), *maxCycles)

	binaryData, res, err := resolveBinary(*bin, *txFile, *groupType, *cellType, *cellIndex, *scriptHashHex)
	if err != nil {
		printFailure(err)
		return 254
	}

	if _, err := machine.LoadProgram(binaryData, fs.Args()); err != nil {
		printFailure(err)
		return 254
	}

	sched := scheduler.New(machine, *maxCycles)
	resolveCode := noCodeResolver
	if res != nil {
		resolveCode = buildCodeResolver(res)
	}
	machine.Syscalls = append(machine.Syscalls,
		&scheduler.SpawnSyscall{Sched: sched, SelfID: scheduler.RootVMID, Resolve: resolveCode})

	var stream []byte
	if *readFile != "" {
		stream, err = os.ReadFile(*readFile)
		if err != nil {
			printFailure(err)
			return 254
		}
	}
	dumpPath := *dumpFile
	if dumpPath == "" {
		dumpPath = "dump.elf"
	}
	machine.Syscalls = append(machine.Syscalls,
		dsyscall.NewHandler(stream, dumpPath),
		&dsyscall.StdioHandler{SuppressStandardClose: true},
	)

	switch *mode {
	case "gdb":
		return runGDB(machine, *gdbListen)
	case "probe":
		return runProbe(sched, machine, binaryData, *enableSteplog, *enableOverlapping)
	case "fast", "full":
		return runToCompletion(sched, machine, binaryData, *mode, *enableSteplog, *enableOverlapping, *pprofOut)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
		return 2
	}
}

func isaForVersion(version uint32) uint32 {
	isa := uint32(vm.ISAImc | vm.ISAA | vm.ISAB)
	if version >= vm.Version1 {
		isa |= vm.ISAMop
	}
	return isa
}

// resolveBinary picks the ELF bytes to load: --bin wins outright (with no
// resolved Resource, since there's no mock transaction to spawn cell deps
// from), otherwise the mock transaction's resolved script group cell data
// is used and its Resource returned alongside for spawn-syscall wiring.
func resolveBinary(bin, txFile, groupType, cellType string, cellIndex int, scriptHashHex string) ([]byte, *resource.Resource, error) {
	if bin != "" {
		data, err := os.ReadFile(bin)
		return data, nil, err
	}
	if txFile == "" {
		return nil, nil, errs.Usage("one of --bin or --tx-file is required")
	}

	raw, err := os.ReadFile(txFile)
	if err != nil {
		return nil, nil, err
	}
	expanded, err := mocktx.Expand(string(raw))
	if err != nil {
		return nil, nil, err
	}
	var doc mocktx.Document
	if err := json.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, nil, errs.Usage("invalid mock transaction JSON: %v", err)
	}

	res, tx, err := buildResource(doc)
	if err != nil {
		return nil, nil, err
	}

	gt := script.GroupLock
	if groupType == "type" {
		gt = script.GroupTypeScript
	}

	var hash [32]byte
	if scriptHashHex != "" {
		raw, err := hex.DecodeString(strings.TrimPrefix(scriptHashHex, "0x"))
		if err != nil || len(raw) != 32 {
			return nil, nil, errs.Usage("invalid --script-hash %q", scriptHashHex)
		}
		copy(hash[:], raw)
	} else {
		role := script.RoleInput
		if cellType == "output" {
			role = script.RoleOutput
		}
		hash, err = script.SelectHashByPosition(tx, role, gt, cellIndex, hashScript)
		if err != nil {
			return nil, nil, err
		}
	}

	group, err := script.FindScriptGroup(tx, gt, hash, hashScript)
	if err != nil {
		return nil, nil, err
	}
	if len(group.Indices) == 0 {
		return nil, nil, errs.Usage("script group %x has no matching cells", hash)
	}

	var target resource.Script
	idx := group.Indices[0]
	if idx < 0 {
		target = tx.Outputs[-idx-1].Lock
	} else if gt == script.GroupTypeScript && tx.Inputs[idx].Output.Type != nil {
		target = *tx.Inputs[idx].Output.Type
	} else {
		target = tx.Inputs[idx].Output.Lock
	}

	order := res.InputOrder()
	data, err := script.ExtractScript(res, target, func(codeHash [32]byte, hashType byte) (resource.OutPoint, bool) {
		return resolveCodeCell(res, order, codeHash, hashType)
	})
	if err != nil {
		return nil, nil, err
	}
	return data, res, nil
}

func buildResource(doc mocktx.Document) (*resource.Resource, script.Transaction, error) {
	loader := &jsonLoader{doc: doc}
	mtx, err := toResourceMockTx(doc)
	if err != nil {
		return nil, script.Transaction{}, err
	}
	res, err := resource.Build(mtx, loader)
	if err != nil {
		return nil, script.Transaction{}, err
	}

	var inputs []resource.CellMeta
	for _, op := range res.InputOrder() {
		meta, _ := res.GetCellMeta(op)
		inputs = append(inputs, *meta)
	}
	var outputs []resource.CellOutput
	for _, o := range doc.Tx.Outputs {
		out, err := toResourceCellOutput(o)
		if err != nil {
			return nil, script.Transaction{}, err
		}
		outputs = append(outputs, out)
	}
	return res, script.Transaction{Inputs: inputs, Outputs: outputs}, nil
}

// runToCompletion drives machine's root VM through sched (so a spawn
// syscall composes VMs together instead of running in isolation),
// wrapping its per-step execution in whichever of the overlap detector,
// profiler, and step logger were requested: each layer wraps the next
// (overlap around profiler around steplog around the bare machine) rather
// than the three being mutually exclusive.
func runToCompletion(sched *scheduler.Scheduler, machine *vm.Machine, binaryData []byte, mode string, enableSteplog, enableOverlap bool, pprofOut string) int {
	var cur vm.Stepper = machine

	var logger *steplog.Logger
	if enableSteplog {
		logger = steplog.New(machine, os.Stdout)
		logger.Wrap(cur)
		cur = logger
	}

	var prof *profiler.Profiler
	if mode == "full" && pprofOut != "" {
		prof = profiler.New(machine, symbolizerFor(binaryData), machine.EntryPoint)
		prof.Wrap(cur)
		cur = prof
	}

	var det *overlap.Detector
	if enableOverlap {
		endAddr, sbrkAddr := resolveHeapSymbols(binaryData)
		det = overlap.New(machine, endAddr, sbrkAddr)
		det.Wrap(cur)
		if prof != nil {
			det.WatchSbrk(prof)
		}
		cur = det
	}

	outcome, err := sched.DriveRoot(scheduler.RootVMID, cur)

	if prof != nil {
		f, createErr := os.Create(pprofOut)
		if createErr == nil {
			prof.DisplayFlamegraph(f)
			f.Close()
		}
	}

	return report(machine, outcome, err)
}

func runProbe(sched *scheduler.Scheduler, machine *vm.Machine, binaryData []byte, enableSteplog, enableOverlap bool) int {
	return runToCompletion(sched, machine, binaryData, "probe", enableSteplog, enableOverlap, "")
}

// resolveHeapSymbols reads _end (the initial heap top) and _sbrk (the
// allocator entry point the overlap detector watches returns from) out of
// the loaded binary's own ELF symbol table.
func resolveHeapSymbols(elfBytes []byte) (endAddr, sbrkAddr uint64) {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		return 0, 0
	}
	defer f.Close()
	syms, err := f.Symbols()
	if err != nil {
		return 0, 0
	}
	for _, s := range syms {
		switch s.Name {
		case "_end":
			endAddr = s.Value
		case "_sbrk":
			sbrkAddr = s.Value
		}
	}
	return endAddr, sbrkAddr
}

// symbolizerFor builds a DWARF-backed symbolizer from the loaded binary's
// debug info, falling back to one that always reports "??" when the
// binary carries no DWARF sections (stripped, or compiled without -g).
func symbolizerFor(elfBytes []byte) profiler.Symbolizer {
	f, err := elf.NewFile(bytes.NewReader(elfBytes))
	if err != nil {
		return noopSymbolizer{}
	}
	defer f.Close()
	sym, err := profiler.NewDwarfSymbolizer(f)
	if err != nil {
		return noopSymbolizer{}
	}
	return sym
}

func runGDB(machine *vm.Machine, listen string) int {
	server, err := gdbserver.Listen(listen, machine)
	if err != nil {
		printFailure(err)
		return 254
	}
	fmt.Printf("listening on %s\n", server.Addr())
	if err := server.Serve(); err != nil {
		printFailure(err)
		return 254
	}
	return 0
}

func runDecode(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ckb-debugger -mode=decode-instruction <word>")
		return 2
	}
	word, err := decode.ParseWord(args[0])
	if err != nil {
		printFailure(err)
		return 254
	}
	result, err := decode.Word(word)
	if err != nil {
		printFailure(err)
		return 254
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Field", "Value"})
	table.Append([]string{"ISA", result.ISA})
	table.Append([]string{"Mnemonic", result.Mnemonic})
	table.Append([]string{"Assembly", result.Assembly})
	table.Append([]string{"Length", strconv.Itoa(result.Length)})
	table.Append([]string{"Raw", fmt.Sprintf("0x%08x", result.Raw)})
	table.Render()
	return 0
}

func report(machine *vm.Machine, outcome vm.StepOutcome, err error) int {
	if err != nil {
		printFailure(err)
		return 254
	}
	if outcome != vm.Exited {
		printFailure(errs.External("run ended without exiting: %v", outcome))
		return 254
	}
	if machine.ExitCode == 0 {
		color.Green("run result: success")
	} else {
		color.Red("run result: failure (exit code %d)", machine.ExitCode)
	}
	fmt.Printf("consumed cycles: %d\n", machine.Regs.Cycles)
	return int(machine.ExitCode)
}

func printFailure(err error) {
	color.Red("error: %v", err)
}

// noopSymbolizer is used when profiling is requested without DWARF debug
// info available; every address resolves to "??".
type noopSymbolizer struct{}

func (noopSymbolizer) Lookup(addr uint64) (string, string, int) { return "??", "??", 0 }
func (noopSymbolizer) IsFunctionEntry(addr uint64) bool         { return false }
