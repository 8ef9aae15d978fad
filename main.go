// Command sc-trace-debugger is a post-mortem, trace-driven debugger: it
// replays previously recorded per-hart execution traces against an ELF's
// DWARF debug info, rather than executing anything itself.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/Michaelsladkov/sc-trace-debugger/config"
	"github.com/Michaelsladkov/sc-trace-debugger/debugger"
	"github.com/Michaelsladkov/sc-trace-debugger/dwarfinfo"
	"github.com/Michaelsladkov/sc-trace-debugger/hart"
	"github.com/Michaelsladkov/sc-trace-debugger/session"
	"github.com/Michaelsladkov/sc-trace-debugger/tracedir"
)

// Exit codes for the command-line entrypoint.
const (
	exitOK              = 0
	exitMissingArgs     = 1
	exitSessionCreation = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var tuiMode = flag.Bool("tui", false, "use the text user interface instead of the plain REPL")
	flag.Parse()

	if flag.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: sc-trace-debugger [-tui] <trace_dir> <elf_path>")
		return exitMissingArgs
	}
	traceDir := flag.Arg(0)
	elfPath := flag.Arg(1)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		cfg = config.DefaultConfig()
	}

	sess, err := buildSession(traceDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitSessionCreation
	}

	var normalize func(string) string
	if cfg.DebugInfo.PathPrefix != "" {
		normalize = dwarfinfo.PrefixNormalizer(cfg.DebugInfo.PathPrefix)
	}
	provider, err := dwarfinfo.New(elfPath, normalize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return exitSessionCreation
	}
	defer provider.Close()

	dispatcher := debugger.NewDispatcher(sess, provider, cfg.Display, cfg.Session.HistorySize)

	if *tuiMode {
		tui := debugger.NewTUI(dispatcher)
		if err := tui.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
			return exitSessionCreation
		}
		return exitOK
	}

	return runREPL(dispatcher)
}

// buildSession discovers every trace file in traceDir and ingests each into
// a hart, assigning hart ids by sorted-file order.
func buildSession(traceDir string) (*session.Session, error) {
	paths, err := tracedir.Discover(traceDir)
	if err != nil {
		return nil, err
	}

	harts := make([]*hart.Hart, 0, len(paths))
	for i, path := range paths {
		f, err := os.Open(path) // #nosec G304 -- path comes from tracedir.Discover
		if err != nil {
			return nil, fmt.Errorf("opening trace file %s: %w", path, err)
		}
		h, err := hart.New(f, path, uint64(i))
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("ingesting trace file %s: %w", path, err)
		}
		harts = append(harts, h)
	}

	return session.New(harts)
}

// runREPL drives the plain `>`-prompt REPL loop.
func runREPL(d *debugger.Dispatcher) int {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return exitOK
		}

		err := d.Execute(scanner.Text())
		if out := d.GetOutput(); out != "" {
			fmt.Print(out)
		}
		if err == debugger.ErrExit {
			return exitOK
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}
