package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/dustin/go-humanize"

	"github.com/cutright/rtscan/cmd/rtscan/tui"
	"github.com/cutright/rtscan/internal/config"
	"github.com/cutright/rtscan/internal/dicom"
	"github.com/cutright/rtscan/internal/scan"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	path := flag.String("path", ".", "Directory to scan")
	noRecurse := flag.Bool("no-recurse", false, "Do not descend into subdirectories")
	workers := flag.Int("workers", 0, fmt.Sprintf("Number of parallel workers (default: %d = CPU cores)", runtime.NumCPU()))
	knownBad := flag.String("known-bad", "", "Comma-separated base-name patterns of vendor files to skip on decode failure")
	configFile := flag.String("config", "", "Load configuration from YAML file")
	saveConfig := flag.String("save-config", "", "Save effective configuration to YAML file")
	interactive := flag.Bool("interactive", false, "Prompt for scan settings")
	flag.BoolVar(interactive, "i", false, "Prompt for scan settings (shortcut)")
	plain := flag.Bool("plain", false, "Line-based progress output instead of the TUI")
	help := flag.Bool("help", false, "Show help message")
	showVersion := flag.Bool("version", false, "Show version")

	flag.Parse()

	if *help {
		printHelp()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("rtscan %s\n", version)
		os.Exit(0)
	}

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags beat the config file, but only when actually set.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "workers":
			cfg.Workers = *workers
		case "no-recurse":
			cfg.Recurse = !*noRecurse
		case "known-bad":
			cfg.KnownBadPatterns = splitPatterns(*knownBad)
		}
	})

	root := *path
	if *interactive {
		if err := promptSettings(&root, &cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if cfg.Workers < 0 {
		fmt.Fprintf(os.Stderr, "Error: --workers must not be negative\n")
		os.Exit(1)
	}

	if *saveConfig != "" {
		if err := config.Save(cfg, *saveConfig); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
			os.Exit(1)
		}
	}

	opts := scan.Options{
		Recurse:          cfg.Recurse,
		Workers:          cfg.Workers,
		KnownBadPatterns: cfg.KnownBadPatterns,
	}

	var (
		tree *scan.ResultTree
		err  error
	)
	if *plain {
		tree, err = runPlain(root, opts)
	} else {
		tree, err = runTUI(root, opts)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if tree != nil {
		printReport(tree)
	}
}

func runTUI(root string, opts scan.Options) (*scan.ResultTree, error) {
	model := tui.NewModel(root)
	program := tea.NewProgram(model)
	opts.Observer = tui.NewObserver(program)

	run := scan.NewScanner().Start(root, opts)

	final, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("progress display: %w", err)
	}
	if m, ok := final.(*tui.Model); ok && m.Err() != nil {
		return nil, m.Err()
	}

	if err := run.Wait(); err != nil {
		return nil, err
	}
	return run.Tree(), nil
}

func runPlain(root string, opts scan.Options) (*scan.ResultTree, error) {
	opts.Observer = &plainObserver{}
	run := scan.NewScanner().Start(root, opts)
	if err := run.Wait(); err != nil {
		return nil, err
	}
	return run.Tree(), nil
}

// plainObserver prints stage transitions and coarse progress to stdout.
type plainObserver struct {
	stage  scan.Stage
	decile int
}

func (o *plainObserver) Progress(ev scan.Event) {
	if ev.Stage != o.stage {
		o.stage = ev.Stage
		o.decile = -1
		fmt.Printf("==> %s\n", ev.Stage)
	}
	d := int(ev.Fraction * 10)
	if d != o.decile {
		o.decile = d
		fmt.Printf("  %3.0f%%  %s\n", ev.Fraction*100, ev.Label)
	}
}

func (o *plainObserver) TreeReady(t *scan.ResultTree) {
	fmt.Printf("==> tree published: %d plans\n", t.PlanCount())
}

func (o *plainObserver) PlanDetails(d *dicom.PlanDetails) {
	fmt.Printf("  parsed %s (%s)\n", d.PlanLabel, d.PlanUID)
}

func (o *plainObserver) ParsingComplete(n int) {
	fmt.Printf("Parsing complete: %d file-sets\n", n)
}

func (o *plainObserver) RunFailed(err error) {
	fmt.Fprintf(os.Stderr, "Run failed: %v\n", err)
}

func promptSettings(root *string, cfg *config.Config) error {
	recurse := cfg.Recurse
	workersStr := strconv.Itoa(cfg.Workers)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Scan directory").
				Value(root).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("directory is required")
					}
					return nil
				}),
			huh.NewConfirm().
				Title("Recurse into subdirectories?").
				Value(&recurse),
			huh.NewInput().
				Title("Workers (0 = one per CPU)").
				Value(&workersStr).
				Validate(func(s string) error {
					n, err := strconv.Atoi(strings.TrimSpace(s))
					if err != nil || n < 0 {
						return fmt.Errorf("enter a non-negative number")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Recurse = recurse
	cfg.Workers, _ = strconv.Atoi(strings.TrimSpace(workersStr))
	return nil
}

func printReport(tree *scan.ResultTree) {
	fmt.Println()
	fmt.Printf("Patients: %d  Plans: %d (%d incomplete)\n",
		len(tree.Patients), tree.PlanCount(), len(tree.IncompletePlans))
	fmt.Printf("Indexed %s files (%s) out of %s discovered\n",
		humanize.Comma(int64(tree.RecordsIndexed)),
		humanize.Bytes(uint64(tree.BytesIndexed)),
		humanize.Comma(int64(tree.FilesDiscovered)))

	for _, patient := range tree.Patients {
		fmt.Printf("\n%s (%s)\n", patient.Name, patient.MRN)
		for _, study := range patient.Studies {
			fmt.Printf("  study %s\n", study.StudyUID)
			for _, plan := range study.Plans {
				marker := "complete"
				if !plan.Complete {
					marker = "INCOMPLETE"
				}
				fmt.Printf("    plan %s [%s] structs=%d doses=%d\n",
					plan.PlanUID, marker, len(plan.Structs), len(plan.Doses))
			}
		}
	}

	if len(tree.OtherByStudy) > 0 {
		other := 0
		for _, paths := range tree.OtherByStudy {
			other += len(paths)
		}
		fmt.Printf("\nOther DICOM files: %d across %d studies\n", other, len(tree.OtherByStudy))
	}
	if len(tree.Orphans) > 0 {
		fmt.Printf("\nOrphans (%d):\n", len(tree.Orphans))
		for _, o := range tree.Orphans {
			fmt.Printf("  %s (%s, references %s)\n", o.Path, o.Modality, orDash(o.RefUID))
		}
	}
	if len(tree.Skips) > 0 {
		fmt.Printf("\nSkipped (%d):\n", len(tree.Skips))
		for _, s := range tree.Skips {
			fmt.Printf("  %s (%s)\n", s.Path, s.Reason)
		}
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printHelp() {
	fmt.Println(`rtscan - index a directory of radiotherapy DICOM files into plan file-sets

Usage:
  rtscan --path <dir> [options]

Options:
  --path <dir>          Directory to scan (default: current directory)
  --no-recurse          Do not descend into subdirectories
  --workers <n>         Parallel workers for header and detail parsing (0 = CPU cores)
  --known-bad <list>    Comma-separated vendor file patterns to skip on decode failure
  --config <file>       Load settings from a YAML file
  --save-config <file>  Write the effective settings to a YAML file
  --interactive, -i     Prompt for scan settings
  --plain               Line-based progress instead of the TUI
  --version             Show version
  --help                Show this message

Examples:
  rtscan --path /data/dicom
  rtscan --path /data/dicom --no-recurse --workers 8 --plain
  rtscan -i`)
}
