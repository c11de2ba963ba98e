// Command par2 is the CLI driver (A1): create, verify, and repair
// PAR2 recovery sets. Flag handling follows the teacher's own
// minio/cli-based command layout (one cli.Command per verb, global
// flags inherited by every subcommand).
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fatih/color"
	"github.com/minio/cli"
	"github.com/pkg/profile"

	"github.com/zebware/par2/internal/config"
	"github.com/zebware/par2/internal/creator"
	"github.com/zebware/par2/internal/logger"
	"github.com/zebware/par2/internal/par2store"
	"github.com/zebware/par2/internal/repair"
	"github.com/zebware/par2/internal/scanner"
	"github.com/zebware/par2/internal/verify"
)

// Exit codes (spec §6 "Exit codes").
const (
	exitSuccess             = 0
	exitRepairPossible      = 1
	exitRepairNotPossible   = 2
	exitInvalidCommandLine  = 3
	exitInsufficientMeta    = 4
	exitRepairStillFails    = 5
	exitIOError             = 6
	exitInternalLogicError  = 7
)

// activeProfile holds the running CPU profile session started by
// --cpuprofile, stopped once the command's action returns.
var activeProfile interface{ Stop() }

func main() {
	app := cli.NewApp()
	app.Name = "par2"
	app.Usage = "create and repair PAR2 recovery sets"
	app.HideVersion = true
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "v", Usage: "increase verbosity (repeatable)"},
		cli.BoolFlag{Name: "q", Usage: "decrease verbosity (repeatable)"},
		cli.StringFlag{Name: "d", Usage: "base directory for source and target files"},
		cli.StringFlag{Name: "config", Usage: "path to a par2.toml configuration file"},
		cli.BoolFlag{Name: "no-color", Usage: "disable colorized output"},
		cli.BoolFlag{Name: "cpuprofile", Usage: "write a CPU profile of this run to ./cpu.pprof"},
	}
	app.Commands = []cli.Command{createCommand, verifyCommand, repairCommand}
	app.CommandNotFound = func(c *cli.Context, name string) {
		fmt.Fprintf(os.Stderr, "par2: unknown command %q\n", name)
		os.Exit(exitInvalidCommandLine)
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("no-color") {
			color.NoColor = true
		}
		if c.GlobalBool("cpuprofile") {
			activeProfile = profile.Start(profile.CPUProfile, profile.ProfilePath("."))
		}
		return nil
	}
	app.After = func(c *cli.Context) error {
		if activeProfile != nil {
			activeProfile.Stop()
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitInvalidCommandLine)
	}
}

func loggerFromContext(c *cli.Context) *logger.Logger {
	level := logger.Normal
	if n := countFlag(c, "v"); n > 0 {
		level = logger.Verbose
		if n > 1 {
			level = logger.Debug
		}
	}
	if n := countFlag(c, "q"); n > 0 {
		level = logger.Quiet
		if n > 1 {
			level = logger.Silent
		}
	}
	return logger.New(level)
}

// countFlag approximates repeatable -v/-q counting: minio/cli's BoolFlag
// is a single occurrence, so "more verbose" is expressed by passing the
// flag at both the global and command level; this adds them together.
func countFlag(c *cli.Context, name string) int {
	n := 0
	if c.GlobalBool(name) {
		n++
	}
	if c.Bool(name) {
		n++
	}
	return n
}

var createCommand = cli.Command{
	Name:      "create",
	ShortName: "c",
	Usage:     "create a PAR2 recovery set from source files",
	ArgsUsage: "<basename> <file...>",
	Flags: []cli.Flag{
		cli.IntFlag{Name: "b", Usage: "block count"},
		cli.StringFlag{Name: "s", Usage: "block size in bytes, multiple of 4"},
		cli.IntFlag{Name: "r", Usage: "redundancy percentage, 0-100; not read by create, whose recovery block count comes from -c, the config file, or a 10% default"},
		cli.IntFlag{Name: "c", Usage: "recovery block count"},
		cli.BoolFlag{Name: "u", Usage: "uniform volume scheme"},
		cli.BoolFlag{Name: "l", Usage: "limited volume scheme"},
		cli.StringFlag{Name: "volume-limit", Usage: "byte ceiling per volume (limited scheme)"},
	},
	Action: runCreate,
}

var verifyCommand = cli.Command{
	Name:      "verify",
	ShortName: "v",
	Usage:     "verify a recovery set against the files on disk",
	ArgsUsage: "<par2file> [extra...]",
	Action:    runVerify,
}

var repairCommand = cli.Command{
	Name:      "repair",
	ShortName: "r",
	Usage:     "repair damaged or missing files using recovery data",
	ArgsUsage: "<par2file> [extra...]",
	Action:    runRepair,
}

func runCreate(c *cli.Context) error {
	args := c.Args()
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "par2: create requires <basename> <file...>")
		os.Exit(exitInvalidCommandLine)
	}
	log := loggerFromContext(c)
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(exitInvalidCommandLine)
	}

	scheme := creator.Variable
	switch {
	case c.Bool("u"):
		scheme = creator.Uniform
	case c.Bool("l"):
		scheme = creator.Limited
	case cfg.VolumeScheme == "uniform":
		scheme = creator.Uniform
	case cfg.VolumeScheme == "limited":
		scheme = creator.Limited
	}

	sliceSize := parseUint64(c.String("s"))
	if n := c.Int("b"); sliceSize == 0 && n > 0 {
		var totalSize uint64
		for _, p := range args[1:] {
			if fi, err := os.Stat(p); err == nil {
				totalSize += uint64(fi.Size())
			}
		}
		sliceSize = creator.PlanBlockSize(totalSize, n)
	}
	if sliceSize == 0 {
		sliceSize = cfg.BlockSize
	}
	recoveryBlocks := c.Int("c")
	if recoveryBlocks == 0 {
		recoveryBlocks = cfg.RecoveryBlocks
	}

	creatorCfg := creator.Config{
		SourceFiles:     args[1:],
		OutputBase:      args[0],
		SliceSize:       sliceSize,
		RecoveryBlocks:  recoveryBlocks,
		Scheme:          scheme,
		VolumeLimitSize: parseUint64(c.String("volume-limit")),
		ClientID:        "par2 creator",
	}
	if _, err := creator.Create(creatorCfg, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitIOError)
	}
	log.Successf("recovery set created")
	return nil
}

func runVerify(c *cli.Context) error {
	args := c.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "par2: verify requires <par2file>")
		os.Exit(exitInvalidCommandLine)
	}
	log := loggerFromContext(c)
	summary, baseDir, _, err := loadAndVerify(c, args[0])
	if err != nil {
		reportLoadError(log, err)
	}
	reportSummary(log, summary)
	_ = baseDir

	switch summary.Decision {
	case verify.RepairNotRequired:
		os.Exit(exitSuccess)
	case verify.RepairPossible:
		os.Exit(exitRepairPossible)
	default:
		os.Exit(exitRepairNotPossible)
	}
	return nil
}

func runRepair(c *cli.Context) error {
	args := c.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "par2: repair requires <par2file>")
		os.Exit(exitInvalidCommandLine)
	}
	log := loggerFromContext(c)
	summary, baseDir, store, err := loadAndVerify(c, args[0])
	if err != nil {
		reportLoadError(log, err)
	}

	if summary.Decision == verify.RepairNotRequired {
		log.Successf("no repair needed")
		os.Exit(exitSuccess)
	}
	if summary.Decision == verify.RepairImpossible {
		log.Errorf("repair impossible: %d blocks missing, %d recovery blocks available", summary.MissingBlocks, summary.RecoveryBlocks)
		os.Exit(exitRepairNotPossible)
	}

	idx := scanner.BuildIndex(store.Files(), store.SliceSize())
	sc := scanner.New(idx)
	canonical := make(map[string]bool, len(summary.Reports))
	for _, r := range summary.Reports {
		canonical[r.CanonicalPath] = true
		if st, err := os.Stat(r.CanonicalPath); err == nil && !st.IsDir() {
			sc.ScanPath(r.CanonicalPath, r.File.FileID, true)
		}
	}
	// Extra files are scanned as verification scanned them, so blocks it
	// counted as available there are inputs to the repair as well.
	if entries, err := os.ReadDir(baseDir); err == nil {
		for _, e := range entries {
			p := filepath.Join(baseDir, e.Name())
			if !e.IsDir() && !canonical[p] && filepath.Ext(p) != ".par2" {
				sc.ScanPath(p, [16]byte{}, false)
			}
		}
	}

	driver := repair.New(store, sc, log)
	if err := driver.Repair(summary, baseDir); err != nil {
		log.Errorf("%v", err)
		os.Exit(exitRepairStillFails)
	}
	log.Successf("repair complete")
	os.Exit(exitSuccess)
	return nil
}

// loadAndVerify discovers and loads every volume belonging to par2Path's
// set and runs the verification engine against baseDir (the -d flag, or
// par2Path's own directory by default).
func loadAndVerify(c *cli.Context, par2Path string) (*verify.Summary, string, *par2store.Store, error) {
	log := loggerFromContext(c)
	baseDir := c.GlobalString("d")
	if baseDir == "" {
		baseDir = filepath.Dir(par2Path)
	}

	volumes, err := par2store.DiscoverVolumes(par2Path)
	if err != nil {
		return nil, baseDir, nil, fmt.Errorf("discovering volumes: %w", err)
	}
	store := par2store.New(func(reason string) { log.Verbosef("store: %s", reason) })
	par2store.LoadVolumes(volumes, store, func(path string, offset int64, reason string) {
		log.FormatWarn(path, offset, reason)
	})
	if n := log.FormatErrors(); n > 0 {
		log.Infof("%d packet candidate(s) failed validation and were skipped", n)
	}
	if !store.HasMain() {
		return nil, baseDir, nil, errInsufficientMetadata
	}

	summary, err := verify.New(store, baseDir).Run()
	if err != nil {
		return nil, baseDir, store, fmt.Errorf("verifying: %w", err)
	}
	return summary, baseDir, store, nil
}

var errInsufficientMetadata = fmt.Errorf("no Main packet found across any discovered volume")

// parseUint64 reads a numeric flag that may legitimately exceed the
// range of a plain int (block sizes, volume byte ceilings); an empty
// or malformed value is treated as "unset" rather than a parse error,
// consistent with this tool's overall "flags fall through to config
// file, then built-in defaults" precedence.
func parseUint64(s string) uint64 {
	if s == "" {
		return 0
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func reportLoadError(log *logger.Logger, err error) {
	log.Errorf("%v", err)
	if err == errInsufficientMetadata {
		os.Exit(exitInsufficientMeta)
	}
	os.Exit(exitIOError)
}

func reportSummary(log *logger.Logger, s *verify.Summary) {
	for _, r := range s.Reports {
		log.Infof("%-40s %s (%d/%d blocks)", r.File.Name, r.State, r.FoundBlocks, r.TotalBlocks)
	}
	log.Infof("complete=%d renamed=%d damaged=%d missing=%d available_blocks=%d missing_blocks=%d recovery_blocks=%d",
		s.CompleteCount, s.RenamedCompleteCount, s.DamagedCount, s.MissingCount, s.AvailableBlocks, s.MissingBlocks, s.RecoveryBlocks)
	log.Infof("decision: %s", s.Decision)
}
