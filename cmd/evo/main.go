// evo runs the digital-organism world headless.
//
// Usage: evo [-config evo.toml] [-ticks N] [-seed S] [-backup-dir dir] [-sqlite file] [-csv out.csv]
//
// Every status period a line with the population averages is logged. With
// -csv the same numbers are appended to a timeline file. Snapshots are
// written every backup period when a backup directory or database is set.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/psilLang/evo/pkg/backup"
	"github.com/psilLang/evo/pkg/config"
	"github.com/psilLang/evo/pkg/sandbox"
)

var log = commonlog.GetLogger("evo")

func main() {
	configPath := flag.String("config", "", "TOML configuration file")
	ticks := flag.Int("ticks", 0, "ticks to simulate, 0 runs until interrupted")
	seed := flag.Int64("seed", 0, "random seed, 0 uses the clock")
	width := flag.Int("width", 0, "override world width")
	height := flag.Int("height", 0, "override world height")
	orgs := flag.Int("orgs", 0, "override the starting population")
	backupDir := flag.String("backup-dir", "", "directory for CBOR snapshots")
	sqlitePath := flag.String("sqlite", "", "SQLite database for snapshots")
	csvPath := flag.String("csv", "", "write the status timeline to this CSV file")
	verbose := flag.Int("v", 1, "log verbosity (0 quiet, 1 info, 2 debug)")
	flag.Parse()

	commonlog.Configure(*verbose, nil)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *width > 0 {
		cfg.World.Width = *width
	}
	if *height > 0 {
		cfg.World.Height = *height
	}
	if *orgs > 0 {
		cfg.Org.StartAmount = *orgs
	}
	if *backupDir != "" {
		cfg.Backup.Dir = *backupDir
	}
	if *sqlitePath != "" {
		cfg.Backup.SQLite = *sqlitePath
	}
	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *seed, *ticks, *csvPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	return config.Load(path)
}

func run(ctx context.Context, cfg config.Config, seed int64, ticks int, csvPath string) error {
	s, err := sandbox.NewScheduler(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}
	runID := uuid.New().String()
	log.Noticef("run %s: seed %d, world %dx%d", runID, seed, cfg.World.Width, cfg.World.Height)

	if csvPath != "" {
		f, err := os.Create(csvPath)
		if err != nil {
			return err
		}
		defer f.Close()
		s.Status.OnStats = newTimeline(f).Write
	}

	store, err := openStores(cfg.Backup)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Errorf("closing snapshot stores: %v", err)
		}
	}()

	saved := -1
	save := func(ctx context.Context) error {
		if len(store) == 0 || saved == s.World.Tick {
			return nil
		}
		saved = s.World.Tick
		return store.Save(ctx, backup.Build(runID, s.World))
	}

	start := time.Now()
	var saveErr error
	done := s.Run(ticks, func() bool {
		if ctx.Err() != nil {
			return true
		}
		if t := s.World.Tick; t > 0 && cfg.Backup.Period > 0 && t%cfg.Backup.Period == 0 {
			if err := save(ctx); err != nil {
				saveErr = err
				return true
			}
		}
		return false
	})
	if saveErr != nil {
		return saveErr
	}

	log.Noticef("stopped after %d ticks in %s: %d organisms, %d clones, %d crossovers, %d restarts",
		done, time.Since(start).Round(time.Millisecond), len(s.World.Orgs), s.Clones, s.Crossovers, s.Recreated)

	// final snapshot, even when interrupted
	return save(context.WithoutCancel(ctx))
}

func openStores(cfg config.Backup) (backup.Multi, error) {
	var stores backup.Multi
	if cfg.Dir != "" {
		fs, err := backup.NewFileStore(cfg.Dir, cfg.Keep)
		if err != nil {
			return nil, err
		}
		stores = append(stores, fs)
	}
	if cfg.SQLite != "" {
		db, err := backup.OpenSQLite(cfg.SQLite, cfg.Keep)
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores = append(stores, db)
	}
	return stores, nil
}

// timeline writes one CSV row per status line.
type timeline struct {
	w      *csv.Writer
	header bool
}

func newTimeline(f *os.File) *timeline {
	return &timeline{w: csv.NewWriter(f)}
}

func (t *timeline) Write(st sandbox.Stats) {
	if !t.header {
		t.w.Write([]string{"tick", "orgs", "ips", "lps", "energy", "changes", "fitness", "code"})
		t.header = true
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	t.w.Write([]string{
		strconv.Itoa(st.Tick), strconv.Itoa(st.Orgs),
		f(st.IPS), f(st.LPS), f(st.Energy), f(st.Changes), f(st.Fitness), f(st.Code),
	})
	t.w.Flush()
}
