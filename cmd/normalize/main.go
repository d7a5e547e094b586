// Command normalize merges heterogeneous source collections into one unified
// dataset store.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/fsutil"
	"github.com/trashdetect/perception/internal/labels"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/normalize"
	"github.com/trashdetect/perception/internal/runlog"
	"github.com/trashdetect/perception/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("normalize: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	configPath := fs.String("config", "normalize.json", "JSON file listing the collections to merge")
	logFile := fs.String("log-file", "", "Also write logs to this size-rotated file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	defer monitoring.LogToFile(*logFile, monitoring.DefaultRotation()).Close()

	cfg, err := config.LoadNormalizeConfig(*configPath)
	if err != nil {
		return err
	}

	var opts normalize.Options
	if p := cfg.GetTaxonomyPath(); p != "" {
		if opts.Taxonomy, err = labels.LoadTaxonomy(p); err != nil {
			return err
		}
	}

	n := normalize.NewNormalizer(fsutil.OSFileSystem{}, cfg.OutputRoot, opts)
	reports, runErr := normalize.RunAll(n, cfg)

	// Reports of the collections that finished are kept even when a later
	// collection fails.
	if p := cfg.GetRunLogPath(); p != "" && len(reports) > 0 {
		if err := recordReports(p, cfg.OutputRoot, reports); err != nil {
			monitoring.Logf("normalize: warning: %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

func recordReports(path, outputRoot string, reports []*normalize.Report) error {
	store, err := runlog.OpenMigrated(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return normalize.RecordReports(store, outputRoot, reports)
}
