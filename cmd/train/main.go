// Command train fits the multi-task model on a unified dataset and writes a
// checkpoint.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/train"
	"github.com/trashdetect/perception/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("train: %v", err)
	}
}

// summary is printed to stdout when training finishes.
type summary struct {
	Checkpoint string  `json:"checkpoint"`
	RunID      string  `json:"run_id,omitempty"`
	Epochs     int     `json:"epochs"`
	Samples    int     `json:"samples"`
	Steps      int     `json:"steps"`
	FinalLoss  float64 `json:"final_loss"`
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON training config; flags below override it")
	data := fs.String("data", "", "Unified dataset root (images/ and labels/)")
	epochs := fs.Int("epochs", 0, "Number of epochs")
	batch := fs.Int("batch", 0, "Batch size")
	lr := fs.Float64("lr", 0, "Adam learning rate")
	trashClasses := fs.Int("trash-classes", 0, "Number of trash classes")
	out := fs.String("out", "", "Checkpoint output path")
	runLog := fs.String("run-log", "", "sqlite run log to record the run in")
	plot := fs.String("plot", "", "Write a PNG loss curve to this path")
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

	var cfg *config.TrainConfig
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTrainConfig(*configPath); err != nil {
			return err
		}
	} else {
		cfg = config.DefaultTrainConfig("")
	}

	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["data"] {
		cfg.DataRoot = *data
	}
	if set["epochs"] {
		cfg.Epochs = epochs
	}
	if set["batch"] {
		cfg.BatchSize = batch
	}
	if set["lr"] {
		cfg.LearningRate = lr
	}
	if set["trash-classes"] {
		cfg.NumTrashClasses = trashClasses
	}
	if set["out"] {
		cfg.CheckpointPath = out
	}
	if set["run-log"] {
		cfg.RunLogPath = runLog
	}
	if set["plot"] {
		cfg.LossPlotPath = plot
	}
	if cfg.DataRoot == "" {
		return fmt.Errorf("-data (or data_root in -config) is required")
	}

	res, err := train.Train(cfg)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary{
		Checkpoint: res.CheckpointPath,
		RunID:      res.RunID,
		Epochs:     len(res.Epochs),
		Samples:    res.Samples,
		Steps:      res.Steps,
		FinalLoss:  res.FinalLoss(),
	})
}
