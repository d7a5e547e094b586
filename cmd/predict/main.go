// Command predict runs the multi-task model on one image and prints the
// decoded prediction as JSON. With -server it asks a running serve instance
// instead of loading the checkpoint locally.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/trashdetect/perception/internal/api"
	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/infer"
	"github.com/trashdetect/perception/internal/perr"
	"github.com/trashdetect/perception/internal/version"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("predict: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	checkpoint := fs.String("checkpoint", config.DefaultCheckpointPath, "Trained checkpoint")
	trashClasses := fs.Int("trash-classes", config.DefaultNumTrashClasses, "Trash class count the checkpoint was trained with")
	image := fs.String("image", "", "Image to classify")
	server := fs.String("server", "", "Base URL of a running serve instance, e.g. http://localhost:8080")
	timeout := fs.Duration("timeout", time.Minute, "Request timeout with -server")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil
	}
	if *image == "" {
		return fmt.Errorf("-image is required")
	}

	var (
		pred *infer.Prediction
		err  error
	)
	if *server != "" {
		pred, err = predictRemote(*server, *image, *trashClasses, *timeout)
	} else {
		pred, err = infer.Predict(*checkpoint, *trashClasses, *image)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pred)
}

// predictRemote refuses servers whose checkpoint was trained with a different
// trash class count, matching the local checkpoint check.
func predictRemote(server, image string, trashClasses int, timeout time.Duration) (*infer.Prediction, error) {
	f, err := os.Open(image)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	c := api.NewClient(server, nil)
	h, err := c.Health(ctx)
	if err != nil {
		return nil, err
	}
	if h.NumTrashClasses != trashClasses {
		return nil, perr.Configf("server %s has %d trash classes, expected %d", server, h.NumTrashClasses, trashClasses)
	}
	return c.Predict(ctx, filepath.Base(image), f)
}
