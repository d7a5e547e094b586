// Command serve exposes a trained checkpoint over HTTP, with an optional
// gRPC health service for orchestrators.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/trashdetect/perception/internal/api"
	"github.com/trashdetect/perception/internal/config"
	"github.com/trashdetect/perception/internal/infer"
	"github.com/trashdetect/perception/internal/monitoring"
	"github.com/trashdetect/perception/internal/runlog"
	"github.com/trashdetect/perception/internal/version"
)

// healthService is the service name reported by the gRPC health server.
const healthService = "trashdetect.Perception"

func main() {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("serve: ignoring .env: %v", err)
	}
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("serve: %v", err)
	}
}

type options struct {
	listen       string
	grpcListen   string
	checkpoint   string
	trashClasses int
	runLog       string
	imageDirs    []string
	maxUpload    int64
	logFile      string
}

func envString(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		monitoring.Logf("serve: ignoring %s=%q: not an integer", key, v)
	}
	return fallback
}

func parseFlags(args []string, stdout io.Writer) (*options, bool, error) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	o := &options{}
	fs.StringVar(&o.listen, "listen", envString("PERCEPTION_LISTEN", ":8080"), "HTTP listen address")
	fs.StringVar(&o.grpcListen, "grpc-listen", envString("PERCEPTION_GRPC_LISTEN", ""), "gRPC health listen address; empty disables")
	fs.StringVar(&o.checkpoint, "checkpoint", envString("PERCEPTION_CHECKPOINT", config.DefaultCheckpointPath), "Trained checkpoint")
	fs.IntVar(&o.trashClasses, "trash-classes", envInt("PERCEPTION_TRASH_CLASSES", config.DefaultNumTrashClasses), "Trash class count the checkpoint was trained with")
	fs.StringVar(&o.runLog, "run-log", envString("PERCEPTION_RUN_LOG", ""), "sqlite run log for /runs, /reports and /debug/")
	imageDirs := fs.String("image-dirs", envString("PERCEPTION_IMAGE_DIRS", ""), "Comma-separated directories whose files may be predicted by path")
	fs.Int64Var(&o.maxUpload, "max-upload", api.DefaultMaxUploadBytes, "Maximum /predict upload size in bytes")
	fs.StringVar(&o.logFile, "log-file", envString("PERCEPTION_LOG_FILE", ""), "Also write logs to this size-rotated file")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.String())
		return nil, true, nil
	}
	for _, d := range strings.Split(*imageDirs, ",") {
		if d = strings.TrimSpace(d); d != "" {
			o.imageDirs = append(o.imageDirs, d)
		}
	}
	if o.listen == "" {
		return nil, false, fmt.Errorf("-listen is required")
	}
	return o, false, nil
}

// newHandler builds the HTTP handler. The returned store is nil when no run
// log is configured; the caller closes it.
func newHandler(o *options, p api.Predictor) (http.Handler, *runlog.Store, error) {
	var store *runlog.Store
	if o.runLog != "" {
		var err error
		if store, err = runlog.OpenMigrated(o.runLog); err != nil {
			return nil, nil, err
		}
	}
	mux, err := api.NewServer(p, api.Options{
		Runs:           store,
		ImageDirs:      o.imageDirs,
		MaxUploadBytes: o.maxUpload,
	}).ServeMux()
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return api.LoggingMiddleware(mux), store, nil
}

func newHealthServer() (*grpc.Server, *health.Server) {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	return gs, hs
}

func run(args []string, stdout io.Writer) error {
	o, done, err := parseFlags(args, stdout)
	if err != nil || done {
		return err
	}
	defer monitoring.LogToFile(o.logFile, monitoring.DefaultRotation()).Close()

	monitoring.Logf("loading checkpoint %s", o.checkpoint)
	p, err := infer.Load(o.checkpoint, o.trashClasses)
	if err != nil {
		return err
	}
	handler, store, err := newHandler(o, p)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	errc := make(chan error, 2)

	if o.grpcListen != "" {
		lis, err := net.Listen("tcp", o.grpcListen)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", o.grpcListen, err)
		}
		gs, hs := newHealthServer()
		wg.Add(1)
		go func() {
			defer wg.Done()
			monitoring.Logf("gRPC health service listening on %s", o.grpcListen)
			if err := gs.Serve(lis); err != nil {
				errc <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
		defer func() {
			hs.Shutdown()
			gs.GracefulStop()
			wg.Wait()
		}()
	}

	server := &http.Server{
		Addr:              o.listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		monitoring.Logf("serving %s (%d trash classes) on %s", o.checkpoint, p.NumTrashClasses(), o.listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		stop()
		return err
	}
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}
	return nil
}
