// Command fpcli drives the fingerprint pipeline from a terminal: capture
// and store a registration, verify a live finger against a stored template,
// or identify a live finger against a directory of templates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"fingerprint-be/internal/apperr"
	"fingerprint-be/internal/config"
	"fingerprint-be/internal/device"
	"fingerprint-be/internal/device/afis"
	"fingerprint-be/internal/imaging"
	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/storage"
	"fingerprint-be/internal/template"
)

const retryDelay = 3 * time.Second

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: fpcli <command> [flags]

Commands:
  capture    capture samples and store a registration
  verify     capture one sample and compare against a stored template
  identify   capture one sample and search a template directory
  config     print the effective settings`)
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "capture":
		runCapture(cfg, os.Args[2:])
	case "verify":
		runVerify(cfg, os.Args[2:])
	case "identify":
		runIdentify(cfg, os.Args[2:])
	case "config":
		runConfig(cfg)
	default:
		usage()
	}
}

type env struct {
	cfg     *config.Config
	manager *device.Manager
	store   *storage.Store
}

func setup(cfg *config.Config) *env {
	log := logger.NewIsolatedLogger(cfg.App.LogFilePath)

	source, err := afis.NewDirSource(cfg.App.SampleSourceDir)
	if err != nil {
		fatal("open sample source: %v", err)
	}
	dev := afis.NewSoftwareDevice(source, log)
	manager := device.NewManager(dev, log)
	manager.Initialize(
		cfg.Fingerprint.DeviceCheckRetries,
		time.Duration(cfg.Fingerprint.DeviceCheckDelayMs)*time.Millisecond,
		cfg.App.DeviceLibraries,
	)
	if !manager.Connected() {
		fatal("device not connected: %s", manager.LastError())
	}

	return &env{
		cfg:     cfg,
		manager: manager,
		store:   storage.NewStore(cfg.Fingerprint.TemplatePath, log),
	}
}

func enrollOptions(snap config.Snapshot, samples int, fast bool) device.EnrollOptions {
	return device.EnrollOptions{
		SampleCount:      samples,
		MatchThreshold:   snap.MatchThreshold,
		MaxRotation:      snap.MaxRotation,
		MaxFrames:        snap.MaxFramesPerTemplate,
		FastMode:         fast || snap.FastMode,
		DetectFakeFinger: snap.DetectFakeFinger,
	}
}

func verifyOptions(snap config.Snapshot) device.VerifyOptions {
	return device.VerifyOptions{
		MatchThreshold: snap.MatchThreshold,
		MaxRotation:    snap.MaxRotation,
		FastMode:       snap.FastMode,
	}
}

// captureWithRetry runs one session, retrying codes the policy marks as
// transient.
func captureWithRetry(e *env, opts device.EnrollOptions, retries int, onEvent func(device.Event)) *device.EnrollOutcome {
	timeout := time.Duration(e.cfg.Fingerprint.TimeoutMs) * time.Millisecond

	for attempt := 1; ; attempt++ {
		outcome, err := e.manager.Enroll(context.Background(), opts, timeout, onEvent)
		if err != nil {
			fatal("capture failed: %v", err)
		}
		if outcome.TimedOut {
			fatal("capture timed out waiting for finger")
		}
		if outcome.Success {
			return outcome
		}

		if device.Classify(outcome.Code) == device.ClassRetryable && attempt <= retries {
			fmt.Printf("Transient device error (%d): %s — retrying in %s (attempt %d/%d)\n",
				outcome.Code, apperr.SDKMessage(outcome.Code), retryDelay, attempt, retries)
			time.Sleep(retryDelay)
			continue
		}
		fatal("capture failed (%d): %s", outcome.Code, apperr.SDKMessage(outcome.Code))
	}
}

func progressPrinter(images *[]imaging.CapturedImage) func(device.Event) {
	sample := 0
	return func(ev device.Event) {
		switch ev.Kind {
		case device.FingerPlaced:
			sample++
			fmt.Printf("Sample %d: place finger on the sensor\n", sample)
		case device.ImageCaptured:
			q := imaging.Quality(ev.Image)
			fmt.Printf("Sample %d captured (quality %.1f)\n", sample, q)
			if images != nil {
				*images = append(*images, imaging.CapturedImage{
					Data:        ev.Image,
					SampleIndex: sample,
					CapturedAt:  time.Now().UTC(),
					Quality:     q,
				})
			}
		case device.FingerRemoved:
			fmt.Println("Remove finger")
		case device.AmbiguousSource:
			fmt.Println("Unclear read, trying again")
			if ev.Reply != nil {
				ev.Reply <- true
			}
		}
	}
}

func runCapture(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	id := fs.String("id", "", "registration id (required)")
	finger := fs.String("finger", "right_index", "finger label")
	samples := fs.Int("samples", cfg.Fingerprint.MaxFramesPerTemplate, "samples to capture (3-10)")
	outputDir := fs.String("output-dir", "", "override template root directory")
	fast := fs.Bool("fast", false, "fast capture mode")
	retries := fs.Int("retries", 3, "retries on transient device errors")
	overwrite := fs.Bool("overwrite", false, "replace an existing registration")
	fs.Parse(args)

	if *id == "" {
		fatal("capture: --id is required")
	}
	n := *samples
	if n < 3 {
		n = 3
	}
	if n > 10 {
		n = 10
	}

	if *outputDir != "" {
		cfg.Fingerprint.TemplatePath = *outputDir
	}
	e := setup(cfg)
	snap := cfg.Fingerprint

	if !*overwrite && !snap.OverwriteExisting && e.store.Exists(*id, *finger) {
		fatal("registration %q finger %q already exists (use --overwrite)", *id, *finger)
	}

	var images []imaging.CapturedImage
	outcome := captureWithRetry(e, enrollOptions(snap, n, *fast), *retries, progressPrinter(&images))

	container := template.Encode(outcome.Template, *finger)
	selected := imaging.SelectBest(images)

	path, err := e.store.SaveRegistration(storage.Registration{
		ID:          storage.SanitizeName(*id),
		Finger:      *finger,
		Container:   container,
		TotalImages: len(images),
		Selected:    selected,
		Settings: storage.CaptureSettings{
			Samples:   n,
			Threshold: snap.MatchThreshold,
			TimeoutMs: snap.TimeoutMs,
		},
		ImageFormat: snap.ImageFormat,
	})
	if err != nil {
		fatal("save registration: %v", err)
	}

	fmt.Printf("Registration stored: %s (%d bytes, %d/%d images kept)\n",
		path, len(container), len(selected), len(images))
}

func runVerify(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	id := fs.String("id", "", "registration id (required)")
	finger := fs.String("finger", "right_index", "finger label")
	retries := fs.Int("retries", 3, "retries on transient device errors")
	fs.Parse(args)

	if *id == "" {
		fatal("verify: --id is required")
	}

	e := setup(cfg)
	snap := cfg.Fingerprint

	path := e.store.TemplatePath(*id, *finger)
	reference, ok, err := e.store.LoadTemplate(path)
	if err != nil {
		fatal("read stored template %s: %v", path, err)
	}
	if !ok {
		fatal("stored template %s is not usable", path)
	}

	outcome := captureWithRetry(e, enrollOptions(snap, 1, false), *retries, progressPrinter(nil))

	result, err := e.manager.Verify(reference, outcome.Template, verifyOptions(snap))
	if err != nil {
		fatal("comparison failed: %v", err)
	}

	if result.Matched {
		fmt.Printf("MATCH (score %d)\n", result.Score)
	} else {
		fmt.Printf("NO MATCH (score %d)\n", result.Score)
		os.Exit(1)
	}
}

func runIdentify(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("identify", flag.ExitOnError)
	dir := fs.String("dir", "", "directory to search (default: template root)")
	retries := fs.Int("retries", 3, "retries on transient device errors")
	fs.Parse(args)

	e := setup(cfg)
	snap := cfg.Fingerprint

	searchDir := *dir
	if searchDir == "" {
		searchDir = snap.TemplatePath
	}
	if info, err := os.Stat(searchDir); err != nil || !info.IsDir() {
		fatal("search directory %q does not exist", searchDir)
	}

	outcome := captureWithRetry(e, enrollOptions(snap, 1, false), *retries, progressPrinter(nil))

	paths, err := storage.ListTemplates(searchDir, snap.MaxTemplatesPerIdentify)
	if err != nil {
		fatal("enumerate templates: %v", err)
	}

	opts := verifyOptions(snap)
	best := -1
	bestScore := 0
	total := 0
	for i, path := range paths {
		total++
		reference, ok, err := e.store.LoadTemplate(path)
		if err != nil || !ok {
			continue
		}
		result, err := e.manager.Verify(reference, outcome.Template, opts)
		if err != nil {
			continue
		}
		if result.Matched && (best < 0 || result.Score < bestScore) {
			best = i
			bestScore = result.Score
		}
	}

	if best < 0 {
		fmt.Printf("NO MATCH (%d templates compared)\n", total)
		os.Exit(1)
	}
	fmt.Printf("MATCH: %s (score %d, %d templates compared)\n",
		e.store.SubjectFromPath(paths[best]), bestScore, total)
}

func runConfig(cfg *config.Config) {
	data, err := json.MarshalIndent(cfg.Fingerprint, "", "  ")
	if err != nil {
		fatal("marshal settings: %v", err)
	}
	fmt.Println(string(data))
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "fpcli: "+format+"\n", args...)
	os.Exit(1)
}
