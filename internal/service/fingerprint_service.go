package service

import (
	"context"
	"os"
	"time"

	"fingerprint-be/internal/apperr"
	"fingerprint-be/internal/config"
	"fingerprint-be/internal/device"
	"fingerprint-be/internal/dto"
	"fingerprint-be/internal/imaging"
	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/storage"
	"fingerprint-be/internal/template"
)

// noUsableScore is reported when a comparison produced no meaningful score.
const noUsableScore = 9999

const defaultFingerLabel = "right_index"

type IFingerprintService interface {
	RegisterMultiSample(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error)
	VerifySimple(ctx context.Context, req dto.VerifyRequest) (*dto.VerifyResponse, error)
	IdentifyLive(ctx context.Context, req dto.IdentifyRequest) (*dto.IdentifyResponse, error)
	Capture(ctx context.Context) (*dto.CaptureResponse, error)
	Health() dto.HealthResponse
}

type fingerprintService struct {
	manager  *device.Manager
	store    *storage.Store
	cfgStore *config.Store
	notifier IProgressNotifier
	logger   logger.ILogger
}

func NewFingerprintService(
	manager *device.Manager,
	store *storage.Store,
	cfgStore *config.Store,
	notifier IProgressNotifier,
	log logger.ILogger,
) IFingerprintService {
	return &fingerprintService{
		manager:  manager,
		store:    store,
		cfgStore: cfgStore,
		notifier: notifier,
		logger:   log,
	}
}

// enrollOptions derives device session options from a settings snapshot. The
// snapshot is taken once per operation so a concurrent config update cannot
// change parameters mid-session.
func enrollOptions(snap config.Snapshot, samples int) device.EnrollOptions {
	return device.EnrollOptions{
		SampleCount:      samples,
		MatchThreshold:   snap.MatchThreshold,
		MaxRotation:      snap.MaxRotation,
		MaxFrames:        snap.MaxFramesPerTemplate,
		FastMode:         snap.FastMode,
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

func (s *fingerprintService) RegisterMultiSample(ctx context.Context, req dto.RegisterRequest) (*dto.RegisterResponse, error) {
	snap := s.cfgStore.Snapshot()

	id := storage.SanitizeName(req.RegistrationID)
	if id == "" || id == "_" {
		return nil, apperr.New(apperr.KindInvalidInput, "registrationId is required")
	}
	finger := req.Finger
	if finger == "" {
		finger = defaultFingerLabel
	}
	samples := req.Samples
	if samples <= 0 {
		samples = snap.MaxFramesPerTemplate
	}
	if samples > 10 {
		samples = 10
	}
	overwrite := snap.OverwriteExisting
	if req.Overwrite != nil {
		overwrite = *req.Overwrite
	}

	// Duplicate check happens before the device is touched so a rejected
	// request never costs a capture session.
	if !overwrite && s.store.Exists(id, finger) {
		return nil, apperr.Newf(apperr.KindFileExists, "registration %q finger %q already exists", id, finger)
	}

	if !s.manager.Connected() {
		return nil, apperr.New(apperr.KindDeviceNotConnected, "fingerprint device is not connected")
	}

	s.notifier.NotifyStart(id, "enrollment", samples)

	var images []imaging.CapturedImage
	sampleNum := 0
	onEvent := func(ev device.Event) {
		switch ev.Kind {
		case device.FingerPlaced:
			sampleNum++
			s.notifier.NotifySampleStarted(id, sampleNum, samples)
		case device.FingerRemoved:
			s.notifier.NotifyFingerRemoved(id, sampleNum, samples)
		case device.AmbiguousSource:
			s.logger.Warn("Fingerprint", "Ambiguous capture source, continuing", map[string]interface{}{
				"registrationId": id,
				"sample":         sampleNum,
			})
			if ev.Reply != nil {
				ev.Reply <- true
			}
		case device.ImageCaptured:
			q := imaging.Quality(ev.Image)
			images = append(images, imaging.CapturedImage{
				Data:        ev.Image,
				SampleIndex: sampleNum,
				CapturedAt:  time.Now().UTC(),
				Quality:     q,
			})
			s.notifier.NotifySampleCaptured(id, sampleNum, samples, ev.Image, q)
		}
	}

	timeout := time.Duration(snap.TimeoutMs) * time.Millisecond
	outcome, err := s.manager.Enroll(ctx, enrollOptions(snap, samples), timeout, onEvent)
	if err != nil {
		s.notifier.NotifyError(id, string(apperr.KindOf(err)), err.Error())
		return nil, err
	}
	if outcome.TimedOut {
		e := apperr.New(apperr.KindCaptureTimeout, "capture timed out waiting for finger")
		s.notifier.NotifyError(id, string(e.Kind), e.Message)
		return nil, e
	}
	if !outcome.Success {
		e := apperr.FromSDKCode(outcome.Code)
		s.notifier.NotifyError(id, string(e.Kind), e.Message)
		return nil, e
	}

	container := template.Encode(outcome.Template, finger)
	selected := imaging.SelectBest(images)

	path, err := s.store.SaveRegistration(storage.Registration{
		ID:          id,
		Finger:      finger,
		Container:   container,
		TotalImages: len(images),
		Selected:    selected,
		Settings: storage.CaptureSettings{
			Samples:   samples,
			Threshold: snap.MatchThreshold,
			TimeoutMs: snap.TimeoutMs,
		},
		ImageFormat: snap.ImageFormat,
	})
	if err != nil {
		e := apperr.Newf(apperr.KindInternal, "failed to persist registration: %v", err)
		s.notifier.NotifyError(id, string(e.Kind), e.Message)
		return nil, e
	}

	avg := 0.0
	for _, img := range selected {
		avg += img.Quality
	}
	if len(selected) > 0 {
		avg /= float64(len(selected))
	}

	// Completion is pushed before the HTTP response returns so websocket
	// watchers observe the terminal event even if the caller disconnects.
	s.notifier.NotifyComplete(id, "enrollment", map[string]interface{}{
		"templatePath":   path,
		"templateSize":   len(container),
		"selectedImages": len(selected),
		"averageQuality": avg,
	})

	return &dto.RegisterResponse{
		RegistrationID: id,
		Finger:         finger,
		TemplatePath:   path,
		TemplateSize:   len(container),
		Samples:        samples,
		SelectedImages: len(selected),
		AverageQuality: avg,
	}, nil
}

func (s *fingerprintService) VerifySimple(ctx context.Context, req dto.VerifyRequest) (*dto.VerifyResponse, error) {
	snap := s.cfgStore.Snapshot()

	id := storage.SanitizeName(req.RegistrationID)
	if id == "" || id == "_" {
		return nil, apperr.New(apperr.KindInvalidInput, "registrationId is required")
	}
	finger := req.Finger
	if finger == "" {
		finger = defaultFingerLabel
	}

	// Both reference checks run before the device is used: a missing or
	// corrupt template must not cost the caller a capture.
	path := s.store.TemplatePath(id, finger)
	reference, ok, err := s.store.LoadTemplate(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.Newf(apperr.KindFileNotFound, "no template stored for registration %q finger %q", id, finger)
		}
		return nil, apperr.Newf(apperr.KindInternal, "failed to read stored template: %v", err)
	}
	if !ok {
		return nil, apperr.Newf(apperr.KindInvalidTemplate, "stored template for registration %q is not usable", id)
	}

	captured, quality, err := s.captureProbe(ctx, snap, id, "verification")
	if err != nil {
		return nil, err
	}

	result, err := s.manager.Verify(reference, captured, verifyOptions(snap))
	if err != nil {
		// A comparison failure is an answer, not an error: report no match
		// with the sentinel score.
		s.logger.Error("Fingerprint", "Comparison failed", map[string]interface{}{
			"registrationId": id,
			"error":          err.Error(),
		})
		return &dto.VerifyResponse{
			RegistrationID: id,
			Matched:        false,
			Score:          noUsableScore,
			Threshold:      snap.MatchThreshold,
			CaptureQuality: quality,
			TemplatePath:   path,
		}, nil
	}

	s.notifier.NotifyComplete(id, "verification", map[string]interface{}{
		"matched": result.Matched,
		"score":   result.Score,
	})

	return &dto.VerifyResponse{
		RegistrationID: id,
		Matched:        result.Matched,
		Score:          result.Score,
		Threshold:      snap.MatchThreshold,
		CaptureQuality: quality,
		TemplatePath:   path,
	}, nil
}

func (s *fingerprintService) IdentifyLive(ctx context.Context, req dto.IdentifyRequest) (*dto.IdentifyResponse, error) {
	snap := s.cfgStore.Snapshot()

	searchDir := req.SearchDir
	if searchDir == "" {
		searchDir = snap.TemplatePath
	}
	if info, err := os.Stat(searchDir); err != nil || !info.IsDir() {
		return nil, apperr.Newf(apperr.KindFileNotFound, "search directory %q does not exist", searchDir)
	}

	captured, _, err := s.captureProbe(ctx, snap, "", "identification")
	if err != nil {
		return nil, err
	}

	paths, err := storage.ListTemplates(searchDir, snap.MaxTemplatesPerIdentify)
	if err != nil {
		return nil, apperr.Newf(apperr.KindInternal, "failed to enumerate templates: %v", err)
	}

	opts := verifyOptions(snap)
	best := 0
	bestPath := ""
	matchIndex := -1
	totalCompared := 0

	for i, path := range paths {
		totalCompared++

		reference, ok, err := s.store.LoadTemplate(path)
		if err != nil || !ok {
			// Unreadable containers still count toward the comparison total.
			continue
		}

		result, err := s.manager.Verify(reference, captured, opts)
		if err != nil {
			s.logger.Warn("Fingerprint", "Skipping candidate after comparison failure", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			continue
		}
		// The device's matched flag is authoritative; the score only ranks
		// candidates the device accepted. Strict less-than: on equal scores
		// the earliest candidate wins.
		if result.Matched && (matchIndex < 0 || result.Score < best) {
			best = result.Score
			bestPath = path
			matchIndex = i
		}
	}

	resp := &dto.IdentifyResponse{
		Matched:       matchIndex >= 0,
		Score:         noUsableScore,
		Threshold:     snap.MatchThreshold,
		MatchIndex:    matchIndex,
		TotalCompared: totalCompared,
	}
	bestSubject := ""
	if matchIndex >= 0 {
		bestSubject = s.store.SubjectFromPath(bestPath)
		resp.Score = best
		resp.RegistrationID = bestSubject
		resp.Label = s.store.FingerFromPath(bestPath)
		resp.TemplatePath = bestPath
	}

	s.notifier.NotifyComplete(bestSubject, "identification", map[string]interface{}{
		"matched":       resp.Matched,
		"score":         resp.Score,
		"totalCompared": totalCompared,
	})
	return resp, nil
}

func (s *fingerprintService) Capture(ctx context.Context) (*dto.CaptureResponse, error) {
	snap := s.cfgStore.Snapshot()

	if !s.manager.Connected() {
		return nil, apperr.New(apperr.KindDeviceNotConnected, "fingerprint device is not connected")
	}

	var lastImage []byte
	onEvent := func(ev device.Event) {
		if ev.Kind == device.ImageCaptured {
			lastImage = ev.Image
		}
		if ev.Kind == device.AmbiguousSource && ev.Reply != nil {
			ev.Reply <- true
		}
	}

	timeout := time.Duration(snap.TimeoutMs) * time.Millisecond
	outcome, err := s.manager.Capture(ctx, enrollOptions(snap, 1), timeout, onEvent)
	if err != nil {
		return nil, err
	}
	if outcome.TimedOut {
		return nil, apperr.New(apperr.KindCaptureTimeout, "capture timed out waiting for finger")
	}
	if !outcome.Success {
		return nil, apperr.FromSDKCode(outcome.Code)
	}

	container := template.Encode(outcome.Template, "capture")
	quality := imaging.Quality(lastImage)

	dir, tmplPath, err := storage.SaveCapture(snap.CapturePath, storage.Capture{
		Container:   container,
		Image:       lastImage,
		Quality:     quality,
		ImageFormat: snap.ImageFormat,
	})
	if err != nil {
		return nil, apperr.Newf(apperr.KindInternal, "failed to persist capture: %v", err)
	}

	return &dto.CaptureResponse{
		CaptureDir:   dir,
		TemplatePath: tmplPath,
		TemplateSize: len(container),
		Quality:      quality,
	}, nil
}

// captureProbe runs a single-sample capture and returns the raw template
// with the backend's quality score for it.
func (s *fingerprintService) captureProbe(ctx context.Context, snap config.Snapshot, subject, operation string) ([]byte, int, error) {
	if !s.manager.Connected() {
		return nil, 0, apperr.New(apperr.KindDeviceNotConnected, "fingerprint device is not connected")
	}

	s.notifier.NotifyStart(subject, operation, 1)

	onEvent := func(ev device.Event) {
		switch ev.Kind {
		case device.FingerPlaced:
			s.notifier.NotifySampleStarted(subject, 1, 1)
		case device.FingerRemoved:
			s.notifier.NotifyFingerRemoved(subject, 1, 1)
		case device.AmbiguousSource:
			if ev.Reply != nil {
				ev.Reply <- true
			}
		case device.ImageCaptured:
			s.notifier.NotifySampleCaptured(subject, 1, 1, ev.Image, imaging.Quality(ev.Image))
		}
	}

	timeout := time.Duration(snap.TimeoutMs) * time.Millisecond
	outcome, err := s.manager.Capture(ctx, enrollOptions(snap, 1), timeout, onEvent)
	if err != nil {
		s.notifier.NotifyError(subject, string(apperr.KindOf(err)), err.Error())
		return nil, 0, err
	}
	if outcome.TimedOut {
		e := apperr.New(apperr.KindCaptureTimeout, "capture timed out waiting for finger")
		s.notifier.NotifyError(subject, string(e.Kind), e.Message)
		return nil, 0, e
	}
	if !outcome.Success {
		e := apperr.FromSDKCode(outcome.Code)
		s.notifier.NotifyError(subject, string(e.Kind), e.Message)
		return nil, 0, e
	}
	return outcome.Template, outcome.Quality, nil
}

func (s *fingerprintService) Health() dto.HealthResponse {
	connected := s.manager.Connected()
	status := "healthy"
	if !connected {
		status = "degraded"
	}
	return dto.HealthResponse{
		Status:          status,
		DeviceConnected: connected,
		UptimeSeconds:   int64(s.manager.Uptime().Seconds()),
		LastError:       s.manager.LastError(),
	}
}
