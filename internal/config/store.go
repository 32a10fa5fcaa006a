package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"fingerprint-be/internal/pkg/logger"
)

// Store is the configuration collaborator: it owns the current Snapshot,
// persists changes to a JSON file, and hands out immutable copies. It is the
// only place where fingerprint tunables are mutable.
type Store struct {
	mu       sync.RWMutex
	current  Snapshot
	filePath string
	log      logger.ILogger
}

func NewStore(initial Snapshot, filePath string, log logger.ILogger) *Store {
	s := &Store{current: initial, filePath: filePath, log: log}
	if err := s.loadFile(); err != nil {
		log.Warn("ConfigStore", "Could not load configuration file, using defaults", map[string]interface{}{
			"path": filePath, "error": err.Error(),
		})
	}
	return s
}

// Snapshot returns a copy of the current configuration. Callers read it once
// at operation start and must not share it across operations.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update is a partial update: only non-nil fields of patch are applied. The
// result is validated before being committed and persisted.
type Update struct {
	MatchThreshold          *int    `json:"threshold"`
	TimeoutMs               *int    `json:"timeout"`
	MaxRotation             *int    `json:"maxRotation"`
	MaxFramesPerTemplate    *int    `json:"maxFramesInTemplate"`
	MinQuality              *int    `json:"minQuality"`
	MaxTemplatesPerIdentify *int    `json:"maxTemplatesPerIdentify"`
	DeviceCheckRetries      *int    `json:"deviceCheckRetries"`
	DeviceCheckDelayMs      *int    `json:"deviceCheckDelayMs"`
	TemplatePath            *string `json:"templatePath"`
	CapturePath             *string `json:"capturePath"`
	OverwriteExisting       *bool   `json:"overwriteExisting"`
	DetectFakeFinger        *bool   `json:"detectFakeFinger"`
	FastMode                *bool   `json:"fastMode"`
	ImageFormat             *string `json:"imageFormat"`
}

func (s *Store) Apply(patch Update) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	if patch.MatchThreshold != nil {
		next.MatchThreshold = *patch.MatchThreshold
	}
	if patch.TimeoutMs != nil {
		next.TimeoutMs = *patch.TimeoutMs
	}
	if patch.MaxRotation != nil {
		next.MaxRotation = *patch.MaxRotation
	}
	if patch.MaxFramesPerTemplate != nil {
		next.MaxFramesPerTemplate = *patch.MaxFramesPerTemplate
	}
	if patch.MinQuality != nil {
		next.MinQuality = *patch.MinQuality
	}
	if patch.MaxTemplatesPerIdentify != nil {
		next.MaxTemplatesPerIdentify = *patch.MaxTemplatesPerIdentify
	}
	if patch.DeviceCheckRetries != nil {
		next.DeviceCheckRetries = *patch.DeviceCheckRetries
	}
	if patch.DeviceCheckDelayMs != nil {
		next.DeviceCheckDelayMs = *patch.DeviceCheckDelayMs
	}
	if patch.TemplatePath != nil {
		next.TemplatePath = *patch.TemplatePath
	}
	if patch.CapturePath != nil {
		next.CapturePath = *patch.CapturePath
	}
	if patch.OverwriteExisting != nil {
		next.OverwriteExisting = *patch.OverwriteExisting
	}
	if patch.DetectFakeFinger != nil {
		next.DetectFakeFinger = *patch.DetectFakeFinger
	}
	if patch.FastMode != nil {
		next.FastMode = *patch.FastMode
	}
	if patch.ImageFormat != nil {
		next.ImageFormat = *patch.ImageFormat
	}

	result := Validate(next)
	if !result.Valid {
		return s.current, fmt.Errorf("invalid configuration: %v", result.Errors)
	}

	s.current = next
	if err := s.saveFileLocked(); err != nil {
		s.log.Warn("ConfigStore", "Failed to persist configuration", map[string]interface{}{"error": err.Error()})
	}
	return s.current, nil
}

// Reset restores defaults (plus env overrides already baked into initial)
// and persists them.
func (s *Store) Reset(initial Snapshot) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = initial
	if err := s.saveFileLocked(); err != nil {
		s.log.Warn("ConfigStore", "Failed to persist configuration", map[string]interface{}{"error": err.Error()})
	}
	return s.current
}

func (s *Store) loadFile() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if result := Validate(snap); !result.Valid {
		return fmt.Errorf("configuration file invalid: %v", result.Errors)
	}
	s.current = snap
	return nil
}

func (s *Store) saveFileLocked() error {
	data, err := json.MarshalIndent(s.current, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0o644)
}

// ValidationResult reports range errors that block an update and warnings
// that merely deserve operator attention.
type ValidationResult struct {
	Valid    bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func Validate(s Snapshot) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	check := func(name string, v, lo, hi int) {
		if v < lo || v > hi {
			res.Errors = append(res.Errors, fmt.Sprintf("%s must be between %d and %d, got %d", name, lo, hi, v))
		}
	}
	check("threshold", s.MatchThreshold, 0, 100)
	check("timeout", s.TimeoutMs, 5000, 60000)
	check("maxRotation", s.MaxRotation, 0, 199)
	check("maxFramesInTemplate", s.MaxFramesPerTemplate, 1, 10)
	check("minQuality", s.MinQuality, 0, 100)
	check("maxTemplatesPerIdentify", s.MaxTemplatesPerIdentify, 1, 10000)
	check("deviceCheckRetries", s.DeviceCheckRetries, 1, 10)
	check("deviceCheckDelayMs", s.DeviceCheckDelayMs, 100, 5000)

	if s.TemplatePath == "" {
		res.Errors = append(res.Errors, "templatePath must not be empty")
	}
	switch s.ImageFormat {
	case "bmp", "png", "jpg":
	default:
		res.Errors = append(res.Errors, fmt.Sprintf("imageFormat must be bmp, png or jpg, got %q", s.ImageFormat))
	}

	if s.MatchThreshold < 50 {
		res.Warnings = append(res.Warnings, "threshold below 50 accepts weak matches")
	}
	if s.OverwriteExisting {
		res.Warnings = append(res.Warnings, "overwriteExisting is enabled, re-registration will replace stored templates")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
