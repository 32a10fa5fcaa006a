// Package storage persists registrations on the local filesystem. Each
// registration owns one directory holding the template container, the
// selected capture images, and a metadata document:
//
//	{root}/{registrationId}/{fingerLabel}/{registrationId}.tml
//	{root}/{registrationId}/{fingerLabel}/images/...
//	{root}/{registrationId}/{fingerLabel}/metadata.json
package storage

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"fingerprint-be/internal/imaging"
	"fingerprint-be/internal/pkg/logger"
	"fingerprint-be/internal/template"
)

// CaptureSettings records the parameters a registration was captured with.
type CaptureSettings struct {
	Samples   int `json:"samples"`
	Threshold int `json:"threshold"`
	TimeoutMs int `json:"timeoutMs"`
}

// ImageRecord describes one stored capture image.
type ImageRecord struct {
	Index       int     `json:"index"`
	Quality     float64 `json:"quality"`
	SampleIndex int     `json:"sampleIndex"`
	Filename    string  `json:"filename"`
	CaptureTime string  `json:"captureTime"`
}

// CaptureResults summarizes what the capture produced.
type CaptureResults struct {
	TemplateSize   int     `json:"templateSize"`
	TotalImages    int     `json:"totalImages"`
	SelectedImages int     `json:"selectedImages"`
	AverageQuality float64 `json:"averageQuality"`
	MinQuality     float64 `json:"minQuality"`
	MaxQuality     float64 `json:"maxQuality"`
}

// Metadata is the document written next to each stored template.
type Metadata struct {
	RegistrationID string          `json:"registrationId"`
	FingerLabel    string          `json:"fingerLabel"`
	CaptureDate    string          `json:"captureDate"`
	Settings       CaptureSettings `json:"settings"`
	Results        CaptureResults  `json:"results"`
	Images         []ImageRecord   `json:"images"`
}

// Registration bundles everything SaveRegistration persists.
type Registration struct {
	ID          string
	Finger      string
	Container   []byte
	TotalImages int
	Selected    []imaging.CapturedImage
	Settings    CaptureSettings
	ImageFormat string
}

// Store reads and writes registrations under a root directory. Decoded
// templates are cached keyed by path and modification time so repeated 1:N
// scans do not re-read and re-parse every container.
type Store struct {
	root  string
	cache *gocache.Cache
	log   logger.ILogger
}

func NewStore(root string, log logger.ILogger) *Store {
	return &Store{
		root:  root,
		cache: gocache.New(10*time.Minute, 30*time.Minute),
		log:   log,
	}
}

func (s *Store) Root() string { return s.root }

// RegistrationDir returns the directory owning one finger of one subject.
func (s *Store) RegistrationDir(id, finger string) string {
	return filepath.Join(s.root, SanitizeName(id), SanitizeName(finger))
}

// TemplatePath returns the container file path for a registration.
func (s *Store) TemplatePath(id, finger string) string {
	return filepath.Join(s.RegistrationDir(id, finger), SanitizeName(id)+template.Extension)
}

// Exists reports whether a template is already stored for the registration.
func (s *Store) Exists(id, finger string) bool {
	_, err := os.Stat(s.TemplatePath(id, finger))
	return err == nil
}

// SaveRegistration writes the container, the selected images, and the
// metadata document. The directory is created as needed; an existing
// registration is overwritten in place.
func (s *Store) SaveRegistration(reg Registration) (string, error) {
	dir := s.RegistrationDir(reg.ID, reg.Finger)
	imagesDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return "", fmt.Errorf("create registration directory: %w", err)
	}

	// Cache keys carry the file's mtime, so the rewrite invalidates stale
	// entries on its own.
	tmplPath := s.TemplatePath(reg.ID, reg.Finger)
	if err := os.WriteFile(tmplPath, reg.Container, 0o644); err != nil {
		return "", fmt.Errorf("write template container: %w", err)
	}

	ext := reg.ImageFormat
	if ext == "" {
		ext = "bmp"
	}
	records := make([]ImageRecord, 0, len(reg.Selected))
	for k, img := range reg.Selected {
		name := fmt.Sprintf("%s_best_%02d.%s", SanitizeName(reg.ID), k+1, ext)
		if err := os.WriteFile(filepath.Join(imagesDir, name), img.Data, 0o644); err != nil {
			return "", fmt.Errorf("write capture image: %w", err)
		}
		records = append(records, ImageRecord{
			Index:       k + 1,
			Quality:     img.Quality,
			SampleIndex: img.SampleIndex,
			Filename:    name,
			CaptureTime: img.CapturedAt.UTC().Format(time.RFC3339),
		})
	}

	meta := Metadata{
		RegistrationID: reg.ID,
		FingerLabel:    reg.Finger,
		CaptureDate:    time.Now().UTC().Format(time.RFC3339),
		Settings:       reg.Settings,
		Results: CaptureResults{
			TemplateSize:   len(reg.Container),
			TotalImages:    reg.TotalImages,
			SelectedImages: len(reg.Selected),
			AverageQuality: averageQuality(reg.Selected),
			MinQuality:     minQuality(reg.Selected),
			MaxQuality:     maxQuality(reg.Selected),
		},
		Images: records,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	s.log.Info("storage", "registration saved", map[string]interface{}{
		"registrationId": reg.ID,
		"finger":         reg.Finger,
		"templateSize":   len(reg.Container),
		"images":         len(records),
	})
	return tmplPath, nil
}

// Capture bundles everything SaveCapture persists for a standalone capture.
type Capture struct {
	Container   []byte
	Image       []byte
	Quality     float64
	ImageFormat string
}

// SaveCapture writes a standalone capture (no registration id) into its own
// timestamped directory under the capture root and returns the directory and
// the container path.
func SaveCapture(root string, cap Capture) (dir, tmplPath string, err error) {
	stamp := time.Now().UTC().Format("20060102_150405")
	dir = filepath.Join(root, "capture_"+stamp)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create capture directory: %w", err)
	}

	tmplPath = filepath.Join(dir, "capture_"+stamp+template.Extension)
	if err := os.WriteFile(tmplPath, cap.Container, 0o644); err != nil {
		return "", "", fmt.Errorf("write capture template: %w", err)
	}

	if len(cap.Image) > 0 {
		ext := cap.ImageFormat
		if ext == "" {
			ext = "bmp"
		}
		imgPath := filepath.Join(dir, "capture_"+stamp+"."+ext)
		if err := os.WriteFile(imgPath, cap.Image, 0o644); err != nil {
			return "", "", fmt.Errorf("write capture image: %w", err)
		}
	}
	return dir, tmplPath, nil
}

// ListTemplates walks dir recursively and returns template container paths,
// stopping once max paths have been collected. Max <= 0 means unbounded.
func ListTemplates(dir string, max int) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), template.Extension) {
			paths = append(paths, path)
			if max > 0 && len(paths) >= max {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// SubjectFromPath recovers the registration id a stored container belongs
// to: the first path component under the store root, falling back to the
// file stem for containers stored outside the usual layout.
func (s *Store) SubjectFromPath(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) > 1 {
			return parts[0]
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// FingerFromPath recovers the finger label from the registration layout
// {root}/{id}/{label}/{file}. Files outside that layout yield "".
func (s *Store) FingerFromPath(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) >= 3 {
			return parts[len(parts)-2]
		}
	}
	return ""
}

// LoadTemplate reads a container file and returns the embedded raw template.
// ok is false when the file exists but does not carry a usable template.
func (s *Store) LoadTemplate(path string) ([]byte, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	key := fmt.Sprintf("%s|%d", path, info.ModTime().UnixNano())
	if cached, hit := s.cache.Get(key); hit {
		entry := cached.(cachedTemplate)
		return entry.raw, entry.ok, nil
	}

	container, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	raw, ok := template.Decode(container)
	s.cache.Set(key, cachedTemplate{raw: raw, ok: ok}, gocache.DefaultExpiration)
	return raw, ok, nil
}

type cachedTemplate struct {
	raw []byte
	ok  bool
}

// SanitizeName strips path separators and dot segments from user-supplied
// identifiers so they cannot escape the storage root.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	cleaned := replacer.Replace(name)
	if cleaned == "" || cleaned == "." {
		return "_"
	}
	return cleaned
}

func averageQuality(images []imaging.CapturedImage) float64 {
	if len(images) == 0 {
		return 0
	}
	var sum float64
	for _, img := range images {
		sum += img.Quality
	}
	return sum / float64(len(images))
}

func minQuality(images []imaging.CapturedImage) float64 {
	if len(images) == 0 {
		return 0
	}
	m := images[0].Quality
	for _, img := range images[1:] {
		if img.Quality < m {
			m = img.Quality
		}
	}
	return m
}

func maxQuality(images []imaging.CapturedImage) float64 {
	if len(images) == 0 {
		return 0
	}
	m := images[0].Quality
	for _, img := range images[1:] {
		if img.Quality > m {
			m = img.Quality
		}
	}
	return m
}
