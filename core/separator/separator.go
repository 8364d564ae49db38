// Package separator runs the stem separation tools (demucs, spleeter)
// as subprocesses and turns their output folders into manifests. The
// tools write encoded stem files under the separated directory; this
// package owns the command lines, the output layout of each tool, and
// the scanning rules that recover a manifest from disk.
package separator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"stemdeck/logger"
	"stemdeck/model"
)

var (
	ErrUnknownTool     = errors.New("separator: unknown splitter")
	ErrUnknownModel    = errors.New("separator: unknown model for splitter")
	ErrToolUnavailable = errors.New("separator: splitter not installed")
	ErrNoOutput        = errors.New("separator: output directory not found after separation")
)

// toolModels is the registry of supported splitters and their models.
var toolModels = map[string][]string{
	"demucs":   {"htdemucs_6s", "htdemucs_ft", "htdemucs"},
	"spleeter": {"2stems", "4stems", "5stems"},
}

// Tool describes one separation backend to API clients.
type Tool struct {
	Name      string   `json:"name"`
	Models    []string `json:"models"`
	Available bool     `json:"available"`
}

// Config wires the service to the tool binaries and the output root.
type Config struct {
	DemucsPath   string
	SpleeterPath string
	SeparatedDir string
	DefaultTool  string
	DefaultModel string
}

// Service runs separations and scans their results.
type Service struct {
	cfg Config
}

// New returns a service over cfg.
func New(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// Tools reports every known splitter with its models and whether the
// binary is reachable on this host.
func (s *Service) Tools() []Tool {
	return []Tool{
		{Name: "demucs", Models: toolModels["demucs"], Available: toolAvailable(s.cfg.DemucsPath)},
		{Name: "spleeter", Models: toolModels["spleeter"], Available: toolAvailable(s.cfg.SpleeterPath)},
	}
}

// Available reports whether the named splitter can run here.
func (s *Service) Available(tool string) bool {
	switch tool {
	case "demucs":
		return toolAvailable(s.cfg.DemucsPath)
	case "spleeter":
		return toolAvailable(s.cfg.SpleeterPath)
	}
	return false
}

func toolAvailable(path string) bool {
	if path == "" {
		return false
	}
	_, err := exec.LookPath(path)
	return err == nil
}

// Progress is called as stem files appear in the output folder while a
// separation runs.
type Progress func(stem, path string)

// Request describes one separation run.
type Request struct {
	JobID      string
	SourcePath string
	Tool       string
	Model      string
	Progress   Progress
}

// Separate runs the separation tool on the source file and scans the
// produced folder into a manifest. The manifest's Mix is left for the
// caller, which knows where the uploaded original lives.
func (s *Service) Separate(ctx context.Context, req Request) (*model.Manifest, error) {
	tool := req.Tool
	if tool == "" {
		tool = s.cfg.DefaultTool
	}
	mdl := req.Model
	if mdl == "" {
		mdl = s.cfg.DefaultModel
	}
	if err := s.validate(tool, mdl); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.cfg.SeparatedDir, 0o755); err != nil {
		return nil, fmt.Errorf("separator: create output root: %w", err)
	}

	if req.Progress != nil {
		w, err := newOutputWatcher(s.cfg.SeparatedDir, req.Progress)
		if err != nil {
			logger.Warn("separation progress watcher unavailable", logger.ErrorField(err))
		} else {
			defer w.close()
		}
	}

	name, args := s.command(tool, mdl, req.SourcePath)
	logger.Info("running separation",
		logger.String("job", req.JobID),
		logger.String("tool", tool),
		logger.String("model", mdl))

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logger.Error("separation failed",
			logger.String("job", req.JobID),
			logger.String("stderr", tail(stderr.String(), 2000)),
			logger.ErrorField(err))
		return nil, fmt.Errorf("separator: %s run failed: %w", tool, err)
	}

	outDir := s.outputDir(tool, mdl, req.SourcePath, req.JobID)
	if _, err := os.Stat(outDir); err != nil {
		return nil, ErrNoOutput
	}
	m, err := Scan(req.JobID, outDir)
	if err != nil {
		return nil, err
	}
	m.Splitter = tool
	m.Model = mdl
	logger.Info("separation finished",
		logger.String("job", req.JobID),
		logger.Int("stems", len(m.Stems)))
	return m, nil
}

func (s *Service) validate(tool, mdl string) error {
	models, ok := toolModels[tool]
	if !ok {
		return ErrUnknownTool
	}
	found := false
	for _, m := range models {
		if m == mdl {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownModel
	}
	if !s.Available(tool) {
		return ErrToolUnavailable
	}
	return nil
}

// command builds the tool invocation. Both tools take the shared
// separated directory as the output root and nest their own layout
// beneath it.
func (s *Service) command(tool, mdl, src string) (string, []string) {
	if tool == "spleeter" {
		return s.cfg.SpleeterPath, []string{
			"separate", "-p", "spleeter:" + mdl, "-o", s.cfg.SeparatedDir, src,
		}
	}
	return s.cfg.DemucsPath, []string{
		src, "-n", mdl, "-o", s.cfg.SeparatedDir, "--mp3", "--mp3-bitrate", "320",
	}
}

// outputDir is where the tool left this job's stems: demucs nests by
// model then track name, spleeter by the source filename alone.
func (s *Service) outputDir(tool, mdl, src, jobID string) string {
	if tool == "spleeter" {
		base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
		return filepath.Join(s.cfg.SeparatedDir, base)
	}
	return filepath.Join(s.cfg.SeparatedDir, mdl, jobID)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
