package separator

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"stemdeck/core/player"
	"stemdeck/logger"
	"stemdeck/model"
)

// SplitRunner decomposes a produced stem into child parts with a local
// command-line tool. Each eligible parent stem maps to a command
// template; "{in}" and "{out}" are replaced with the stem file and the
// child output folder. After the tool exits, the output folder is
// scanned with the part whitelists, exactly like a folder scan.
type SplitRunner struct {
	separatedDir string
	tools        map[string]string
}

// NewSplitRunner returns a runner over the separated directory. tools
// maps parent stem names ("vocals", "drums") to command templates.
func NewSplitRunner(separatedDir string, tools map[string]string) *SplitRunner {
	return &SplitRunner{separatedDir: separatedDir, tools: tools}
}

// Split runs the configured tool for the parent stem and returns the
// child parts it produced. Implements the engine's split backend.
func (r *SplitRunner) Split(ctx context.Context, jobID, trackName string) ([]model.ChildStem, error) {
	tmpl := r.tools[trackName]
	if tmpl == "" {
		return nil, &player.SplitError{
			Message: fmt.Sprintf("no split tool configured for %s", trackName),
			Note:    "set SPLIT_TOOL_" + strings.ToUpper(trackName) + " to a command template",
		}
	}

	stemPath, songFolder, err := findStem(r.separatedDir, jobID, trackName)
	if err != nil {
		return nil, &player.SplitError{Message: fmt.Sprintf("%s stem not found", trackName)}
	}
	outDir := filepath.Join(songFolder, trackName)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("separator: create split folder: %w", err)
	}

	name, args := splitCommand(tmpl, stemPath, outDir)
	logger.Info("running stem split",
		logger.String("job", jobID),
		logger.String("track", trackName),
		logger.String("tool", name))

	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &player.SplitError{
			Message: fmt.Sprintf("%s split failed: %v", trackName, err),
			Note:    tail(strings.TrimSpace(stderr.String()), 500),
		}
	}

	children := scanChildren(jobID, trackName, outDir)
	if len(children) == 0 {
		return nil, &player.SplitError{
			Message: fmt.Sprintf("no %s parts were created", trackName),
			Note:    "the split tool finished but produced no recognized part files",
		}
	}
	return children, nil
}

// splitCommand expands a template into an argv. Templates are split on
// whitespace, so the stem and output paths must not contain spaces.
func splitCommand(tmpl, in, out string) (string, []string) {
	expanded := strings.ReplaceAll(tmpl, "{in}", in)
	expanded = strings.ReplaceAll(expanded, "{out}", out)
	fields := strings.Fields(expanded)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[0], fields[1:]
}

// findStem locates a job's parent stem file. The model folders are
// probed first; failing that, the separated tree is walked for any
// folder of this job holding the stem.
func findStem(separatedDir, jobID, stem string) (path, folder string, err error) {
	exts := []string{".mp3", ".wav", ".flac", ".m4a", ".ogg"}
	for _, modelFolder := range []string{"htdemucs_6s", "htdemucs_ft", "htdemucs", "spleeter"} {
		dir := filepath.Join(separatedDir, modelFolder, jobID)
		for _, ext := range exts {
			p := filepath.Join(dir, stem+ext)
			if _, statErr := os.Stat(p); statErr == nil {
				return p, dir, nil
			}
		}
	}
	// Spleeter puts the job folder directly under the root.
	dir := filepath.Join(separatedDir, jobID)
	for _, ext := range exts {
		p := filepath.Join(dir, stem+ext)
		if _, statErr := os.Stat(p); statErr == nil {
			return p, dir, nil
		}
	}

	walkErr := filepath.WalkDir(separatedDir, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil || d.IsDir() {
			return nil
		}
		if !strings.Contains(filepath.Dir(p), jobID) {
			return nil
		}
		base := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		if base == stem && isStemFile(d.Name()) {
			path = p
			folder = filepath.Dir(p)
			return filepath.SkipAll
		}
		return nil
	})
	if walkErr == nil && path != "" {
		return path, folder, nil
	}
	return "", "", fmt.Errorf("separator: %s stem for job %s not found", stem, jobID)
}
