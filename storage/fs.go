// Package storage owns the on-disk layout of jobs: uploaded source
// mixes under the upload directory and separation output trees under
// the separated directory, plus an optional MinIO mirror for produced
// stems.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrStemNotFound reports a stem path that resolves to nothing, either
// because the file is absent or the path was rejected.
var ErrStemNotFound = errors.New("storage: stem not found")

var allowedExtensions = map[string]bool{
	".wav": true, ".mp3": true, ".aiff": true, ".aif": true,
	".m4a": true, ".flac": true, ".ogg": true,
}

// stemLookupExts are the extensions probed when resolving a stem name
// to a file.
var stemLookupExts = []string{".mp3", ".wav", ".flac", ".m4a", ".ogg"}

// modelFolders are the known layout roots the separation tools nest
// job folders under.
var modelFolders = []string{"htdemucs_6s", "htdemucs_ft", "htdemucs", "spleeter"}

// AllowedExtension reports whether a filename carries an uploadable
// audio extension.
func AllowedExtension(name string) bool {
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// AllowedExtensions lists the uploadable extensions without dots,
// sorted, for error messages.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, strings.TrimPrefix(ext, "."))
	}
	sort.Strings(out)
	return out
}

// SanitizeJobID derives a job identifier from an uploaded filename:
// the extension is dropped and anything outside letters, digits, dot,
// dash and underscore becomes an underscore.
func SanitizeJobID(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	id := strings.Trim(b.String(), "._")
	if id == "" {
		id = "job"
	}
	return id
}

// Store is the canonical filesystem store for job files.
type Store struct {
	UploadDir    string
	SeparatedDir string
}

// NewStore ensures both directories exist and returns the store.
func NewStore(uploadDir, separatedDir string) (*Store, error) {
	for _, dir := range []string{uploadDir, separatedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return &Store{UploadDir: uploadDir, SeparatedDir: separatedDir}, nil
}

// SaveSource stores an uploaded mix as {jobID}{ext} in the upload
// directory and returns the path.
func (s *Store) SaveSource(jobID, ext string, r io.Reader) (string, error) {
	ext = strings.ToLower(ext)
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("storage: extension %q not allowed", ext)
	}
	if !safeComponent(jobID) {
		return "", fmt.Errorf("storage: bad job id %q", jobID)
	}
	path := filepath.Join(s.UploadDir, jobID+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// SourcePath finds the uploaded original for a job, whatever its
// extension.
func (s *Store) SourcePath(jobID string) (string, bool) {
	entries, err := os.ReadDir(s.UploadDir)
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.TrimSuffix(name, filepath.Ext(name)) == jobID && AllowedExtension(name) {
			return filepath.Join(s.UploadDir, name), true
		}
	}
	return "", false
}

// ResolveStem maps a stem path from a URL, possibly nested like
// "vocals/lead", to its file on disk. The literal stem "mix" resolves
// to the uploaded original, falling back to a mixture file in the
// output folder. Components that would escape the store are rejected.
func (s *Store) ResolveStem(jobID, stemPath string) (string, error) {
	if !safeComponent(jobID) || !safeRelPath(stemPath) {
		return "", ErrStemNotFound
	}
	parts := strings.Split(strings.Trim(stemPath, "/"), "/")
	stem := parts[len(parts)-1]
	parent := ""
	if len(parts) > 1 {
		parent = parts[0]
	}

	if stem == "mix" && parent == "" {
		if p, ok := s.SourcePath(jobID); ok {
			return p, nil
		}
		for _, mf := range modelFolders {
			dir := filepath.Join(s.SeparatedDir, mf, jobID)
			for _, cand := range []string{"mixture.mp3", "mix.wav", "mix.flac"} {
				p := filepath.Join(dir, cand)
				if fileExists(p) {
					return p, nil
				}
			}
		}
		return "", ErrStemNotFound
	}

	rel := stem
	if parent != "" {
		rel = filepath.Join(parent, stem)
	}
	if p, ok := s.findInJobFolders(jobID, rel); ok {
		return p, nil
	}
	return "", ErrStemNotFound
}

// findInJobFolders probes the known layouts first, then walks the
// separated tree for any folder of this job holding the stem.
func (s *Store) findInJobFolders(jobID, rel string) (string, bool) {
	dirs := make([]string, 0, len(modelFolders)+1)
	for _, mf := range modelFolders {
		dirs = append(dirs, filepath.Join(s.SeparatedDir, mf, jobID))
	}
	dirs = append(dirs, filepath.Join(s.SeparatedDir, jobID))
	for _, dir := range dirs {
		for _, ext := range stemLookupExts {
			p := filepath.Join(dir, rel+ext)
			if fileExists(p) {
				return p, true
			}
		}
	}

	var found string
	filepath.WalkDir(s.SeparatedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() || filepath.Base(p) != jobID {
			return nil
		}
		for _, ext := range stemLookupExts {
			cand := filepath.Join(p, rel+ext)
			if fileExists(cand) {
				found = cand
				return filepath.SkipAll
			}
		}
		return nil
	})
	return found, found != ""
}

// JobFolder locates a job's primary output folder.
func (s *Store) JobFolder(jobID string) (string, bool) {
	if !safeComponent(jobID) {
		return "", false
	}
	for _, mf := range modelFolders {
		dir := filepath.Join(s.SeparatedDir, mf, jobID)
		if dirExists(dir) {
			return dir, true
		}
	}
	dir := filepath.Join(s.SeparatedDir, jobID)
	if dirExists(dir) {
		return dir, true
	}

	var found string
	filepath.WalkDir(s.SeparatedDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if filepath.Base(p) == jobID {
			found = p
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// SaveStem writes an extra stem file into a job's output folder under
// a sanitized name and returns the stem name and path.
func (s *Store) SaveStem(jobID, filename string, r io.Reader) (name, path string, err error) {
	folder, ok := s.JobFolder(jobID)
	if !ok {
		return "", "", fmt.Errorf("storage: job %q has no output folder", jobID)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedExtensions[ext] {
		return "", "", fmt.Errorf("storage: extension %q not allowed", ext)
	}
	name = SanitizeJobID(filename)
	path = filepath.Join(folder, name+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", "", err
	}
	return name, path, nil
}

// RemoveJob deletes a job's uploaded source and every output folder.
func (s *Store) RemoveJob(jobID string) error {
	if !safeComponent(jobID) {
		return fmt.Errorf("storage: bad job id %q", jobID)
	}
	var firstErr error
	if p, ok := s.SourcePath(jobID); ok {
		if err := os.Remove(p); err != nil {
			firstErr = err
		}
	}
	for _, mf := range modelFolders {
		if err := os.RemoveAll(filepath.Join(s.SeparatedDir, mf, jobID)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := os.RemoveAll(filepath.Join(s.SeparatedDir, jobID)); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Folder is one directory candidate when browsing for projects.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// ListFolders lists base's subdirectories, most recently modified
// first.
func ListFolders(base string) ([]Folder, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, err
	}
	type stamped struct {
		folder Folder
		mod    int64
	}
	var all []stamped
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		all = append(all, stamped{
			folder: Folder{Name: e.Name(), Path: filepath.Join(base, e.Name())},
			mod:    info.ModTime().UnixNano(),
		})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].mod > all[j].mod })
	folders := make([]Folder, len(all))
	for i, s := range all {
		folders[i] = s.folder
	}
	return folders, nil
}

func safeComponent(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

func safeRelPath(p string) bool {
	for _, part := range strings.Split(strings.Trim(p, "/"), "/") {
		if !safeComponent(part) {
			return false
		}
	}
	return true
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
