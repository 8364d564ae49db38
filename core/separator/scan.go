package separator

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stemdeck/model"
)

// standardStems are the stem names the tools produce, in display order.
var standardStems = []string{
	"vocals", "drums", "bass", "guitar", "piano", "other", "accompaniment",
}

// validParts whitelists recognizable child part names per parent stem.
// A file counts when its name contains any of the parts.
var validParts = map[string][]string{
	"drums": {
		"kick", "snare", "hihat", "hi-hat", "hi_hat", "cymbal", "cymbals",
		"tom", "toms", "overhead", "overheads", "room", "crash", "ride",
	},
	"vocals": {"lead", "backing", "backing_vocals", "lead_vocals"},
}

var stemExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true,
	".ogg": true, ".aiff": true, ".aif": true,
}

func isStemFile(name string) bool {
	return stemExtensions[strings.ToLower(filepath.Ext(name))]
}

// StemURL is the canonical resource path for a job's stem.
func StemURL(jobID, stem string) string {
	return "/api/stems/" + jobID + "/" + stem
}

// ChildURL is the canonical resource path for a split child.
func ChildURL(jobID, parent, child string) string {
	return "/api/stems/" + jobID + "/" + parent + "/" + child
}

// Scan rebuilds a manifest from a finished output folder: top-level
// audio files become stems (a file named like the mix becomes the mix),
// and vocals/ and drums/ subfolders become child splits filtered by the
// part whitelists. Stems come back in display order.
func Scan(jobID, dir string) (*model.Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	m := &model.Manifest{
		Status:    "success",
		JobID:     jobID,
		OutputDir: dir,
	}
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !isStemFile(e.Name()) {
			continue
		}
		lower := strings.ToLower(e.Name())
		full := filepath.Join(dir, e.Name())
		if strings.Contains(lower, "mix") || strings.Contains(lower, "original") || strings.Contains(lower, "mixture") {
			m.Mix = &model.Stem{Name: "mix", URL: StemURL(jobID, "mix"), Path: full}
			continue
		}
		for _, stem := range standardStems {
			if strings.HasPrefix(lower, stem) {
				if !seen[stem] {
					seen[stem] = true
					m.Stems = append(m.Stems, model.Stem{
						Name: stem,
						URL:  StemURL(jobID, stem),
						Path: full,
					})
				}
				break
			}
		}
	}
	sort.SliceStable(m.Stems, func(i, j int) bool {
		return stemRank(m.Stems[i].Name) < stemRank(m.Stems[j].Name)
	})

	for parent := range validParts {
		children := scanChildren(jobID, parent, filepath.Join(dir, parent))
		if len(children) > 0 {
			m.AddChildren(parent, children)
		}
	}
	return m, nil
}

// scanChildren lists the recognized child parts in a split subfolder.
// A missing folder is simply no children.
func scanChildren(jobID, parent, dir string) []model.ChildStem {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var children []model.ChildStem
	for _, e := range entries {
		if e.IsDir() || !isStemFile(e.Name()) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !validPart(parent, name) {
			continue
		}
		children = append(children, model.ChildStem{
			Name:   name,
			URL:    ChildURL(jobID, parent, name),
			Path:   filepath.Join(dir, e.Name()),
			Parent: parent,
		})
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name < children[j].Name })
	return children
}

func validPart(parent, name string) bool {
	lower := strings.ToLower(name)
	for _, part := range validParts[parent] {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

func stemRank(name string) int {
	for i, s := range standardStems {
		if s == name {
			return i
		}
	}
	return len(standardStems)
}
