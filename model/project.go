package model

import (
	"encoding/json"
	"time"
)

// Project is a persisted separation job: the source recording together
// with the manifest of its produced stems.
type Project struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	JobID        string    `gorm:"uniqueIndex;size:191" json:"jobId"`
	SourceFile   string    `gorm:"size:512" json:"sourceFile"`
	Splitter     string    `gorm:"size:32" json:"splitter"`
	Model        string    `gorm:"size:64" json:"model"`
	OutputDir    string    `gorm:"size:512" json:"outputDir"`
	ManifestJSON string    `gorm:"type:longtext" json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Manifest decodes the stored manifest blob.
func (p *Project) Manifest() (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal([]byte(p.ManifestJSON), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// SetManifest stores the manifest blob and mirrors its headline fields
// onto the row for querying.
func (p *Project) SetManifest(m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	p.ManifestJSON = string(data)
	p.JobID = m.JobID
	p.Splitter = m.Splitter
	p.Model = m.Model
	p.OutputDir = m.OutputDir
	return nil
}

// PlaybackSnapshot mirrors the engine's transport state for external
// observers (cached in Redis on every state change).
type PlaybackSnapshot struct {
	JobID     string  `json:"jobId"`
	Playing   bool    `json:"playing"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	UpdatedAt int64   `json:"updatedAt"`
}
