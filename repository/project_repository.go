package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"stemdeck/model"
)

// ProjectRepository is the persistence boundary for separation jobs.
type ProjectRepository interface {
	// Upsert stores a project, replacing an existing row with the same
	// job id.
	Upsert(ctx context.Context, project *model.Project) error

	// GetByJobID returns the project or nil when none exists.
	GetByJobID(ctx context.Context, jobID string) (*model.Project, error)

	// List returns projects newest first, all of them when limit <= 0.
	List(ctx context.Context, limit int) ([]*model.Project, error)

	// Delete removes the project for a job id.
	Delete(ctx context.Context, jobID string) error
}

// gormProjectRepository is the MySQL-backed implementation.
type gormProjectRepository struct {
	db *gorm.DB
}

// NewGormProjectRepository creates the MySQL-backed repository.
func NewGormProjectRepository(db *gorm.DB) ProjectRepository {
	return &gormProjectRepository{db: db}
}

func (r *gormProjectRepository) Upsert(ctx context.Context, project *model.Project) error {
	var existing model.Project
	err := r.db.WithContext(ctx).Where("job_id = ?", project.JobID).First(&existing).Error
	switch {
	case err == nil:
		project.ID = existing.ID
		project.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(project).Error
	case err == gorm.ErrRecordNotFound:
		return r.db.WithContext(ctx).Create(project).Error
	default:
		return err
	}
}

func (r *gormProjectRepository) GetByJobID(ctx context.Context, jobID string) (*model.Project, error) {
	var project model.Project
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).First(&project).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &project, nil
}

func (r *gormProjectRepository) List(ctx context.Context, limit int) ([]*model.Project, error) {
	var projects []*model.Project
	q := r.db.WithContext(ctx).Order("updated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&projects).Error
	return projects, err
}

func (r *gormProjectRepository) Delete(ctx context.Context, jobID string) error {
	return r.db.WithContext(ctx).Where("job_id = ?", jobID).Delete(&model.Project{}).Error
}

// memoryProjectRepository keeps projects in process memory. It backs
// the server when no database is configured.
type memoryProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
	nextID   uint
}

// NewMemoryProjectRepository creates the in-memory repository.
func NewMemoryProjectRepository() ProjectRepository {
	return &memoryProjectRepository{projects: make(map[string]*model.Project)}
}

func (r *memoryProjectRepository) Upsert(ctx context.Context, project *model.Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.projects[project.JobID]; ok {
		project.ID = existing.ID
		project.CreatedAt = existing.CreatedAt
	} else {
		r.nextID++
		project.ID = r.nextID
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	clone := *project
	r.projects[project.JobID] = &clone
	return nil
}

func (r *memoryProjectRepository) GetByJobID(ctx context.Context, jobID string) (*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[jobID]
	if !ok {
		return nil, nil
	}
	clone := *p
	return &clone, nil
}

func (r *memoryProjectRepository) List(ctx context.Context, limit int) ([]*model.Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Project, 0, len(r.projects))
	for _, p := range r.projects {
		clone := *p
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryProjectRepository) Delete(ctx context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.projects, jobID)
	return nil
}
