package web

import (
	"sync"

	"folionotify/internal/config"
	"folionotify/internal/notify"
)

// Registry holds the config-declared portfolio projects plus their runtime
// publish/feature toggles. Config order is preserved for listings.
type Registry struct {
	mu       sync.Mutex
	order    []string
	projects map[string]notify.Project
}

func NewRegistry(decls []config.ProjectConfig) *Registry {
	r := &Registry{projects: map[string]notify.Project{}}
	for _, d := range decls {
		if d.ID == "" {
			continue
		}
		if _, dup := r.projects[d.ID]; dup {
			continue
		}
		r.order = append(r.order, d.ID)
		r.projects[d.ID] = notify.Project{
			ID:        d.ID,
			Title:     d.Title,
			Published: d.Published,
			Featured:  d.Featured,
		}
	}
	return r
}

// List returns every project in declaration order.
func (r *Registry) List() []notify.Project {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Project, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.projects[id])
	}
	return out
}

// Published returns only the publicly visible projects.
func (r *Registry) Published() []notify.Project {
	all := r.List()
	out := make([]notify.Project, 0, len(all))
	for _, p := range all {
		if p.Published {
			out = append(out, p)
		}
	}
	return out
}

func (r *Registry) Get(id string) (notify.Project, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return notify.Project{}, notify.ErrNotFound
	}
	return p, nil
}

// Apply updates a project's toggles. Nil pointers leave the field alone.
// Returns the updated project together with its old and new status labels.
func (r *Registry) Apply(id string, published, featured *bool) (notify.Project, string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.projects[id]
	if !ok {
		return notify.Project{}, "", "", notify.ErrNotFound
	}
	oldStatus := ProjectStatus(p)
	if published != nil {
		p.Published = *published
	}
	if featured != nil {
		p.Featured = *featured
	}
	r.projects[id] = p
	return p, oldStatus, ProjectStatus(p), nil
}

// Counts reports published and total project counts for the daily summary.
func (r *Registry) Counts() (published, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.projects {
		if p.Published {
			published++
		}
	}
	return published, len(r.projects)
}

// ProjectStatus labels a project for status-change notifications. Featured
// implies published on the dashboard, so it wins.
func ProjectStatus(p notify.Project) string {
	switch {
	case p.Featured && p.Published:
		return "featured"
	case p.Published:
		return "published"
	default:
		return "unpublished"
	}
}
