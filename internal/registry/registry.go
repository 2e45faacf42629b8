package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"bus-timetable-portal/internal/models"
)

var (
	// ErrRouteNotFound means no registered route matches the id or key.
	ErrRouteNotFound = errors.New("route not found")
	// ErrDuplicateRouteID means a route with the same id already exists.
	ErrDuplicateRouteID = errors.New("duplicate route id")
)

// Registry persists the whole route collection as one JSON file. Every
// mutation is a read-modify-write of the full file: simple, inspectable,
// and adequate for the handful of routes a deployment tracks. The mutex
// serializes writers inside this process only; concurrent processes are
// last-write-wins.
type Registry struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Registry {
	return &Registry{path: path}
}

// LoadRoutes reads the entire collection. A missing file is a fresh
// install and yields an empty collection, not an error.
func (r *Registry) LoadRoutes() ([]models.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

// SaveRoutes overwrites the file with the given collection.
func (r *Registry) SaveRoutes(routes []models.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked(routes)
}

func (r *Registry) loadLocked() ([]models.Route, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Route{}, nil
		}
		return nil, fmt.Errorf("failed to read route registry %s: %w", r.path, err)
	}
	var routes []models.Route
	if err := json.Unmarshal(data, &routes); err != nil {
		return nil, fmt.Errorf("failed to parse route registry %s: %w", r.path, err)
	}
	return routes, nil
}

func (r *Registry) saveLocked(routes []models.Route) error {
	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create registry directory %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(routes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize routes: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write route registry %s: %w", r.path, err)
	}
	return nil
}

// Create appends a new route. An existing route with the same id rejects
// the call and leaves the file untouched.
func (r *Registry) Create(route models.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	routes, err := r.loadLocked()
	if err != nil {
		return err
	}
	for _, existing := range routes {
		if existing.ID == route.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRouteID, route.ID)
		}
	}
	routes = append(routes, route)
	if err := r.saveLocked(routes); err != nil {
		return err
	}
	log.Printf("[Registry] Registered route %s (%d total)", route.ID, len(routes))
	return nil
}

// Update replaces the stored route with the same id.
func (r *Registry) Update(route models.Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	routes, err := r.loadLocked()
	if err != nil {
		return err
	}
	for i, existing := range routes {
		if existing.ID == route.ID {
			routes[i] = route
			return r.saveLocked(routes)
		}
	}
	return fmt.Errorf("%w: %s", ErrRouteNotFound, route.ID)
}

// Delete removes the route with the given id.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	routes, err := r.loadLocked()
	if err != nil {
		return err
	}
	for i, existing := range routes {
		if existing.ID == id {
			routes = append(routes[:i], routes[i+1:]...)
			if err := r.saveLocked(routes); err != nil {
				return err
			}
			log.Printf("[Registry] Deleted route %s (%d remaining)", id, len(routes))
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrRouteNotFound, id)
}

// FindByID returns a copy of the route with the given id.
func (r *Registry) FindByID(id string) (*models.Route, error) {
	routes, err := r.LoadRoutes()
	if err != nil {
		return nil, err
	}
	for i := range routes {
		if routes[i].ID == id {
			route := routes[i]
			return &route, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
}

// FindByKey looks a route up by the display path's composite key.
func (r *Registry) FindByKey(line string, direction models.Direction, slug string) (*models.Route, error) {
	routes, err := r.LoadRoutes()
	if err != nil {
		return nil, err
	}
	for i := range routes {
		if routes[i].LineNumber == line && routes[i].Direction == direction && routes[i].StationSlug == slug {
			route := routes[i]
			return &route, nil
		}
	}
	return nil, fmt.Errorf("%w: %s-%s-%s", ErrRouteNotFound, line, slug, direction)
}

// Count returns the number of registered routes.
func (r *Registry) Count() (int, error) {
	routes, err := r.LoadRoutes()
	if err != nil {
		return 0, err
	}
	return len(routes), nil
}
