package publisher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/tturner/vts/internal/synth"
	"github.com/tturner/vts/internal/vtserrors"
)

// Registry owns the set of configured SV streams under a single
// non-reentrant lock, matching the teacher's single-manager-mutex pattern.
type Registry struct {
	mu      sync.Mutex
	streams map[string]*Instance
	newID   func() string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		streams: make(map[string]*Instance),
		newID:   func() string { return uuid.NewString() },
	}
}

// Create builds a new stream, assigns it a UUID, and adds it to the registry.
func (r *Registry) Create(cfg Config, sender FrameSender) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	inst, err := NewInstance(id, cfg, sender)
	if err != nil {
		return "", err
	}
	r.streams[id] = inst
	return id, nil
}

func (r *Registry) find(id string) (*Instance, error) {
	inst, ok := r.streams[id]
	if !ok {
		return nil, fmt.Errorf("stream %s: %w", id, vtserrors.ErrConfigInvalid)
	}
	return inst, nil
}

// Update replaces a stream's configuration.
func (r *Registry) Update(id string, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, err := r.find(id)
	if err != nil {
		return err
	}
	return inst.SetConfig(cfg)
}

// Delete stops and removes a stream.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, err := r.find(id)
	if err != nil {
		return err
	}
	inst.Stop()
	delete(r.streams, id)
	return nil
}

// Get returns one stream by id.
func (r *Registry) Get(id string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(id)
}

// List returns every stream id in a stable order.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.streams))
	for id := range r.streams {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Start marks one stream running.
func (r *Registry) Start(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, err := r.find(id)
	if err != nil {
		return err
	}
	inst.Start()
	return nil
}

// Stop marks one stream idle.
func (r *Registry) Stop(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, err := r.find(id)
	if err != nil {
		return err
	}
	inst.Stop()
	return nil
}

// StartAll starts every stream.
func (r *Registry) StartAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.streams {
		inst.Start()
	}
}

// StopAll stops every stream.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.streams {
		inst.Stop()
	}
}

// UpdatePhasors pushes new fundamental phasors to one stream.
func (r *Registry) UpdatePhasors(id string, phasors []synth.Phasor) error {
	r.mu.Lock()
	inst, err := r.find(id)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	inst.SetPhasors(phasors)
	return nil
}

// Phasors returns a copy of one stream's current fundamental phasors.
func (r *Registry) Phasors(id string) ([]synth.Phasor, error) {
	r.mu.Lock()
	inst, err := r.find(id)
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return inst.Phasors(), nil
}

// UpdateHarmonics pushes new harmonics for one channel of one stream.
func (r *Registry) UpdateHarmonics(id string, channel int, harmonics []synth.Harmonic) error {
	r.mu.Lock()
	inst, err := r.find(id)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return inst.SetHarmonics(channel, harmonics)
}

// TickAll ticks every running stream once. Errors are collected, not
// propagated individually, matching §7's tick-error-counting policy; the
// caller is responsible for per-frame error counters if it wants them.
func (r *Registry) TickAll() []error {
	r.mu.Lock()
	instances := make([]*Instance, 0, len(r.streams))
	for _, inst := range r.streams {
		instances = append(instances, inst)
	}
	r.mu.Unlock()

	var errs []error
	for _, inst := range instances {
		if err := inst.Tick(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
