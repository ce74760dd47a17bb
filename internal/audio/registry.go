package audio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Observer receives device hot-plug notifications. Observers are held by
// reference only; unsubscribing (or never subscribing) means the registry
// cannot keep a session alive.
type Observer interface {
	OnDevicesChanged(inputs []Device)
}

// Registry enumerates devices through a Host and publishes add/remove
// notifications. The host exposes no change callback, so the registry
// polls and diffs the input set.
type Registry struct {
	host Host
	log  zerolog.Logger

	mu        sync.Mutex
	observers []Observer
	known     map[string]Device
	stop      chan struct{}
	done      chan struct{}
}

// NewRegistry wraps a host. Call Start to begin hot-plug polling.
func NewRegistry(host Host, log zerolog.Logger) *Registry {
	return &Registry{
		host:  host,
		log:   log,
		known: make(map[string]Device),
	}
}

// ListInputs returns the available external input devices. An empty list
// implies the built-in microphone, selected with DefaultInputID.
func (r *Registry) ListInputs() ([]Device, error) {
	all, err := r.host.Inputs()
	if err != nil {
		return nil, err
	}
	external := make([]Device, 0, len(all))
	for _, d := range all {
		if d.Kind.External() {
			external = append(external, d)
		}
	}
	return external, nil
}

// ListOutputs returns all available output devices.
func (r *Registry) ListOutputs() ([]Device, error) {
	return r.host.Outputs()
}

// GetInputByID looks up an input device; nil selects the default mic.
func (r *Registry) GetInputByID(id string) (*Device, error) {
	if id == DefaultInputID {
		return nil, nil
	}
	all, err := r.host.Inputs()
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.ID == id {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

// Subscribe registers an observer for hot-plug notifications.
func (r *Registry) Subscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.observers {
		if existing == o {
			return
		}
	}
	r.observers = append(r.observers, o)
}

// Unsubscribe removes an observer.
func (r *Registry) Unsubscribe(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.observers {
		if existing == o {
			r.observers = append(r.observers[:i], r.observers[i+1:]...)
			return
		}
	}
}

// Start launches the hot-plug watcher at the given poll interval.
func (r *Registry) Start(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	if inputs, err := r.host.Inputs(); err == nil {
		for _, d := range inputs {
			r.known[d.ID] = d
		}
	}
	go r.watch(r.stop, r.done, interval)
}

// Stop halts the watcher.
func (r *Registry) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (r *Registry) watch(stop <-chan struct{}, done chan<- struct{}, interval time.Duration) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Poll()
		}
	}
}

// Poll diffs the current input set against the last observation and
// notifies observers when devices appeared or disappeared.
func (r *Registry) Poll() {
	inputs, err := r.host.Inputs()
	if err != nil {
		r.log.Error().Err(err).Msg("device enumeration failed")
		return
	}

	current := make(map[string]Device, len(inputs))
	for _, d := range inputs {
		current[d.ID] = d
	}

	r.mu.Lock()
	changed := len(current) != len(r.known)
	if !changed {
		for id := range current {
			if _, ok := r.known[id]; !ok {
				changed = true
				break
			}
		}
	}
	if changed {
		r.known = current
	}
	observers := append([]Observer(nil), r.observers...)
	r.mu.Unlock()

	if !changed {
		return
	}

	r.log.Debug().Int("inputs", len(inputs)).Msg("audio devices changed")
	external := make([]Device, 0, len(inputs))
	for _, d := range inputs {
		if d.Kind.External() {
			external = append(external, d)
		}
	}
	for _, o := range observers {
		o.OnDevicesChanged(external)
	}
}
