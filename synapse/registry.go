// Package synapse holds built-in synapses that a neuron can serve without an
// external model.
//
// Built-ins register themselves in init():
//
//	synapse.MustRegister(synapse.Builtin{ ... })
package synapse

import (
	"fmt"
	"sort"
	"sync"

	"github.com/parall4x/bittensor/axon"
)

// Options are shared by every built-in.
type Options struct {
	// NetworkDim is the width of tensor-modality outputs.
	NetworkDim int
}

// Builtin is a named synapse factory.
type Builtin struct {
	Name        string
	Description string
	// Backward reports whether opened synapses implement axon.BackwardSynapse.
	Backward bool
	Open     func(Options) (axon.Synapse, error)
}

var (
	mu       sync.RWMutex
	builtins = map[string]Builtin{}
)

// Register registers a built-in.
func Register(b Builtin) error {
	if b.Name == "" {
		return fmt.Errorf("synapse: name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("synapse: %q missing Open", b.Name)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := builtins[b.Name]; exists {
		return fmt.Errorf("synapse: %q already registered", b.Name)
	}
	builtins[b.Name] = b
	return nil
}

// MustRegister is like Register but panics on error.
func MustRegister(b Builtin) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns every built-in, sorted by name.
func List() []Builtin {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Builtin, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Open constructs the named built-in.
func Open(name string, opts Options) (axon.Synapse, error) {
	mu.RLock()
	b, ok := builtins[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown synapse %q", name)
	}
	if opts.NetworkDim <= 0 {
		opts.NetworkDim = 512
	}
	return b.Open(opts)
}
