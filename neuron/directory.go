package neuron

import (
	"sort"
	"strings"
	"sync"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

// Directory is the in-memory view of registered peers, keyed by public key.
// It is safe for concurrent use and satisfies auth.Registry.
type Directory struct {
	scheme keys.Scheme

	mu    sync.RWMutex
	byKey map[string]*wire.Neuron
	byUID map[int64]string
}

func NewDirectory(scheme keys.Scheme) *Directory {
	if scheme == "" {
		scheme = keys.Ed25519
	}
	return &Directory{
		scheme: scheme,
		byKey:  make(map[string]*wire.Neuron),
		byUID:  make(map[int64]string),
	}
}

// LoadStatic builds a directory from a fixed peer list.
func LoadStatic(scheme keys.Scheme, peers []*wire.Neuron) (*Directory, error) {
	d := NewDirectory(scheme)
	for _, p := range peers {
		if err := d.Put(p); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(k), "0x"))
}

// Put validates n and stores a copy. An existing identity may move to a new
// address or uid; a uid already held by another identity is rejected.
func (d *Directory) Put(n *wire.Neuron) error {
	if err := Validate(n, d.scheme); err != nil {
		return err
	}
	cp := *n
	cp.PublicKey = normalizeKey(n.PublicKey)

	d.mu.Lock()
	defer d.mu.Unlock()
	if owner, ok := d.byUID[cp.UID]; ok && owner != cp.PublicKey {
		return wire.Errorf(wire.InvalidRequest, "uid %d is already held by another identity", cp.UID)
	}
	if prev, ok := d.byKey[cp.PublicKey]; ok && prev.UID != cp.UID {
		delete(d.byUID, prev.UID)
	}
	d.byKey[cp.PublicKey] = &cp
	d.byUID[cp.UID] = cp.PublicKey
	return nil
}

// Remove drops the identity. It reports whether it was present.
func (d *Directory) Remove(publicKey string) bool {
	key := normalizeKey(publicKey)
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.byKey[key]
	if !ok {
		return false
	}
	delete(d.byKey, key)
	delete(d.byUID, n.UID)
	return true
}

// ByPublicKey returns a copy of the record for publicKey.
func (d *Directory) ByPublicKey(publicKey string) (*wire.Neuron, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.byKey[normalizeKey(publicKey)]
	if !ok {
		return nil, false
	}
	cp := *n
	return &cp, true
}

func (d *Directory) ByUID(uid int64) (*wire.Neuron, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	key, ok := d.byUID[uid]
	if !ok {
		return nil, false
	}
	cp := *d.byKey[key]
	return &cp, true
}

// Known reports whether publicKey is registered.
func (d *Directory) Known(publicKey string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.byKey[normalizeKey(publicKey)]
	return ok
}

// List returns copies of every record ordered by uid.
func (d *Directory) List() []*wire.Neuron {
	d.mu.RLock()
	out := make([]*wire.Neuron, 0, len(d.byKey))
	for _, n := range d.byKey {
		cp := *n
		out = append(out, &cp)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byKey)
}
