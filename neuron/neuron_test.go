package neuron

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

func testKey(t *testing.T, b byte) string {
	t.Helper()
	kp, err := keys.FromSeed(keys.Ed25519, bytes.Repeat([]byte{b}, keys.SeedSize))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	return keys.PublicKeyHex(kp)
}

func testNeuron(t *testing.T, b byte, uid int64) *wire.Neuron {
	return &wire.Neuron{
		Version:   wire.ProtocolVersion,
		PublicKey: testKey(t, b),
		Address:   "127.0.0.1",
		Port:      8091,
		IPType:    wire.IPv4,
		Modality:  wire.TEXT,
		UID:       uid,
	}
}

func TestValidate(t *testing.T) {
	ok := testNeuron(t, 1, 0)
	if err := Validate(ok, keys.Ed25519); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cases := map[string]func(n *wire.Neuron){
		"short key":      func(n *wire.Neuron) { n.PublicKey = n.PublicKey[:10] },
		"not hex":        func(n *wire.Neuron) { n.PublicKey = strings.Repeat("zz", 32) },
		"bad address":    func(n *wire.Neuron) { n.Address = "localhost" },
		"ipv6 as ipv4":   func(n *wire.Neuron) { n.Address = "::1" },
		"unknown iptype": func(n *wire.Neuron) { n.IPType = 5 },
		"port zero":      func(n *wire.Neuron) { n.Port = 0 },
		"port too big":   func(n *wire.Neuron) { n.Port = 70000 },
		"negative uid":   func(n *wire.Neuron) { n.UID = -1 },
		"bad modality":   func(n *wire.Neuron) { n.Modality = 9 },
	}
	for name, mutate := range cases {
		n := *ok
		mutate(&n)
		if err := Validate(&n, keys.Ed25519); !wire.IsCode(err, wire.InvalidRequest) {
			t.Fatalf("%s: expected InvalidRequest, got %v", name, err)
		}
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	n := testNeuron(t, 1, 3)
	n.PublicKey = "0x" + strings.ToUpper(n.PublicKey)
	before := *n
	_ = Validate(n, keys.Ed25519)
	if *n != before {
		t.Fatalf("Validate mutated the record")
	}
}

func TestEndpoint(t *testing.T) {
	n := testNeuron(t, 1, 0)
	if got := Endpoint(n); got != "127.0.0.1:8091" {
		t.Fatalf("Endpoint = %q", got)
	}
	n.Address, n.IPType = "::1", wire.IPv6
	if got := Endpoint(n); got != "[::1]:8091" {
		t.Fatalf("Endpoint = %q", got)
	}
}

func TestMultiaddr_RoundTrip(t *testing.T) {
	for _, n := range []*wire.Neuron{
		{Address: "10.0.0.7", Port: 9000, IPType: wire.IPv4},
		{Address: "2001:db8::1", Port: 443, IPType: wire.IPv6},
	} {
		m, err := Multiaddr(n)
		if err != nil {
			t.Fatalf("Multiaddr: %v", err)
		}
		addr, port, ipType, err := FromMultiaddr(m.String())
		if err != nil {
			t.Fatalf("FromMultiaddr(%s): %v", m, err)
		}
		if addr != n.Address || port != n.Port || ipType != n.IPType {
			t.Fatalf("round trip mismatch: %s %d %d", addr, port, ipType)
		}
	}
	if _, _, _, err := FromMultiaddr("/ip4/1.2.3.4/udp/53"); err == nil {
		t.Fatalf("expected error for a multiaddr without tcp")
	}
}

func TestID_StableAndDistinct(t *testing.T) {
	a1, err := ID(keys.Ed25519, testKey(t, 1))
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	a2, err := ID(keys.Ed25519, "0x"+testKey(t, 1))
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	b, err := ID(keys.Ed25519, testKey(t, 2))
	if err != nil {
		t.Fatalf("ID: %v", err)
	}
	if !a1.Equals(a2) || a1.Equals(b) {
		t.Fatalf("unexpected ids %s %s %s", a1, a2, b)
	}
	if !strings.HasPrefix(a1.String(), "b") {
		t.Fatalf("expected a base32 CIDv1, got %s", a1)
	}
}

func TestDirectory_PutAndLookup(t *testing.T) {
	d := NewDirectory(keys.Ed25519)
	a := testNeuron(t, 1, 5)
	b := testNeuron(t, 2, 1)
	for _, n := range []*wire.Neuron{a, b} {
		if err := d.Put(n); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if !d.Known("0x" + strings.ToUpper(a.PublicKey)) {
		t.Fatalf("expected key lookup to ignore case and 0x prefix")
	}
	got, ok := d.ByUID(5)
	if !ok || got.PublicKey != a.PublicKey {
		t.Fatalf("ByUID(5) = %+v, %v", got, ok)
	}
	list := d.List()
	if len(list) != 2 || list[0].UID != 1 || list[1].UID != 5 {
		t.Fatalf("List not sorted by uid: %+v", list)
	}

	// Re-homing keeps the identity and frees the old uid.
	moved := *a
	moved.Address, moved.Port, moved.UID = "10.0.0.2", 9999, 7
	if err := d.Put(&moved); err != nil {
		t.Fatalf("Put(moved): %v", err)
	}
	if _, ok := d.ByUID(5); ok {
		t.Fatalf("old uid should be released")
	}
	if n, _ := d.ByPublicKey(a.PublicKey); n.Port != 9999 {
		t.Fatalf("expected re-homed port, got %d", n.Port)
	}

	// A second identity cannot take an occupied uid.
	thief := testNeuron(t, 3, 1)
	if err := d.Put(thief); !wire.IsCode(err, wire.InvalidRequest) {
		t.Fatalf("expected InvalidRequest, got %v", err)
	}

	if !d.Remove(b.PublicKey) || d.Remove(b.PublicKey) {
		t.Fatalf("Remove should succeed exactly once")
	}
	if d.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", d.Len())
	}
}

func TestDirectory_ReturnsCopies(t *testing.T) {
	d := NewDirectory(keys.Ed25519)
	n := testNeuron(t, 1, 0)
	if err := d.Put(n); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, _ := d.ByPublicKey(n.PublicKey)
	got.Port = 1
	again, _ := d.ByPublicKey(n.PublicKey)
	if again.Port != 8091 {
		t.Fatalf("directory entry was mutated through a returned copy")
	}
}

func TestDirectory_Concurrent(t *testing.T) {
	d := NewDirectory(keys.Ed25519)
	neurons := make([]*wire.Neuron, 16)
	for i := range neurons {
		neurons[i] = testNeuron(t, byte(i+1), int64(i))
	}
	var wg sync.WaitGroup
	for _, n := range neurons {
		wg.Add(1)
		go func(n *wire.Neuron) {
			defer wg.Done()
			if err := d.Put(n); err != nil {
				t.Errorf("Put: %v", err)
			}
			_ = d.Known(n.PublicKey)
			_ = d.List()
		}(n)
	}
	wg.Wait()
	if d.Len() != 16 {
		t.Fatalf("expected 16 entries, got %d", d.Len())
	}
}

func TestLoadStatic_RejectsInvalid(t *testing.T) {
	bad := testNeuron(t, 1, 0)
	bad.Port = 0
	if _, err := LoadStatic(keys.Ed25519, []*wire.Neuron{bad}); err == nil {
		t.Fatalf("expected error")
	}
}
