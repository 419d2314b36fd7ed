package auth

import (
	"bytes"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

func testKeypair(t *testing.T, b byte) keys.Keypair {
	t.Helper()
	kp, err := keys.FromSeed(keys.Ed25519, bytes.Repeat([]byte{b}, keys.SeedSize))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	return kp
}

type staticRegistry map[string]bool

func (r staticRegistry) Known(k string) bool { return r[k] }

func mustSign(t *testing.T, kp keys.Keypair, n uint64, hashAlg string) []byte {
	t.Helper()
	sig, err := Sign(kp, n, hashAlg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return sig
}

func TestVerify_AcceptsIncreasingNounces(t *testing.T) {
	kp := testKeypair(t, 1)
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, nil)
	pub := keys.PublicKeyHex(kp)
	for _, n := range []uint64{1, 2, 10, 11} {
		if err := a.Verify(pub, n, mustSign(t, kp, n, SHA256)); err != nil {
			t.Fatalf("Verify(%d): %v", n, err)
		}
	}
	if last, ok := a.Table().Last(pub); !ok || last != 11 {
		t.Fatalf("last = %d %v, want 11", last, ok)
	}
}

func TestVerify_ReplayRejected(t *testing.T) {
	kp := testKeypair(t, 2)
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, nil)
	pub := keys.PublicKeyHex(kp)
	sig := mustSign(t, kp, 1, SHA256)
	if err := a.Verify(pub, 1, sig); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	err := a.Verify(pub, 1, sig)
	if !wire.IsCode(err, wire.SenderUnknown) {
		t.Fatalf("replay: got %v, want SenderUnknown", err)
	}
}

func TestVerify_LowerNounceRejectedEvenWithValidSignature(t *testing.T) {
	for _, policy := range []Policy{PolicyStrict, PolicyNonDecreasing} {
		kp := testKeypair(t, 3)
		a := NewAuthenticator(keys.Ed25519, SHA256, policy, nil)
		pub := keys.PublicKeyHex(kp)
		if err := a.Verify(pub, 50, mustSign(t, kp, 50, SHA256)); err != nil {
			t.Fatalf("Verify(50): %v", err)
		}
		err := a.Verify(pub, 49, mustSign(t, kp, 49, SHA256))
		if !wire.IsCode(err, wire.SenderUnknown) {
			t.Fatalf("policy %s: got %v, want SenderUnknown", policy, err)
		}
	}
}

func TestVerify_NonDecreasingAllowsSignatureReuse(t *testing.T) {
	kp := testKeypair(t, 4)
	a := NewAuthenticator(keys.Ed25519, SHA3256, PolicyNonDecreasing, nil)
	pub := keys.PublicKeyHex(kp)
	sig := mustSign(t, kp, 7, SHA3256)
	for i := 0; i < 3; i++ {
		if err := a.Verify(pub, 7, sig); err != nil {
			t.Fatalf("Verify #%d: %v", i, err)
		}
	}
}

func TestVerify_BadSignatureDoesNotAdvance(t *testing.T) {
	kp := testKeypair(t, 5)
	other := testKeypair(t, 6)
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, nil)
	pub := keys.PublicKeyHex(kp)

	forged := mustSign(t, other, 100, SHA256)
	if err := a.Verify(pub, 100, forged); !wire.IsCode(err, wire.SenderUnknown) {
		t.Fatalf("forged: got %v", err)
	}
	if _, ok := a.Table().Last(pub); ok {
		t.Fatalf("forged message must not touch the nounce table")
	}
	if err := a.Verify(pub, 5, mustSign(t, kp, 5, SHA256)); err != nil {
		t.Fatalf("genuine Verify: %v", err)
	}
}

func TestVerify_HashAlgMismatchFails(t *testing.T) {
	kp := testKeypair(t, 7)
	a := NewAuthenticator(keys.Ed25519, SHA512, PolicyStrict, nil)
	if err := a.Verify(keys.PublicKeyHex(kp), 1, mustSign(t, kp, 1, SHA256)); !wire.IsCode(err, wire.SenderUnknown) {
		t.Fatalf("got %v, want SenderUnknown", err)
	}
}

func TestVerify_UnregisteredSender(t *testing.T) {
	kp := testKeypair(t, 8)
	known := testKeypair(t, 9)
	reg := staticRegistry{keys.PublicKeyHex(known): true}
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, reg)

	if err := a.Verify(keys.PublicKeyHex(kp), 1, mustSign(t, kp, 1, SHA256)); !wire.IsCode(err, wire.SenderUnknown) {
		t.Fatalf("unregistered: got %v", err)
	}
	if err := a.Verify("0x"+keys.PublicKeyHex(known), 1, mustSign(t, known, 1, SHA256)); err != nil {
		t.Fatalf("registered: %v", err)
	}
}

func TestVerify_ConcurrentSameNounceAcceptedOnce(t *testing.T) {
	kp := testKeypair(t, 10)
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, nil)
	pub := keys.PublicKeyHex(kp)
	sig := mustSign(t, kp, 42, SHA256)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if a.Verify(pub, 42, sig) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if accepted.Load() != 1 {
		t.Fatalf("accepted %d times, want exactly once", accepted.Load())
	}
}

func TestVerify_ConcurrentDistinctNounces(t *testing.T) {
	kp := testKeypair(t, 11)
	a := NewAuthenticator(keys.Ed25519, SHA256, PolicyStrict, nil)
	pub := keys.PublicKeyHex(kp)

	const n = 32
	sigs := make([][]byte, n+1)
	for i := uint64(1); i <= n; i++ {
		sigs[i] = mustSign(t, kp, i, SHA256)
	}

	// Arrival order is arbitrary, but the table must never move backwards, so
	// the highest nounce always gets through and ends up as the last value.
	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := uint64(1); i <= n; i++ {
		wg.Add(1)
		go func(nounce uint64) {
			defer wg.Done()
			if a.Verify(pub, nounce, sigs[nounce]) == nil {
				accepted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if accepted.Load() == 0 {
		t.Fatalf("no nounce accepted")
	}
	if last, _ := a.Table().Last(pub); last != n {
		t.Fatalf("last = %d, want %d", last, n)
	}
	// A lower nounce arriving after a higher one is a replay.
	if err := a.Verify(pub, 1, sigs[1]); !wire.IsCode(err, wire.SenderUnknown) {
		t.Fatalf("late lower nounce: got %v, want SenderUnknown", err)
	}
}

func TestVerify_Dilithium3(t *testing.T) {
	kp, err := keys.FromSeed(keys.Dilithium3, bytes.Repeat([]byte{1}, keys.SeedSize))
	if err != nil {
		t.Fatalf("FromSeed: %v", err)
	}
	a := NewAuthenticator(keys.Dilithium3, SHA3256, PolicyStrict, nil)
	if err := a.Verify(keys.PublicKeyHex(kp), 3, mustSign(t, kp, 3, SHA3256)); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestCounter_Monotonic(t *testing.T) {
	c := NewCounterAt(10)
	if c.Next() != 10 || c.Next() != 11 {
		t.Fatalf("unexpected sequence")
	}
	wall := NewCounter()
	a, b := wall.Next(), wall.Next()
	if b <= a {
		t.Fatalf("counter not increasing: %d then %d", a, b)
	}
}

func TestParsePolicy(t *testing.T) {
	if p, ok := ParsePolicy(""); !ok || p != PolicyStrict {
		t.Fatalf("default policy")
	}
	if p, ok := ParsePolicy("non-decreasing"); !ok || p != PolicyNonDecreasing {
		t.Fatalf("non-decreasing")
	}
	if _, ok := ParsePolicy("lax"); ok {
		t.Fatalf("expected unknown policy to fail")
	}
}
