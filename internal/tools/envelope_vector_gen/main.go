package main

import (
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/envelope"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

func main() {
	var (
		seedHex  = flag.String("seed-hex", "", "signer seed as 64 hex chars")
		scheme   = flag.String("scheme", "ed25519", "key scheme: ed25519 or dilithium3")
		hashAlg  = flag.String("hash-alg", auth.SHA256, "signature digest algorithm")
		nounce   = flag.Uint64("nounce", 1, "request nounce")
		modality = flag.String("modality", "tensor", "text, image or tensor")
		shapeStr = flag.String("shape", "1,1,4", "tensor shape, comma separated")
		values   = flag.String("values", "", "comma separated float32 values (default zeros)")
		outDir   = flag.String("out", "", "output directory")
	)
	flag.Parse()

	if *seedHex == "" || *outDir == "" {
		fmt.Fprintln(os.Stderr, "usage: envelope_vector_gen -seed-hex <64hex> -out <dir> [-scheme ed25519] [-nounce 1] [-shape 1,1,4] [-values 0.5,1,...]")
		os.Exit(2)
	}

	s, err := keys.ParseScheme(*scheme)
	if err != nil {
		fatalf("scheme: %v", err)
	}
	seed, err := keys.ParseSeedHex(*seedHex)
	if err != nil {
		fatalf("seed: %v", err)
	}
	kp, err := keys.FromSeed(s, seed)
	if err != nil {
		fatalf("keypair: %v", err)
	}
	m, ok := wire.ParseModality(*modality)
	if !ok {
		fatalf("unknown modality %q", *modality)
	}

	shape, err := parseInts(*shapeStr)
	if err != nil {
		fatalf("shape: %v", err)
	}
	x, err := tensor.Zeros(wire.FLOAT32, shape)
	if err != nil {
		fatalf("tensor: %v", err)
	}
	if *values != "" {
		data, err := parseFloats(*values)
		if err != nil {
			fatalf("values: %v", err)
		}
		if x, err = tensor.New(shape, data); err != nil {
			fatalf("tensor: %v", err)
		}
	}

	ws, err := tensor.EncodeAll([]*tensor.Tensor{x}, wire.TORCH, m, wire.Request)
	if err != nil {
		fatalf("tensor.EncodeAll: %v", err)
	}
	msg, err := envelope.Build(kp, *nounce, *hashAlg, ws, wire.Request)
	if err != nil {
		fatalf("envelope.Build: %v", err)
	}
	b, err := msg.MarshalBinary()
	if err != nil {
		fatalf("marshal: %v", err)
	}

	// Round-trip through the same checks an axon applies.
	parsed, err := envelope.Parse(b, wire.Request)
	if err != nil {
		fatalf("envelope.Parse: %v", err)
	}
	if err := envelope.VerifySender(parsed, s, *hashAlg, keys.PublicKeyHex(kp), wire.Request); err != nil {
		fatalf("envelope.VerifySender: %v", err)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fatalf("mkdir out: %v", err)
	}
	sum := sha256.Sum256(b)
	files := map[string][]byte{
		"request_1.bin":    b,
		"request_1.sha256": []byte(hex.EncodeToString(sum[:]) + "\n"),
		"request_1.pub":    []byte(keys.PublicKeyHex(kp) + "\n"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(*outDir, name), data, 0o644); err != nil {
			fatalf("write %s: %v", name, err)
		}
	}
}

func parseInts(s string) ([]int64, error) {
	var out []int64
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(s string) ([]float32, error) {
	var out []float32
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, err
		}
		out = append(out, float32(v))
	}
	return out, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
