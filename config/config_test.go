package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

const sample = `
[neuron]
address = "10.1.2.3"
port = 9000
modality = "text"
uid = 4

[wallet]
name = "w1"
hotkey = "hk"
scheme = "dilithium3"
hash_alg = "sha3-256"

[axon]
listen = "127.0.0.1:9000"
timeout = "750ms"
queue_size = 8
replay_policy = "non-decreasing"
open_registration = false
synapses = { text = "identity", tensor = "zeros" }

[dendrite]
timeout = "2s"
breaker_failures = 3

[metrics]
listen = "127.0.0.1:9100"

[[peers]]
public_key = "0xABCDEF"
address = "::1"
port = 9001
uid = 1
modality = "image"

[[peers]]
public_key = "abcd01"
address = "10.1.2.4"
port = 9002
uid = 2
`

func TestParse_Sample(t *testing.T) {
	cfg, err := Parse(sample)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Scheme() != keys.Dilithium3 || cfg.Wallet.HashAlg != auth.SHA3256 {
		t.Fatalf("unexpected wallet config: %+v", cfg.Wallet)
	}
	if cfg.Axon.Timeout != 750*time.Millisecond || cfg.Axon.QueueSize != 8 {
		t.Fatalf("unexpected axon config: %+v", cfg.Axon)
	}
	if cfg.ReplayPolicy() != auth.PolicyNonDecreasing || cfg.Axon.OpenRegistration {
		t.Fatalf("unexpected replay settings: %+v", cfg.Axon)
	}
	// Unset keys keep their defaults.
	if cfg.Axon.RatePerSecond != 100 || cfg.Dendrite.NetworkDim != 512 || cfg.Dendrite.BreakerFailures != 3 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Axon, cfg.Dendrite)
	}

	b := cfg.SynapseBindings()
	if len(b) != 2 || b[0].Modality != wire.TEXT || b[0].Synapse != "identity" || b[1].Modality != wire.TENSOR {
		t.Fatalf("unexpected bindings: %+v", b)
	}

	peers, err := cfg.PeerNeurons()
	if err != nil {
		t.Fatalf("PeerNeurons: %v", err)
	}
	if len(peers) != 2 || peers[0].IPType != wire.IPv6 || peers[0].Modality != wire.IMAGE || peers[1].Modality != wire.TENSOR {
		t.Fatalf("unexpected peers: %+v %+v", peers[0], peers[1])
	}

	self, err := cfg.Self("00ff")
	if err != nil {
		t.Fatalf("Self: %v", err)
	}
	if self.IPType != wire.IPv4 || self.Port != 9000 || self.Modality != wire.TEXT || self.Version != wire.ProtocolVersion {
		t.Fatalf("unexpected self record: %+v", self)
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse("[axon]\nqueue_sise = 4\n")
	if err == nil || !strings.Contains(err.Error(), "axon.queue_sise") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"scheme":   "[wallet]\nscheme = \"rsa\"\n",
		"hash":     "[wallet]\nhash_alg = \"md5\"\n",
		"modality": "[neuron]\nmodality = \"audio\"\n",
		"address":  "[neuron]\naddress = \"example.com\"\n",
		"queue":    "[axon]\nqueue_size = 0\n",
		"policy":   "[axon]\nreplay_policy = \"lax\"\n",
		"synapse":  "[axon]\nsynapses = { audio = \"zeros\" }\n",
		"peer dup": "[[peers]]\npublic_key = \"aa\"\naddress = \"1.1.1.1\"\n[[peers]]\npublic_key = \"0xAA\"\naddress = \"1.1.1.2\"\n",
	}
	for name, doc := range cases {
		if _, err := Parse(doc); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate: %v", err)
	}
	b := cfg.SynapseBindings()
	if len(b) != 1 || b[0].Modality != wire.TENSOR || b[0].Synapse != "zeros" {
		t.Fatalf("unexpected default bindings: %+v", b)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "neuron.toml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Neuron.UID != 4 {
		t.Fatalf("unexpected uid %d", cfg.Neuron.UID)
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
