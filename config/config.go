// Package config loads the TOML configuration shared by neurond and neuronctl.
//
// Example:
//
//	[neuron]
//	address = "203.0.113.7"
//	port = 8091
//	modality = "tensor"
//	uid = 12
//
//	[wallet]
//	name = "default"
//	hotkey = "miner"
//
//	[axon]
//	listen = "0.0.0.0:8091"
//	timeout = "5s"
//	synapses = { tensor = "zeros" }
//
//	[[peers]]
//	public_key = "8a88e3dd7409f195fd52db2d3cba5d72ca6709bf1d94121bf3748801b40f6f5c"
//	address = "203.0.113.9"
//	port = 8091
//	uid = 3
package config

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/wire"
)

type Config struct {
	Neuron   NeuronConfig   `toml:"neuron"`
	Wallet   WalletConfig   `toml:"wallet"`
	Axon     AxonConfig     `toml:"axon"`
	Dendrite DendriteConfig `toml:"dendrite"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Peers    []PeerConfig   `toml:"peers"`
}

// NeuronConfig is the endpoint this process advertises.
type NeuronConfig struct {
	Version  string `toml:"version"`
	Address  string `toml:"address"`
	Port     int32  `toml:"port"`
	Modality string `toml:"modality"`
	UID      int64  `toml:"uid"`
}

type WalletConfig struct {
	// Dir defaults to ~/.bittensor/wallets.
	Dir     string `toml:"dir"`
	Name    string `toml:"name"`
	Hotkey  string `toml:"hotkey"`
	Scheme  string `toml:"scheme"`
	HashAlg string `toml:"hash_alg"`
}

type AxonConfig struct {
	Listen      string        `toml:"listen"`
	Timeout     time.Duration `toml:"timeout"`
	QueueSize   int           `toml:"queue_size"`
	MaxMsgBytes int           `toml:"max_msg_bytes"`
	// RatePerSecond of zero disables per-sender rate limiting.
	RatePerSecond    int64  `toml:"rate_per_second"`
	RateBurst        int64  `toml:"rate_burst"`
	ReplayPolicy     string `toml:"replay_policy"`
	OpenRegistration bool   `toml:"open_registration"`
	// Synapses maps a modality name to a built-in synapse name.
	// Empty serves the tensor modality with "zeros".
	Synapses   map[string]string `toml:"synapses"`
	NetworkDim int               `toml:"network_dim"`
}

type DendriteConfig struct {
	Timeout         time.Duration `toml:"timeout"`
	DialTimeout     time.Duration `toml:"dial_timeout"`
	MaxMsgBytes     int           `toml:"max_msg_bytes"`
	NetworkDim      int           `toml:"network_dim"`
	BreakerFailures uint32        `toml:"breaker_failures"`
	BreakerCooldown time.Duration `toml:"breaker_cooldown"`
}

type MetricsConfig struct {
	// Listen is the host:port serving /metrics; empty disables it.
	Listen string `toml:"listen"`
}

// PeerConfig is one statically configured peer.
type PeerConfig struct {
	PublicKey string `toml:"public_key"`
	Address   string `toml:"address"`
	Port      int32  `toml:"port"`
	// IPType is inferred from Address when zero.
	IPType   int32  `toml:"ip_type"`
	Modality string `toml:"modality"`
	UID      int64  `toml:"uid"`
	Version  string `toml:"version"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Neuron: NeuronConfig{
			Version:  wire.ProtocolVersion,
			Address:  "127.0.0.1",
			Port:     8091,
			Modality: "tensor",
		},
		Wallet: WalletConfig{
			Name:    "default",
			Hotkey:  "default",
			Scheme:  string(keys.Ed25519),
			HashAlg: auth.SHA256,
		},
		Axon: AxonConfig{
			Listen:           "0.0.0.0:8091",
			Timeout:          5 * time.Second,
			QueueSize:        64,
			MaxMsgBytes:      64 << 20,
			RatePerSecond:    100,
			RateBurst:        200,
			ReplayPolicy:     auth.PolicyStrict.String(),
			OpenRegistration: true,
			NetworkDim:       512,
		},
		Dendrite: DendriteConfig{
			Timeout:         5 * time.Second,
			DialTimeout:     3 * time.Second,
			MaxMsgBytes:     64 << 20,
			NetworkDim:      512,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
		},
	}
}

// Load reads path over Default and validates the result. Unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, errors.New("config: empty config path")
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, finish(cfg, md)
}

// Parse is Load for in-memory TOML.
func Parse(data string) (Config, error) {
	cfg := Default()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	return cfg, finish(cfg, md)
}

func finish(cfg Config, md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		names := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			names = append(names, k.String())
		}
		return fmt.Errorf("config: unknown keys: %s", strings.Join(names, ", "))
	}
	return cfg.Validate()
}

func (c Config) Validate() error {
	if _, err := keys.ParseScheme(c.Wallet.Scheme); err != nil {
		return fmt.Errorf("config: wallet.scheme: %w", err)
	}
	if err := auth.CheckHashAlg(c.Wallet.HashAlg); err != nil {
		return fmt.Errorf("config: wallet.hash_alg: %w", err)
	}
	if err := keys.CheckName(c.Wallet.Name); err != nil {
		return fmt.Errorf("config: wallet.name: %w", err)
	}
	if err := keys.CheckName(c.Wallet.Hotkey); err != nil {
		return fmt.Errorf("config: wallet.hotkey: %w", err)
	}

	if c.Neuron.Version != "" && !wire.ValidVersion(c.Neuron.Version) {
		return fmt.Errorf("config: neuron.version %q is not a semantic version", c.Neuron.Version)
	}
	if _, ok := wire.ParseModality(c.Neuron.Modality); !ok {
		return fmt.Errorf("config: neuron.modality %q is invalid", c.Neuron.Modality)
	}
	if _, err := IPType(c.Neuron.Address); err != nil {
		return fmt.Errorf("config: neuron.address: %w", err)
	}
	if c.Neuron.Port < 1 || c.Neuron.Port > 65535 {
		return fmt.Errorf("config: neuron.port %d out of range", c.Neuron.Port)
	}
	if c.Neuron.UID < 0 {
		return fmt.Errorf("config: neuron.uid must not be negative")
	}

	if _, _, err := net.SplitHostPort(c.Axon.Listen); err != nil {
		return fmt.Errorf("config: axon.listen: %w", err)
	}
	if c.Axon.Timeout <= 0 {
		return errors.New("config: axon.timeout must be positive")
	}
	if c.Axon.QueueSize <= 0 {
		return errors.New("config: axon.queue_size must be positive")
	}
	if c.Axon.MaxMsgBytes < 0 || c.Dendrite.MaxMsgBytes < 0 {
		return errors.New("config: max_msg_bytes must not be negative")
	}
	if c.Axon.RatePerSecond < 0 || c.Axon.RateBurst < 0 {
		return errors.New("config: axon rate limits must not be negative")
	}
	if _, ok := auth.ParsePolicy(c.Axon.ReplayPolicy); !ok {
		return fmt.Errorf("config: axon.replay_policy %q is invalid", c.Axon.ReplayPolicy)
	}
	for m := range c.Axon.Synapses {
		if _, ok := wire.ParseModality(m); !ok {
			return fmt.Errorf("config: axon.synapses: unknown modality %q", m)
		}
	}
	if c.Axon.NetworkDim <= 0 || c.Dendrite.NetworkDim <= 0 {
		return errors.New("config: network_dim must be positive")
	}

	if c.Dendrite.Timeout <= 0 {
		return errors.New("config: dendrite.timeout must be positive")
	}
	if c.Dendrite.DialTimeout < 0 || c.Dendrite.BreakerCooldown < 0 {
		return errors.New("config: dendrite durations must not be negative")
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("config: metrics.listen: %w", err)
		}
	}

	seen := make(map[string]struct{}, len(c.Peers))
	for i, p := range c.Peers {
		if p.PublicKey == "" {
			return fmt.Errorf("config: peers[%d].public_key is required", i)
		}
		k := strings.ToLower(strings.TrimPrefix(p.PublicKey, "0x"))
		if _, ok := seen[k]; ok {
			return fmt.Errorf("config: peers[%d]: duplicate public_key", i)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// Scheme returns the configured signature scheme.
func (c Config) Scheme() keys.Scheme {
	s, err := keys.ParseScheme(c.Wallet.Scheme)
	if err != nil {
		return keys.Ed25519
	}
	return s
}

// ReplayPolicy returns the configured nounce policy.
func (c Config) ReplayPolicy() auth.Policy {
	p, _ := auth.ParsePolicy(c.Axon.ReplayPolicy)
	return p
}

// SynapseBindings returns the modality to synapse bindings sorted by
// modality. With nothing configured the tensor modality is served by "zeros".
func (c Config) SynapseBindings() []Binding {
	if len(c.Axon.Synapses) == 0 {
		return []Binding{{Modality: wire.TENSOR, Synapse: "zeros"}}
	}
	out := make([]Binding, 0, len(c.Axon.Synapses))
	for m, name := range c.Axon.Synapses {
		mod, ok := wire.ParseModality(m)
		if !ok {
			continue
		}
		out = append(out, Binding{Modality: mod, Synapse: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modality < out[j].Modality })
	return out
}

type Binding struct {
	Modality wire.Modality
	Synapse  string
}

// IPType returns wire.IPv4 or wire.IPv6 for an IP literal.
func IPType(address string) (int32, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return 0, fmt.Errorf("%q is not an IP address", address)
	}
	if ip.To4() != nil {
		return wire.IPv4, nil
	}
	return wire.IPv6, nil
}

// Self returns the advertised endpoint record for publicKeyHex.
func (c Config) Self(publicKeyHex string) (*wire.Neuron, error) {
	ipType, err := IPType(c.Neuron.Address)
	if err != nil {
		return nil, err
	}
	m, _ := wire.ParseModality(c.Neuron.Modality)
	version := c.Neuron.Version
	if version == "" {
		version = wire.ProtocolVersion
	}
	return &wire.Neuron{
		Version:   version,
		PublicKey: publicKeyHex,
		Address:   c.Neuron.Address,
		Port:      c.Neuron.Port,
		IPType:    ipType,
		Modality:  m,
		UID:       c.Neuron.UID,
	}, nil
}

// PeerNeurons converts the [[peers]] section into endpoint records. Records
// are not validated here; neuron.LoadStatic does that.
func (c Config) PeerNeurons() ([]*wire.Neuron, error) {
	out := make([]*wire.Neuron, 0, len(c.Peers))
	for i, p := range c.Peers {
		ipType := p.IPType
		if ipType == 0 {
			t, err := IPType(p.Address)
			if err != nil {
				return nil, fmt.Errorf("config: peers[%d]: %w", i, err)
			}
			ipType = t
		}
		modality := wire.TENSOR
		if p.Modality != "" {
			m, ok := wire.ParseModality(p.Modality)
			if !ok {
				return nil, fmt.Errorf("config: peers[%d]: unknown modality %q", i, p.Modality)
			}
			modality = m
		}
		version := p.Version
		if version == "" {
			version = wire.ProtocolVersion
		}
		out = append(out, &wire.Neuron{
			Version:   version,
			PublicKey: p.PublicKey,
			Address:   p.Address,
			Port:      p.Port,
			IPType:    ipType,
			Modality:  modality,
			UID:       p.UID,
		})
	}
	return out, nil
}
