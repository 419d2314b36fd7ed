// Package axon is the serving side of the Forward/Backward protocol.
//
// Every call is answered with a signed TensorMessage, including failures; the
// gRPC status is only non-OK when the transport itself breaks.
package axon

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/yasserelgammal/rate-limiter/limiter"
	"github.com/yasserelgammal/rate-limiter/store"
	"google.golang.org/grpc"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/observability"
	"github.com/parall4x/bittensor/rpc"
	"github.com/parall4x/bittensor/wire"
)

const (
	DefaultTimeout   = 5 * time.Second
	DefaultQueueSize = 64
)

type Config struct {
	// Keypair signs every response.
	Keypair keys.Keypair
	HashAlg string
	// Scheme is the signature scheme expected from senders. Defaults to the
	// keypair's scheme.
	Scheme keys.Scheme
	Policy auth.Policy
	// Registry limits senders to known identities; nil admits any signer.
	Registry auth.Registry

	// Timeout caps a synapse call; the caller's deadline applies when sooner.
	Timeout time.Duration
	// QueueSize bounds concurrent synapse calls.
	QueueSize   int
	MaxMsgBytes int

	// RatePerSecond of zero disables per-sender rate limiting.
	RatePerSecond int64
	RateBurst     int64

	// Framework tags decoded inputs and encoded outputs.
	Framework wire.TensorType

	// Logger defaults to a disabled logger.
	Logger zerolog.Logger
}

type Axon struct {
	cfg     Config
	auth    *auth.Authenticator
	counter *auth.Counter
	limiter *limiter.TokenBucket
	queue   chan struct{}
	log     zerolog.Logger

	mu       sync.RWMutex
	synapses map[wire.Modality]Synapse

	draining atomic.Bool
	server   *grpc.Server
	lis      net.Listener
}

// New validates cfg and prepares an axon. Call Serve for each modality, then Start.
func New(cfg Config) (*Axon, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("axon: keypair is required")
	}
	if err := auth.CheckHashAlg(cfg.HashAlg); err != nil {
		return nil, err
	}
	if cfg.Scheme == "" {
		cfg.Scheme = cfg.Keypair.Scheme()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	a := &Axon{
		cfg:      cfg,
		auth:     auth.NewAuthenticator(cfg.Scheme, cfg.HashAlg, cfg.Policy, cfg.Registry),
		counter:  auth.NewCounter(),
		queue:    make(chan struct{}, cfg.QueueSize),
		log:      cfg.Logger.With().Str("axon", keys.PublicKeyHex(cfg.Keypair)[:12]).Logger(),
		synapses: make(map[wire.Modality]Synapse),
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = cfg.RatePerSecond
		}
		tb, err := limiter.NewTokenBucket(
			limiter.Config{
				Rate:     cfg.RatePerSecond,
				Duration: time.Second,
				Burst:    burst,
			},
			store.NewMemoryStore(time.Minute),
		)
		if err != nil {
			return nil, err
		}
		a.limiter = tb
	}

	opts := []grpc.ServerOption{grpc.ForceServerCodec(wire.Codec{})}
	if cfg.MaxMsgBytes > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.MaxMsgBytes), grpc.MaxSendMsgSize(cfg.MaxMsgBytes))
	}
	a.server = grpc.NewServer(opts...)
	rpc.RegisterBittensorServer(a.server, a)
	return a, nil
}

// Serve binds s to modality m, replacing any previous binding.
func (a *Axon) Serve(m wire.Modality, s Synapse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s == nil {
		delete(a.synapses, m)
		return
	}
	a.synapses[m] = s
}

func (a *Axon) synapse(m wire.Modality) (Synapse, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.synapses[m]
	return s, ok
}

// Authenticator exposes the inbound authenticator, mostly for inspection.
func (a *Axon) Authenticator() *auth.Authenticator { return a.auth }

// Start serves on lis in the background.
func (a *Axon) Start(lis net.Listener) error {
	if lis == nil {
		return errors.New("axon: nil listener")
	}
	a.mu.Lock()
	if a.lis != nil {
		a.mu.Unlock()
		return errors.New("axon: already started")
	}
	a.lis = lis
	a.mu.Unlock()

	a.log.Info().Str("addr", lis.Addr().String()).Msg("axon serving")
	go func() {
		if err := a.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			a.log.Error().Err(err).Msg("axon serve failed")
		}
	}()
	return nil
}

// Drain makes every subsequent call fail with Unavailable while the server
// keeps running.
func (a *Axon) Drain() { a.draining.Store(true) }

// Stop refuses new calls with Unavailable, waits for in-flight calls to
// finish and closes the listener.
func (a *Axon) Stop() {
	a.draining.Store(true)
	a.server.GracefulStop()
	a.log.Info().Msg("axon stopped")
}

// Addr returns the listening address, or nil before Start.
func (a *Axon) Addr() net.Addr {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lis == nil {
		return nil
	}
	return a.lis.Addr()
}

func (a *Axon) acquire() bool {
	select {
	case a.queue <- struct{}{}:
		observability.NucleusAcquired()
		return true
	default:
		return false
	}
}

func (a *Axon) release() {
	<-a.queue
	observability.NucleusReleased()
}

// InFlight reports how many synapse calls hold a queue slot.
func (a *Axon) InFlight() int { return len(a.queue) }
