// Package dendrite is the calling side of the Forward/Backward protocol.
package dendrite

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/rpc"
	"github.com/parall4x/bittensor/wire"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultNetworkDim = 512
)

type Config struct {
	// Keypair signs every request.
	Keypair keys.Keypair
	HashAlg string
	// Scheme is expected from responders. Defaults to the keypair's scheme.
	Scheme keys.Scheme

	// Timeout applies to calls whose context has no deadline.
	Timeout time.Duration
	// DialTimeout bounds each connection attempt when non-zero.
	DialTimeout time.Duration
	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Framework tags decoded responses and encoded requests.
	Framework  wire.TensorType
	NetworkDim int

	// BreakerFailures consecutive transport failures open an endpoint's
	// breaker for BreakerCooldown. Zero disables the breaker.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	// Dialer replaces TCP dialing, e.g. with an in-memory listener.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)

	// Logger defaults to a disabled logger.
	Logger zerolog.Logger
}

type Dendrite struct {
	cfg     Config
	counter *auth.Counter
	log     zerolog.Logger

	mu     sync.Mutex
	peers  map[string]*peer
	closed bool
}

// peer is the pooled connection to one endpoint.
type peer struct {
	cc      *grpc.ClientConn
	client  rpc.BittensorClient
	breaker *gobreaker.CircuitBreaker
	// order holds one token. A call draws its nounce and waits for the reply
	// while holding it, so the peer sees this sender's nounces in order.
	order chan struct{}
}

// lock waits for the peer's ordering token or ctx expiry.
func (p *peer) lock(ctx context.Context) error {
	select {
	case p.order <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *peer) unlock() { <-p.order }

func New(cfg Config) (*Dendrite, error) {
	if cfg.Keypair == nil {
		return nil, errors.New("dendrite: keypair is required")
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
	if cfg.NetworkDim <= 0 {
		cfg.NetworkDim = DefaultNetworkDim
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	return &Dendrite{
		cfg:     cfg,
		counter: auth.NewCounter(),
		log:     cfg.Logger,
		peers:   make(map[string]*peer),
	}, nil
}

// NetworkDim is the width of tensor-modality outputs.
func (d *Dendrite) NetworkDim() int { return d.cfg.NetworkDim }

func (d *Dendrite) peer(endpoint string) (*peer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errors.New("dendrite: closed")
	}
	if p, ok := d.peers[endpoint]; ok {
		return p, nil
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if d.cfg.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(d.cfg.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(d.cfg.MaxMsgBytes),
			),
		)
	}
	if d.cfg.DialTimeout > 0 {
		dialOpts = append(dialOpts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: d.cfg.DialTimeout,
		}))
	}
	if d.cfg.Dialer != nil {
		dialOpts = append(dialOpts, grpc.WithContextDialer(d.cfg.Dialer))
	}

	// Non-blocking: connection errors surface on the first call.
	cc, err := grpc.DialContext(context.Background(), endpoint, dialOpts...)
	if err != nil {
		return nil, err
	}
	p := &peer{cc: cc, client: rpc.NewBittensorClient(cc), order: make(chan struct{}, 1)}
	if d.cfg.BreakerFailures > 0 {
		failures := d.cfg.BreakerFailures
		p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        endpoint,
			MaxRequests: 1,
			Timeout:     d.cfg.BreakerCooldown,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool { return !isTransportFailure(err) },
			OnStateChange: func(name string, from, to gobreaker.State) {
				d.log.Info().Str("endpoint", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
			},
		})
	}
	d.peers[endpoint] = p
	return p, nil
}

// Close tears down every pooled connection.
func (d *Dendrite) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	var firstErr error
	for k, p := range d.peers {
		if err := p.cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(d.peers, k)
	}
	return firstErr
}
