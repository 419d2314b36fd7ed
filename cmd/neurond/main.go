package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/parall4x/bittensor/auth"
	"github.com/parall4x/bittensor/axon"
	"github.com/parall4x/bittensor/config"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/logging"
	"github.com/parall4x/bittensor/neuron"
	"github.com/parall4x/bittensor/observability"
	"github.com/parall4x/bittensor/synapse"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("neurond", flag.ContinueOnError)
	fs.SetOutput(errOut)
	configPath := fs.String("config", "", "TOML config file")
	listen := fs.String("listen", "", "Override [axon].listen")
	metricsListen := fs.String("metrics", "", "Override [metrics].listen")
	walletDir := fs.String("wallet-dir", "", "Override [wallet].dir")
	seedHex := fs.String("seed-hex", "", "Sign with this 64-hex seed instead of the wallet hotkey")
	listSynapses := fs.Bool("list-synapses", false, "List built-in synapses and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *listSynapses {
		for _, b := range synapse.List() {
			_, _ = fmt.Fprintf(out, "%s\t%s\n", b.Name, b.Description)
		}
		return 0
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if *listen != "" {
		cfg.Axon.Listen = *listen
	}
	if *metricsListen != "" {
		cfg.Metrics.Listen = *metricsListen
	}
	if *walletDir != "" {
		cfg.Wallet.Dir = *walletDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	logging.Configure("neurond", logging.Runtime)
	log := logging.For("neurond")

	kp, err := openKeypair(cfg, *seedHex)
	if err != nil {
		log.Error().Err(err).Msg("cannot open signing key")
		return 1
	}
	if err := serve(ctx, cfg, kp, log); err != nil {
		log.Error().Err(err).Msg("neurond failed")
		return 1
	}
	return 0
}

func openKeypair(cfg config.Config, seedHex string) (keys.Keypair, error) {
	if seedHex != "" {
		seed, err := keys.ParseSeedHex(seedHex)
		if err != nil {
			return nil, err
		}
		return keys.FromSeed(cfg.Scheme(), seed)
	}
	ks, err := keys.CreateKeyStore(cfg.Wallet.Dir, cfg.Scheme())
	if err != nil {
		return nil, err
	}
	return ks.LoadKeypair(cfg.Wallet.Name, cfg.Wallet.Hotkey)
}

func serve(ctx context.Context, cfg config.Config, kp keys.Keypair, log zerolog.Logger) error {
	peers, err := cfg.PeerNeurons()
	if err != nil {
		return err
	}
	dir, err := neuron.LoadStatic(cfg.Scheme(), peers)
	if err != nil {
		return fmt.Errorf("peers: %w", err)
	}
	var registry auth.Registry
	if !cfg.Axon.OpenRegistration {
		registry = dir
	}

	a, err := axon.New(axon.Config{
		Keypair:       kp,
		HashAlg:       cfg.Wallet.HashAlg,
		Scheme:        cfg.Scheme(),
		Policy:        cfg.ReplayPolicy(),
		Registry:      registry,
		Timeout:       cfg.Axon.Timeout,
		QueueSize:     cfg.Axon.QueueSize,
		MaxMsgBytes:   cfg.Axon.MaxMsgBytes,
		RatePerSecond: cfg.Axon.RatePerSecond,
		RateBurst:     cfg.Axon.RateBurst,
		Logger:        logging.For("axon"),
	})
	if err != nil {
		return err
	}
	for _, b := range cfg.SynapseBindings() {
		s, err := synapse.Open(b.Synapse, synapse.Options{NetworkDim: cfg.Axon.NetworkDim})
		if err != nil {
			return fmt.Errorf("axon.synapses.%s: %w", b.Modality, err)
		}
		a.Serve(b.Modality, s)
		log.Info().Str("modality", b.Modality.String()).Str("synapse", b.Synapse).Msg("synapse bound")
	}

	self, err := cfg.Self(keys.PublicKeyHex(kp))
	if err != nil {
		return err
	}
	ev := log.Info().Str("public_key", self.PublicKey).Int64("uid", self.UID).Int("peers", dir.Len())
	if id, err := neuron.ID(cfg.Scheme(), self.PublicKey); err == nil {
		ev = ev.Str("id", id.String())
	}
	if m, err := neuron.Multiaddr(self); err == nil {
		ev = ev.Str("advertise", m.String())
	}
	ev.Msg("neuron identity")

	var metricsSrv *http.Server
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		log.Info().Str("addr", cfg.Metrics.Listen).Msg("metrics listening")
	}

	lis, err := net.Listen("tcp", cfg.Axon.Listen)
	if err != nil {
		return err
	}
	if err := a.Start(lis); err != nil {
		_ = lis.Close()
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	a.Stop()
	if metricsSrv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(sctx)
	}
	return nil
}
