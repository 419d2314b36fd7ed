package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/parall4x/bittensor/config"
	"github.com/parall4x/bittensor/dendrite"
	"github.com/parall4x/bittensor/keys"
	"github.com/parall4x/bittensor/logging"
	"github.com/parall4x/bittensor/neuron"
	"github.com/parall4x/bittensor/tensor"
	"github.com/parall4x/bittensor/wire"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "forward":
		return cmdCall(args[1:], dendrite.MethodForward, out, errOut)
	case "backward":
		return cmdCall(args[1:], dendrite.MethodBackward, out, errOut)
	case "id":
		return cmdID(args[1:], out, errOut)
	case "codes":
		return cmdCodes(out)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "neuronctl: wallet and Forward/Backward client for bittensor neurons")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  neuronctl key init --wallet <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  neuronctl key derive --wallet <name> --hotkey <name> [--force]")
	fmt.Fprintln(w, "  neuronctl key list")
	fmt.Fprintln(w, "  neuronctl key export --wallet <name> [--hotkey <name>]")
	fmt.Fprintln(w, "  neuronctl forward --peer-key <hex> --address <ip> --port <n> [--modality text|image|tensor] [--shape 1,4] (--seed-hex <64hex> | --wallet <name> --hotkey <name>)")
	fmt.Fprintln(w, "  neuronctl backward ... (same flags as forward; sends zero gradients)")
	fmt.Fprintln(w, "  neuronctl id --public-key <hex>")
	fmt.Fprintln(w, "  neuronctl codes")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - every key command accepts --dir (default ~/.bittensor/wallets) and --scheme ed25519|dilithium3")
	fmt.Fprintln(w, "  - forward sends zeros of --shape: INT64 for text, FLOAT32 otherwise")
	fmt.Fprintln(w, "  - --config loads dendrite and wallet settings from a neurond TOML file")
}

type storeFlags struct {
	dir    string
	scheme string
}

func (s *storeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.dir, "dir", "", "Wallet directory (default ~/.bittensor/wallets)")
	fs.StringVar(&s.scheme, "scheme", "ed25519", "Key scheme: ed25519 or dilithium3")
}

func (s *storeFlags) open() (*keys.KeyStore, error) {
	scheme, err := keys.ParseScheme(s.scheme)
	if err != nil {
		return nil, err
	}
	return keys.CreateKeyStore(s.dir, scheme)
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printKeyUsage(errOut)
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	case "list":
		return cmdKeyList(args[1:], out, errOut)
	case "export":
		return cmdKeyExport(args[1:], out, errOut)
	case "help", "-h", "--help":
		printKeyUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n\n", args[0])
		printKeyUsage(errOut)
		return 2
	}
}

func printKeyUsage(w io.Writer) {
	fmt.Fprintln(w, "neuronctl key: local wallet management")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  neuronctl key init --wallet <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  neuronctl key derive --wallet <name> --hotkey <name> [--force]")
	fmt.Fprintln(w, "  neuronctl key list")
	fmt.Fprintln(w, "  neuronctl key export --wallet <name> [--hotkey <name>]")
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var sf storeFlags
	var wallet, seedHex string
	var force bool
	sf.register(fs)
	fs.StringVar(&wallet, "wallet", "", "Wallet name")
	fs.StringVar(&seedHex, "seed-hex", "", "Optional coldkey seed as 64 hex chars (for reproducible demos)")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if wallet == "" {
		fmt.Fprintln(errOut, "missing --wallet")
		return 2
	}
	if err := keys.CheckName(wallet); err != nil {
		fmt.Fprintf(errOut, "invalid --wallet: %v\n", err)
		return 2
	}
	ks, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 2
	}

	var seed []byte
	if seedHex != "" {
		if seed, err = keys.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, keys.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "rand: %v\n", err)
			return 1
		}
	}

	pub, path, err := ks.InitializeColdkey(wallet, seed, force)
	if err != nil {
		fmt.Fprintf(errOut, "write key: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created coldkey: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)

	var sf storeFlags
	var wallet, hotkey string
	var force bool
	sf.register(fs)
	fs.StringVar(&wallet, "wallet", "", "Wallet name")
	fs.StringVar(&hotkey, "hotkey", "", "Hotkey name")
	fs.BoolVar(&force, "force", false, "Overwrite existing key files")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if wallet == "" || hotkey == "" {
		fmt.Fprintln(errOut, "missing --wallet or --hotkey")
		return 2
	}
	for flagName, v := range map[string]string{"--wallet": wallet, "--hotkey": hotkey} {
		if err := keys.CheckName(v); err != nil {
			fmt.Fprintf(errOut, "invalid %s: %v\n", flagName, err)
			return 2
		}
	}
	ks, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 2
	}
	pub, path, err := ks.DeriveHotkey(wallet, hotkey, force)
	if err != nil {
		fmt.Fprintf(errOut, "derive hotkey: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "Created hotkey: %s\n", pub)
	fmt.Fprintf(out, "Stored at: %s\n", path)
	return 0
}

func cmdKeyList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	ks, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 2
	}
	wallets, err := ks.ListWallets()
	if err != nil {
		fmt.Fprintf(errOut, "list keys: %v\n", err)
		return 1
	}
	for _, w := range wallets {
		if len(w.Hotkeys) == 0 {
			fmt.Fprintln(out, w.Name)
			continue
		}
		fmt.Fprintf(out, "%s\t%s\n", w.Name, strings.Join(w.Hotkeys, ","))
	}
	return 0
}

func cmdKeyExport(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key export", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var sf storeFlags
	var wallet, hotkey string
	sf.register(fs)
	fs.StringVar(&wallet, "wallet", "", "Wallet name")
	fs.StringVar(&hotkey, "hotkey", "", "Optional hotkey (default exports the coldkey)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if wallet == "" {
		fmt.Fprintln(errOut, "missing --wallet")
		return 2
	}
	ks, err := sf.open()
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 2
	}
	pub, err := ks.ExportPublicKey(wallet, hotkey)
	if err != nil {
		fmt.Fprintf(errOut, "export key: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, pub)
	return 0
}

func cmdID(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("id", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var pub, scheme string
	fs.StringVar(&pub, "public-key", "", "Hex public key")
	fs.StringVar(&scheme, "scheme", "ed25519", "Key scheme: ed25519 or dilithium3")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	s, err := keys.ParseScheme(scheme)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --scheme: %v\n", err)
		return 2
	}
	id, err := neuron.ID(s, pub)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --public-key: %v\n", err)
		return 2
	}
	fmt.Fprintln(out, id.String())
	return 0
}

func cmdCodes(out io.Writer) int {
	for _, c := range wire.ReturnCodes() {
		fmt.Fprintf(out, "%d\t%s\t%s\n", int32(c), c, c.Class())
	}
	return 0
}

func cmdCall(args []string, method dendrite.Method, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet(strings.ToLower(string(method)), flag.ContinueOnError)
	fs.SetOutput(errOut)

	var sf storeFlags
	var configPath, peerKey, address, modalityName, shapeStr, seedHex, wallet, hotkey string
	var port int
	var uid int64
	var timeout time.Duration
	var verbose bool
	sf.register(fs)
	fs.StringVar(&configPath, "config", "", "Optional neurond TOML config for wallet and dendrite settings")
	fs.StringVar(&peerKey, "peer-key", "", "Hex public key of the target neuron")
	fs.StringVar(&address, "address", "", "Target IP address")
	fs.IntVar(&port, "port", 8091, "Target port")
	fs.Int64Var(&uid, "uid", 0, "Target uid")
	fs.StringVar(&modalityName, "modality", "tensor", "text, image or tensor")
	fs.StringVar(&shapeStr, "shape", "", "Input shape, comma separated (default depends on modality)")
	fs.StringVar(&seedHex, "seed-hex", "", "Sign with this 64-hex seed")
	fs.StringVar(&wallet, "wallet", "", "Sign with this wallet")
	fs.StringVar(&hotkey, "hotkey", "", "Hotkey within --wallet")
	fs.DurationVar(&timeout, "timeout", 0, "Call timeout (default from config)")
	fs.BoolVar(&verbose, "v", false, "Log the call")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintln(errOut, err)
			return 2
		}
	}
	if isSet(fs, "scheme") {
		cfg.Wallet.Scheme = sf.scheme
	}
	if isSet(fs, "dir") {
		cfg.Wallet.Dir = sf.dir
	}
	if timeout > 0 {
		cfg.Dendrite.Timeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(errOut, err)
		return 2
	}

	modality, ok := wire.ParseModality(modalityName)
	if !ok {
		fmt.Fprintf(errOut, "invalid --modality %q\n", modalityName)
		return 2
	}
	shape, err := parseShape(shapeStr, modality, cfg.Dendrite.NetworkDim)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --shape: %v\n", err)
		return 2
	}
	ipType, err := config.IPType(address)
	if err != nil {
		fmt.Fprintf(errOut, "invalid --address: %v\n", err)
		return 2
	}
	target := &wire.Neuron{
		Version:   wire.ProtocolVersion,
		PublicKey: peerKey,
		Address:   address,
		Port:      int32(port),
		IPType:    ipType,
		Modality:  modality,
		UID:       uid,
	}
	if err := neuron.Validate(target, cfg.Scheme()); err != nil {
		fmt.Fprintf(errOut, "invalid target: %v\n", err)
		return 2
	}

	ks, err := keys.CreateKeyStore(cfg.Wallet.Dir, cfg.Scheme())
	if err != nil {
		fmt.Fprintf(errOut, "keys: %v\n", err)
		return 2
	}
	if wallet == "" && seedHex == "" {
		wallet, hotkey = cfg.Wallet.Name, cfg.Wallet.Hotkey
	}
	seed, err := ks.LoadSeed(seedHex, wallet, hotkey, "")
	if err != nil {
		fmt.Fprintf(errOut, "load signer: %v\n", err)
		return 1
	}
	kp, err := keys.FromSeed(cfg.Scheme(), seed)
	if err != nil {
		fmt.Fprintf(errOut, "load signer: %v\n", err)
		return 1
	}

	dcfg := dendrite.Config{
		Keypair:         kp,
		HashAlg:         cfg.Wallet.HashAlg,
		Scheme:          cfg.Scheme(),
		Timeout:         cfg.Dendrite.Timeout,
		DialTimeout:     cfg.Dendrite.DialTimeout,
		MaxMsgBytes:     cfg.Dendrite.MaxMsgBytes,
		NetworkDim:      cfg.Dendrite.NetworkDim,
		BreakerFailures: cfg.Dendrite.BreakerFailures,
		BreakerCooldown: cfg.Dendrite.BreakerCooldown,
	}
	if verbose {
		logging.Configure("neuronctl", logging.Runtime)
		dcfg.Logger = logging.For("dendrite")
	}
	d, err := dendrite.New(dcfg)
	if err != nil {
		fmt.Fprintf(errOut, "dendrite: %v\n", err)
		return 1
	}
	defer d.Close()

	dtype := wire.FLOAT32
	if modality == wire.TEXT {
		dtype = wire.INT64
	}
	x, err := tensor.Zeros(dtype, shape)
	if err != nil {
		fmt.Fprintf(errOut, "input: %v\n", err)
		return 2
	}

	ctx := context.Background()
	var resp *dendrite.Response
	if method == dendrite.MethodBackward {
		resp, err = d.Backward(ctx, target, []*tensor.Tensor{x}, []*tensor.Tensor{x}, modality)
	} else {
		resp, err = d.Forward(ctx, target, []*tensor.Tensor{x}, modality)
	}
	if err != nil {
		fmt.Fprintln(errOut, err)
		return 1
	}
	fmt.Fprintf(out, "code: %s (%d)\n", resp.Code, int32(resp.Code))
	fmt.Fprintf(out, "state: %s\n", resp.State)
	fmt.Fprintf(out, "elapsed: %s\n", resp.Elapsed)
	if resp.Message != "" {
		fmt.Fprintf(out, "message: %s\n", resp.Message)
	}
	for i, t := range resp.Tensors {
		fmt.Fprintf(out, "output[%d]: %s %v\n", i, t.DType, t.Shape)
	}
	if resp.Code != wire.Success {
		return 1
	}
	return 0
}

func parseShape(s string, modality wire.Modality, networkDim int) ([]int64, error) {
	if s == "" {
		switch modality {
		case wire.TEXT:
			return []int64{1, 4}, nil
		case wire.IMAGE:
			return []int64{1, 1, 3, 8, 8}, nil
		default:
			return []int64{1, 1, int64(networkDim)}, nil
		}
	}
	parts := strings.Split(s, ",")
	shape := make([]int64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("dimension %d must be positive", v)
		}
		shape = append(shape, v)
	}
	return shape, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
