package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a local-first wallet directory.
//
// EXPERIMENTAL: this filesystem layout is a convenience for the binaries and may change.
//
// Layout:
//
//	<Directory>/<wallet>/coldkey          hex seed, 0600
//	<Directory>/<wallet>/hotkeys/<name>   hex seed derived from the coldkey, 0600
//
// Seeds are scheme-agnostic; Scheme decides which keypair a seed expands into.
type KeyStore struct {
	Directory string
	Scheme    Scheme
}

type WalletEntry struct {
	Name    string
	Hotkeys []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".bittensor", "wallets"), nil
}

func CreateKeyStore(directory string, scheme Scheme) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	if scheme == "" {
		scheme = Ed25519
	}
	if PublicKeySize(scheme) == 0 {
		return nil, fmt.Errorf("unsupported key scheme %q", scheme)
	}
	return &KeyStore{Directory: directory, Scheme: scheme}, nil
}

func (ks *KeyStore) coldkeyPath(wallet string) string {
	return filepath.Join(ks.Directory, wallet, "coldkey")
}

func (ks *KeyStore) hotkeyPath(wallet, hotkey string) string {
	return filepath.Join(ks.Directory, wallet, "hotkeys", hotkey)
}

// CheckName validates wallet and hotkey names.
func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in name", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func saveSeedToFile(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(hex.EncodeToString(seed) + "\n"); err != nil {
		return err
	}
	return file.Close()
}

func loadSeedFromFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

func (ks *KeyStore) publicHex(seed []byte) (string, error) {
	kp, err := FromSeed(ks.Scheme, seed)
	if err != nil {
		return "", err
	}
	return PublicKeyHex(kp), nil
}

// InitializeColdkey writes the wallet's root seed and returns its public key.
func (ks *KeyStore) InitializeColdkey(wallet string, seed []byte, overwrite bool) (publicKey string, filePath string, err error) {
	if err := CheckName(wallet); err != nil {
		return "", "", err
	}
	filePath = ks.coldkeyPath(wallet)
	if err := saveSeedToFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = ks.publicHex(seed)
	return publicKey, filePath, err
}

// DeriveHotkey derives and stores a named hotkey under wallet.
func (ks *KeyStore) DeriveHotkey(wallet, hotkey string, overwrite bool) (publicKey string, filePath string, err error) {
	if err := CheckName(wallet); err != nil {
		return "", "", err
	}
	cold, err := loadSeedFromFile(ks.coldkeyPath(wallet))
	if err != nil {
		return "", "", err
	}
	seed, err := DeriveHotkeySeed(cold, hotkey)
	if err != nil {
		return "", "", err
	}
	filePath = ks.hotkeyPath(wallet, hotkey)
	if err := saveSeedToFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	publicKey, err = ks.publicHex(seed)
	return publicKey, filePath, err
}

func (ks *KeyStore) loadWalletSeed(wallet, hotkey string) ([]byte, error) {
	if err := CheckName(wallet); err != nil {
		return nil, err
	}
	if hotkey == "" {
		return loadSeedFromFile(ks.coldkeyPath(wallet))
	}
	if err := CheckName(hotkey); err != nil {
		return nil, err
	}
	return loadSeedFromFile(ks.hotkeyPath(wallet, hotkey))
}

// ExportPublicKey returns the hex public key of a coldkey (hotkey == "") or hotkey.
func (ks *KeyStore) ExportPublicKey(wallet, hotkey string) (string, error) {
	seed, err := ks.loadWalletSeed(wallet, hotkey)
	if err != nil {
		return "", err
	}
	return ks.publicHex(seed)
}

// LoadKeypair opens a stored key. Neurons sign with hotkeys.
func (ks *KeyStore) LoadKeypair(wallet, hotkey string) (Keypair, error) {
	seed, err := ks.loadWalletSeed(wallet, hotkey)
	if err != nil {
		return nil, err
	}
	return FromSeed(ks.Scheme, seed)
}

// LoadSeed resolves a seed from, in order: an explicit hex seed, a key file, or a wallet/hotkey pair.
func (ks *KeyStore) LoadSeed(seedHex, wallet, hotkey, keyFile string) ([]byte, error) {
	if seedHex != "" {
		return ParseSeedHex(seedHex)
	}
	if keyFile != "" {
		return loadSeedFromFile(keyFile)
	}
	if wallet != "" {
		return ks.loadWalletSeed(wallet, hotkey)
	}
	return nil, errors.New("no signer provided")
}

func (ks *KeyStore) ListWallets() ([]WalletEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var wallets []string
	for _, entry := range entries {
		if entry.IsDir() {
			wallets = append(wallets, entry.Name())
		}
	}
	sort.Strings(wallets)

	var result []WalletEntry
	for _, wallet := range wallets {
		hotkeyEntries, herr := os.ReadDir(filepath.Join(ks.Directory, wallet, "hotkeys"))
		var hotkeys []string
		if herr == nil {
			for _, e := range hotkeyEntries {
				if !e.IsDir() {
					hotkeys = append(hotkeys, e.Name())
				}
			}
			sort.Strings(hotkeys)
		}
		result = append(result, WalletEntry{Name: wallet, Hotkeys: hotkeys})
	}
	return result, nil
}
