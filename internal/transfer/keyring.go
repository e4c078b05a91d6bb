package transfer

import (
	"bufio"
	"crypto/ecdsa"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Keyring holds the private keys the chain backend may sign with, indexed by
// address.
type Keyring struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

// LoadKeyring reads one hex-encoded secp256k1 private key per line. Blank
// lines and lines starting with # are skipped.
func LoadKeyring(path string) (*Keyring, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	defer file.Close()
	return ReadKeyring(file)
}

// NewKeyring returns an empty keyring.
func NewKeyring() *Keyring {
	return &Keyring{keys: make(map[common.Address]*ecdsa.PrivateKey)}
}

func ReadKeyring(r io.Reader) (*Keyring, error) {
	kr := NewKeyring()
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(text, "0x"))
		if err != nil {
			return nil, fmt.Errorf("keyring line %d: %w", line, err)
		}
		kr.Add(key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	return kr, nil
}

// Add registers key under its address.
func (k *Keyring) Add(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	k.keys[addr] = key
	return addr
}

// Addresses lists the accounts the keyring can sign for.
func (k *Keyring) Addresses() []common.Address {
	out := make([]common.Address, 0, len(k.keys))
	for addr := range k.keys {
		out = append(out, addr)
	}
	return out
}

// KeyFor returns the key matching authority's signer, which must also be the
// transfer's source account.
func (k *Keyring) KeyFor(auth Authority, from common.Address) (*ecdsa.PrivateKey, error) {
	signer, err := ParseAddress(auth.Signer())
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrTransfer, ErrUnauthorized, err)
	}
	if signer != from {
		return nil, fmt.Errorf("%w: %w: signer %s is not source %s", ErrTransfer, ErrUnauthorized, signer.Hex(), from.Hex())
	}
	key, ok := k.keys[signer]
	if !ok {
		return nil, fmt.Errorf("%w: %w: no key for %s", ErrTransfer, ErrUnauthorized, signer.Hex())
	}
	return key, nil
}

// ParseAddress converts a hex string into common.Address.
func ParseAddress(input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if !common.IsHexAddress(input) {
		return common.Address{}, fmt.Errorf("invalid address: %q", input)
	}
	return common.HexToAddress(input), nil
}
