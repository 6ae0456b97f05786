package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
)

// KeyScheme generates keypairs for one chain and derives the textual address.
type KeyScheme interface {
	Chain() string
	Generate() (address string, privateKey string, err error)
	AddressFromPrivateKey(privateKey string) (string, error)
}

var schemes = map[string]KeyScheme{
	"solana":   solanaScheme{},
	"ethereum": ethereumScheme{},
}

// Scheme looks up a registered key scheme by chain name.
func Scheme(chain string) (KeyScheme, error) {
	s, ok := schemes[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("unsupported chain %q (supported: %s)", chain, strings.Join(Chains(), ", "))
	}
	return s, nil
}

func Chains() []string {
	out := make([]string, 0, len(schemes))
	for name := range schemes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// solana: ed25519 seed in hex, address is base58 of the public key.
type solanaScheme struct{}

func (solanaScheme) Chain() string { return "solana" }

func (solanaScheme) Generate() (string, string, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	return base58.Encode(pub), hex.EncodeToString(priv.Seed()), nil
}

func (solanaScheme) AddressFromPrivateKey(privateKey string) (string, error) {
	seed, err := hex.DecodeString(privateKey)
	if err != nil {
		return "", err
	}
	if len(seed) != ed25519.SeedSize {
		return "", fmt.Errorf("solana seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	pub := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
	return base58.Encode(pub), nil
}

// ethereum: secp256k1, EIP-55 checksum address.
type ethereumScheme struct{}

func (ethereumScheme) Chain() string { return "ethereum" }

func (ethereumScheme) Generate() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), hex.EncodeToString(crypto.FromECDSA(key)), nil
}

func (ethereumScheme) AddressFromPrivateKey(privateKey string) (string, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}
