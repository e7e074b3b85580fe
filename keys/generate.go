package keys

import (
	"os"
	"path/filepath"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

const millisecondsPerDay = 24 * 60 * 60 * 1000

// LoadKeypair reads a Solana wallet keypair from an id.json file as written
// by `solana-keygen new`. An empty path falls back to the conventional
// ~/.config/solana/id.json location.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "could not locate home directory")
		}
		path = filepath.Join(home, ".config", "solana", "id.json")
	}
	priv, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read keypair file %s", path)
	}
	return priv, nil
}

// Generate builds, signs and encodes a fresh v1 secret key. validForDays is
// converted to milliseconds here; everything past this boundary works in
// milliseconds only.
func Generate(tag string, validForDays uint, scopes []Scope, usageLimit uint64, idPath string) (string, error) {
	keypair, err := LoadKeypair(idPath)
	if err != nil {
		return "", err
	}
	md := Metadata{
		CreatedAt:  time.Now().UnixMilli(),
		ValidFor:   int64(validForDays) * millisecondsPerDay,
		UsageLimit: usageLimit,
		Scopes:     scopes,
	}
	sig, err := keypair.Sign(MetadataBytes(&md))
	if err != nil {
		return "", errors.Wrap(err, "could not sign metadata block")
	}
	key := &SecretKey{
		Version:   versionV1,
		Wallet:    WalletSolana,
		Signer:    keypair.PublicKey().String(),
		Signature: sig.String(),
		Metadata:  md,
	}
	return key.Encode(tag)
}
