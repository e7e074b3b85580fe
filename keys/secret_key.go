// Package keys implements the versioned, fixed-layout secret key format used
// to authenticate both clients and providers. A key is a 130-byte binary
// payload (version, wallet kind, signer public key, signature, metadata
// block) carried inside a textual envelope of the form
// aimo-sk-<scope-tag>-<base58>.
package keys

import (
	"github.com/pkg/errors"
)

// Wallet identifies the kind of wallet that signed a secret key.
type Wallet string

// Wallet kinds. Solana is the only kind accepted today; the wallet byte in
// the binary layout leaves room for 255 more.
const (
	WalletSolana Wallet = "solana"
)

// Scope is a capability flag carried in the secret key's scope bitmap.
type Scope string

// Supported scopes, lower bits first.
const (
	ScopeCompletionModel Scope = "completion_model"
)

const (
	// completionModelBit is the bitmap position of ScopeCompletionModel.
	completionModelBit = 0
	// supportedScopeBits masks every bitmap bit with an assigned meaning.
	// Set bits outside this mask make a key undecodable.
	supportedScopeBits uint64 = 1 << completionModelBit
)

// ParseScope converts a string into a known Scope.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeCompletionModel:
		return ScopeCompletionModel, nil
	default:
		return "", errors.Errorf("scope %q not supported", s)
	}
}

// Metadata is the signed portion of a secret key. CreatedAt is unix
// milliseconds, ValidFor a duration in milliseconds. A UsageLimit of 0 means
// unlimited; the field is serialized but not enforced anywhere yet.
type Metadata struct {
	CreatedAt  int64   `json:"created_at"`
	ValidFor   int64   `json:"valid_for"`
	UsageLimit uint64  `json:"usage_limit"`
	Scopes     []Scope `json:"scopes"`
}

// SecretKey is the decoded form of a v1 secret key. Signer and Signature are
// base58 strings, matching how Solana tooling renders public keys and
// ed25519 signatures.
type SecretKey struct {
	Version   uint8    `json:"version"`
	Wallet    Wallet   `json:"wallet"`
	Signer    string   `json:"signer"`
	Signature string   `json:"signature"`
	Metadata  Metadata `json:"metadata"`
}

// scopeBitmap folds the scope list into the bitmap persisted in the binary
// layout.
func (m *Metadata) scopeBitmap() uint64 {
	var bm uint64
	for _, s := range m.Scopes {
		switch s {
		case ScopeCompletionModel:
			bm |= 1 << completionModelBit
		}
	}
	return bm
}

// scopesFromBitmap expands a bitmap back into a scope list. Bits outside the
// supported mask are a decode error.
func scopesFromBitmap(bm uint64) ([]Scope, error) {
	if bm&^supportedScopeBits != 0 {
		return nil, errors.Wrapf(ErrUnsupportedScopeBits, "bitmap %#x", bm)
	}
	var scopes []Scope
	if bm&(1<<completionModelBit) != 0 {
		scopes = append(scopes, ScopeCompletionModel)
	}
	return scopes, nil
}
