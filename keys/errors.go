package keys

import "github.com/pkg/errors"

var (
	// ErrMalformedEnvelope means the textual form could not be split into
	// the aimo-sk-<tag>-<base58> envelope, or the base58 body is invalid.
	ErrMalformedEnvelope = errors.New("malformed secret key envelope")
	// ErrWrongLength means the decoded body is not exactly 130 bytes.
	ErrWrongLength = errors.New("secret key length mismatch")
	// ErrUnknownWallet means the wallet byte is outside the supported range.
	ErrUnknownWallet = errors.New("unknown wallet type in secret key")
	// ErrUnsupportedWallet means an encode was attempted for a wallet kind
	// other than Solana.
	ErrUnsupportedWallet = errors.New("wallet type not supported")
	// ErrUnsupportedScopeBits means the scope bitmap has bits set outside
	// the supported mask.
	ErrUnsupportedScopeBits = errors.New("secret key contains unsupported scope bits")
	// ErrSignatureInvalid means the ed25519 signature does not verify the
	// metadata block under the signer public key.
	ErrSignatureInvalid = errors.New("secret key signature invalid")
	// ErrExpired means created_at + valid_for lies in the past.
	ErrExpired = errors.New("secret key expired")
	// ErrMalformedTimestamp means created_at + valid_for is not a valid
	// point in time.
	ErrMalformedTimestamp = errors.New("secret key expiry timestamp invalid")
)
