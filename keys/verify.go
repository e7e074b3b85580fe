package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// maxTimestampMillis is 9999-12-31T23:59:59.999Z. Expiries past it cannot
// come from a real clock and are treated as malformed rather than as
// far-future valid keys.
const maxTimestampMillis = 253402300799999

// Verify checks that the signer's wallet signed exactly the 32-byte
// metadata block and that the key has not expired. The scope tag of the
// envelope takes no part in verification.
func (k *SecretKey) Verify() error {
	pub, err := solana.PublicKeyFromBase58(k.Signer)
	if err != nil {
		return errors.Wrap(ErrSignatureInvalid, err.Error())
	}
	sig, err := solana.SignatureFromBase58(k.Signature)
	if err != nil {
		return errors.Wrap(ErrSignatureInvalid, err.Error())
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), MetadataBytes(&k.Metadata), sig[:]) {
		return ErrSignatureInvalid
	}

	expiry := k.Metadata.CreatedAt + k.Metadata.ValidFor
	if k.Metadata.ValidFor > 0 && expiry < k.Metadata.CreatedAt {
		return errors.Wrapf(ErrMalformedTimestamp, "created_at %d + valid_for %d overflows", k.Metadata.CreatedAt, k.Metadata.ValidFor)
	}
	if expiry > maxTimestampMillis {
		return errors.Wrapf(ErrMalformedTimestamp, "expiry %d is out of range", expiry)
	}
	if !time.UnixMilli(expiry).After(time.Now()) {
		return ErrExpired
	}
	return nil
}

// ContentHash returns the SHA-256 digest of the key's 130-byte binary form.
// Two textually distinct envelopes carrying byte-identical payloads hash to
// the same value, so the digest serves as the key's revocation identity.
func (k *SecretKey) ContentHash() ([32]byte, error) {
	raw, err := k.raw()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(raw.marshal()), nil
}
