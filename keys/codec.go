package keys

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

const (
	// EncodedLength is the size of the fixed v1 binary layout:
	// 1 version + 1 wallet + 32 signer + 64 signature + 32 metadata.
	EncodedLength = 130
	// MetadataLength is the size of the big-endian metadata block.
	MetadataLength = 32

	versionV1 = 1

	envelopeParts = 4
	envelopeOrg   = "aimo"
	envelopeKind  = "sk"
)

// Wallet enum bytes in the binary layout.
const (
	walletByteSolana      byte = 0x00
	totalWalletsSupported byte = 1
)

// rawSecretKey is the wire-layout twin of SecretKey.
type rawSecretKey struct {
	version   byte
	wallet    byte
	signer    [32]byte
	signature [64]byte
	metadata  rawMetadata
}

// rawMetadata is the 32-byte big-endian metadata block. Big-endian keeps the
// byte ordering stable across platforms and makes the block the exact
// message signed by the wallet.
type rawMetadata struct {
	createdAt  int64
	validFor   int64
	usageLimit uint64
	scopes     uint64
}

// MetadataBytes returns the exact 32-byte block a wallet must sign for the
// given metadata.
func MetadataBytes(m *Metadata) []byte {
	raw := rawMetadata{
		createdAt:  m.CreatedAt,
		validFor:   m.ValidFor,
		usageLimit: m.UsageLimit,
		scopes:     m.scopeBitmap(),
	}
	return raw.marshal()
}

func (m rawMetadata) marshal() []byte {
	b := make([]byte, MetadataLength)
	binary.BigEndian.PutUint64(b[0:8], uint64(m.createdAt))
	binary.BigEndian.PutUint64(b[8:16], uint64(m.validFor))
	binary.BigEndian.PutUint64(b[16:24], m.usageLimit)
	binary.BigEndian.PutUint64(b[24:32], m.scopes)
	return b
}

func unmarshalRawMetadata(b []byte) (rawMetadata, error) {
	if len(b) != MetadataLength {
		return rawMetadata{}, errors.Wrapf(ErrWrongLength, "metadata block is %d bytes, want %d", len(b), MetadataLength)
	}
	return rawMetadata{
		createdAt:  int64(binary.BigEndian.Uint64(b[0:8])),
		validFor:   int64(binary.BigEndian.Uint64(b[8:16])),
		usageLimit: binary.BigEndian.Uint64(b[16:24]),
		scopes:     binary.BigEndian.Uint64(b[24:32]),
	}, nil
}

func (k rawSecretKey) marshal() []byte {
	b := make([]byte, 0, EncodedLength)
	b = append(b, k.version, k.wallet)
	b = append(b, k.signer[:]...)
	b = append(b, k.signature[:]...)
	b = append(b, k.metadata.marshal()...)
	return b
}

func unmarshalRawSecretKey(b []byte) (rawSecretKey, error) {
	if len(b) != EncodedLength {
		return rawSecretKey{}, errors.Wrapf(ErrWrongLength, "body is %d bytes, want %d", len(b), EncodedLength)
	}
	raw := rawSecretKey{version: b[0], wallet: b[1]}
	copy(raw.signer[:], b[2:34])
	copy(raw.signature[:], b[34:98])
	md, err := unmarshalRawMetadata(b[98:130])
	if err != nil {
		return rawSecretKey{}, err
	}
	raw.metadata = md
	return raw, nil
}

// raw converts a decoded key into its wire layout. Only Solana wallets can
// be serialized.
func (k *SecretKey) raw() (rawSecretKey, error) {
	if k.Wallet != WalletSolana {
		return rawSecretKey{}, errors.Wrapf(ErrUnsupportedWallet, "wallet %q", k.Wallet)
	}
	signer, err := solana.PublicKeyFromBase58(k.Signer)
	if err != nil {
		return rawSecretKey{}, errors.Wrap(err, "could not parse signer public key")
	}
	sig, err := solana.SignatureFromBase58(k.Signature)
	if err != nil {
		return rawSecretKey{}, errors.Wrap(err, "could not parse signature")
	}
	raw := rawSecretKey{
		version: k.Version,
		wallet:  walletByteSolana,
		metadata: rawMetadata{
			createdAt:  k.Metadata.CreatedAt,
			validFor:   k.Metadata.ValidFor,
			usageLimit: k.Metadata.UsageLimit,
			scopes:     k.Metadata.scopeBitmap(),
		},
	}
	copy(raw.signer[:], signer[:])
	copy(raw.signature[:], sig[:])
	return raw, nil
}

func (k rawSecretKey) decoded() (*SecretKey, error) {
	if k.wallet >= totalWalletsSupported {
		return nil, errors.Wrapf(ErrUnknownWallet, "wallet byte %#x", k.wallet)
	}
	scopes, err := scopesFromBitmap(k.metadata.scopes)
	if err != nil {
		return nil, err
	}
	return &SecretKey{
		Version:   k.version,
		Wallet:    WalletSolana,
		Signer:    solana.PublicKeyFromBytes(k.signer[:]).String(),
		Signature: base58.Encode(k.signature[:]),
		Metadata: Metadata{
			CreatedAt:  k.metadata.createdAt,
			ValidFor:   k.metadata.validFor,
			UsageLimit: k.metadata.usageLimit,
			Scopes:     scopes,
		},
	}, nil
}

// Encode serializes the key into its textual envelope with the given scope
// tag. The tag rides on top of the binary payload and is not signed.
func (k *SecretKey) Encode(tag string) (string, error) {
	raw, err := k.raw()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%s", envelopeOrg, envelopeKind, tag, base58.Encode(raw.marshal())), nil
}

// Decode parses a textual secret key and returns its scope tag and payload.
func Decode(s string) (string, *SecretKey, error) {
	parts := strings.SplitN(s, "-", envelopeParts)
	if len(parts) != envelopeParts || parts[0] != envelopeOrg || parts[1] != envelopeKind {
		return "", nil, errors.Wrap(ErrMalformedEnvelope, "could not split secret key into valid parts")
	}
	tag := parts[2]
	body, err := base58.Decode(parts[3])
	if err != nil {
		return "", nil, errors.Wrap(ErrMalformedEnvelope, err.Error())
	}
	raw, err := unmarshalRawSecretKey(body)
	if err != nil {
		return "", nil, err
	}
	if raw.version != versionV1 {
		return "", nil, errors.Wrapf(ErrMalformedEnvelope, "unsupported secret key version %d", raw.version)
	}
	key, err := raw.decoded()
	if err != nil {
		return "", nil, err
	}
	return tag, key, nil
}
