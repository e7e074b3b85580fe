package server

import (
	"crypto/ed25519"
	"encoding/json"
	"net/http"

	"github.com/gagliardetto/solana-go"

	"github.com/aimo-network/aimo/keys"
)

// MetadataBytesRequest wraps the metadata a wallet wants rendered for
// signing.
type MetadataBytesRequest struct {
	Metadata keys.Metadata `json:"metadata"`
}

// GenerateKeyRequest carries an already signed key payload to be encoded.
type GenerateKeyRequest struct {
	Payload keys.SecretKey `json:"payload"`
}

// GenerateKeyResponse returns the encoded secret key string.
type GenerateKeyResponse struct {
	SecretKey string `json:"secret_key"`
}

// VerifyKeyRequest carries an encoded secret key to validate.
type VerifyKeyRequest struct {
	SecretKey string `json:"secret_key"`
}

// VerifyKeyResponse reports the verification outcome along with the decoded
// payload.
type VerifyKeyResponse struct {
	Result  bool            `json:"result"`
	Reason  string          `json:"reason,omitempty"`
	Payload *keys.SecretKey `json:"payload"`
}

// RevokeKeyRequest asks to revoke an encoded key, proven by the owning
// wallet's signature over the encoded string itself.
type RevokeKeyRequest struct {
	SecretKey string `json:"secret_key"`
	Signer    string `json:"signer"`
	Signature string `json:"signature"`
}

// MetadataBytes renders the exact 32-byte block a wallet must sign for the
// given metadata, as a JSON byte array.
//
// GET /api/v1/keys/metadata_bytes
func (s *Server) MetadataBytes(w http.ResponseWriter, r *http.Request) {
	var body MetadataBytesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	block := keys.MetadataBytes(&body.Metadata)
	out := make([]int, len(block))
	for i, b := range block {
		out[i] = int(b)
	}
	writeJSON(w, http.StatusOK, out)
}

// GenerateKey encodes a signed key payload into its textual envelope under
// the admitted scope tag.
//
// POST /api/v1/keys/generate
func (s *Server) GenerateKey(w http.ResponseWriter, r *http.Request) {
	var body GenerateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	encoded, err := body.Payload.Encode(admittedScopeTag)
	if err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, &GenerateKeyResponse{SecretKey: encoded})
}

// VerifyKey decodes and verifies an encoded secret key.
//
// POST /api/v1/keys/verify
func (s *Server) VerifyKey(w http.ResponseWriter, r *http.Request) {
	var body VerifyKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tag, key, err := keys.Decode(body.SecretKey)
	if err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if tag != admittedScopeTag {
		handleError(w, "scope "+tag+" not supported", http.StatusBadRequest)
		return
	}
	resp := &VerifyKeyResponse{Payload: key}
	if err := key.Verify(); err != nil {
		resp.Reason = err.Error()
	} else {
		resp.Result = true
	}
	writeJSON(w, http.StatusOK, resp)
}

// RevokeKey persists a key's content hash after checking that the wallet
// named by signer signed the encoded secret-key string and owns the key.
//
// POST /api/v1/keys/revoke
func (s *Server) RevokeKey(w http.ResponseWriter, r *http.Request) {
	var body RevokeKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	pub, err := solana.PublicKeyFromBase58(body.Signer)
	if err != nil {
		handleError(w, "invalid signer public key", http.StatusBadRequest)
		return
	}
	sig, err := solana.SignatureFromBase58(body.Signature)
	if err != nil {
		handleError(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), []byte(body.SecretKey), sig[:]) {
		handleError(w, "signature does not cover the secret key", http.StatusUnauthorized)
		return
	}
	_, key, err := keys.Decode(body.SecretKey)
	if err != nil {
		handleError(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Only the wallet that signed the key may revoke it.
	if key.Signer != body.Signer {
		handleError(w, "signer does not own this secret key", http.StatusUnauthorized)
		return
	}
	if err := s.database.RevokeKey(r.Context(), body.SecretKey); err != nil {
		handleError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
