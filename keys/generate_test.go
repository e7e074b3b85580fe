package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeypairFile writes keypair in the id.json format produced by
// `solana-keygen new`: a JSON array of the 64 private key bytes.
func writeKeypairFile(t *testing.T, keypair solana.PrivateKey) string {
	t.Helper()
	raw := make([]int, len(keypair))
	for i, b := range keypair {
		raw[i] = int(b)
	}
	enc, err := json.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, enc, 0600))
	return path
}

func TestGenerate(t *testing.T) {
	keypair, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	idPath := writeKeypairFile(t, keypair)

	encoded, err := Generate("dev", 90, []Scope{ScopeCompletionModel}, 0, idPath)
	require.NoError(t, err)

	tag, sk, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "dev", tag)
	assert.Equal(t, keypair.PublicKey().String(), sk.Signer)
	assert.Equal(t, int64(90*millisecondsPerDay), sk.Metadata.ValidFor)
	assert.Equal(t, uint64(0), sk.Metadata.UsageLimit)
	require.NoError(t, sk.Verify())

	// created_at stamped from the wall clock.
	now := time.Now().UnixMilli()
	assert.True(t, sk.Metadata.CreatedAt <= now && sk.Metadata.CreatedAt > now-10_000)
}

func TestLoadKeypair_MissingFile(t *testing.T) {
	_, err := LoadKeypair(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
