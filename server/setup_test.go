package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/aimo-network/aimo/db/kv"
	"github.com/aimo-network/aimo/keys"
	"github.com/aimo-network/aimo/router"
)

type testEnv struct {
	srv    *Server
	ts     *httptest.Server
	broker *router.LocalRouter
	store  *kv.Store
}

func setupServer(t *testing.T) *testEnv {
	store, err := kv.NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	broker := router.NewLocalRouter()
	broker.Start()
	t.Cleanup(func() {
		require.NoError(t, broker.Stop())
	})

	srv := New(&Config{
		Host:           "127.0.0.1",
		RequestTimeout: 500 * time.Millisecond,
	}, broker, store)
	ts := httptest.NewServer(srv.handler)
	t.Cleanup(ts.Close)

	return &testEnv{srv: srv, ts: ts, broker: broker, store: store}
}

// mintKey signs a fresh one-hour secret key with a random wallet and encodes
// it under the given scope tag.
func mintKey(t *testing.T, tag string) (string, solana.PrivateKey) {
	priv, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return mintKeyWith(t, priv, tag, keys.Metadata{
		CreatedAt:  time.Now().UnixMilli(),
		ValidFor:   int64(time.Hour / time.Millisecond),
		UsageLimit: 0,
		Scopes:     []keys.Scope{keys.ScopeCompletionModel},
	}), priv
}

func mintKeyWith(t *testing.T, priv solana.PrivateKey, tag string, md keys.Metadata) string {
	sig, err := priv.Sign(keys.MetadataBytes(&md))
	require.NoError(t, err)
	key := &keys.SecretKey{
		Version:   1,
		Wallet:    keys.WalletSolana,
		Signer:    priv.PublicKey().String(),
		Signature: sig.String(),
		Metadata:  md,
	}
	encoded, err := key.Encode(tag)
	require.NoError(t, err)
	return encoded
}

func postJSON(t *testing.T, env *testEnv, path, bearer string, body interface{}) *http.Response {
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+path, bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, resp.Body.Close())
	})
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
