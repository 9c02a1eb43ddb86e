package server_test

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nigori "github.com/asweigart123/nigori"
	"github.com/asweigart123/nigori/internal/auth"
	"github.com/asweigart123/nigori/internal/server"
	"github.com/asweigart123/nigori/pkg/types"
)

type testClient struct {
	t          *testing.T
	server     *httptest.Server
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	publicHash []byte
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()

	db, err := nigori.Open(nigori.Config{
		DataDir:            t.TempDir(),
		NoncePurgeInterval: -1,
		GCInterval:         -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ts := httptest.NewServer(server.New(db))
	t.Cleanup(ts.Close)

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return &testClient{
		t:          t,
		server:     ts,
		publicKey:  publicKey,
		privateKey: privateKey,
		publicHash: auth.PublicHash(publicKey),
	}
}

func (c *testClient) post(path string, body any) *http.Response {
	c.t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(c.t, err)
	resp, err := http.Post(c.server.URL+path, "application/json", bytes.NewReader(payload))
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *testClient) authBlock(operation string, fields ...[]byte) server.Auth {
	c.t.Helper()
	nonce, err := types.NewNonce(time.Now())
	require.NoError(c.t, err)
	return server.Auth{
		PublicHash: c.publicHash,
		Nonce:      nonce.Token(),
		Signature:  auth.Sign(c.privateKey, nonce, operation, fields...),
	}
}

func (c *testClient) register() *http.Response {
	c.t.Helper()
	nonce, err := types.NewNonce(time.Now())
	require.NoError(c.t, err)
	return c.post("/nigori/register", server.RegisterRequest{
		PublicKey: c.publicKey,
		Nonce:     nonce.Token(),
		Signature: auth.Sign(c.privateKey, nonce, "register", c.publicKey),
	})
}

func TestRegisterPutGetDeleteOverHTTP(t *testing.T) {
	c := newTestClient(t)

	resp := c.register()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var registered server.RegisterResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&registered))
	assert.Equal(t, c.publicHash, registered.PublicHash)

	index := []byte("idx")
	revision := []byte("rev-1")
	value := []byte("ciphertext")

	resp = c.post("/nigori/put", server.PutRequest{
		Auth:     c.authBlock("put", index, revision, value),
		Index:    index,
		Revision: revision,
		Value:    value,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.post("/nigori/get", server.GetRequest{
		Auth:  c.authBlock("get", index, nil),
		Index: index,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got server.GetResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got.Revisions, 1)
	assert.Equal(t, revision, got.Revisions[0].Revision)
	assert.Equal(t, value, got.Revisions[0].Value)

	resp = c.post("/nigori/get-indices", server.GetIndicesRequest{
		Auth: c.authBlock("get-indices"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gotIndices server.GetIndicesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotIndices))
	assert.Equal(t, [][]byte{index}, gotIndices.Indices)

	resp = c.post("/nigori/get-revisions", server.GetRevisionsRequest{
		Auth:  c.authBlock("get-revisions", index),
		Index: index,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var gotRevisions server.GetRevisionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&gotRevisions))
	assert.Equal(t, [][]byte{revision}, gotRevisions.Revisions)

	resp = c.post("/nigori/delete", server.DeleteRequest{
		Auth:  c.authBlock("delete", index),
		Index: index,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.post("/nigori/get", server.GetRequest{
		Auth:  c.authBlock("get", index, nil),
		Index: index,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = c.post("/nigori/unregister", server.UnregisterRequest{
		Auth: c.authBlock("unregister"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterTwiceConflicts(t *testing.T) {
	c := newTestClient(t)

	resp := c.register()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.register()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPutDuplicateRevisionConflicts(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.register().StatusCode)

	index := []byte("idx")
	revision := []byte{0x01}

	resp := c.post("/nigori/put", server.PutRequest{
		Auth:     c.authBlock("put", index, revision, []byte{0xAA}),
		Index:    index,
		Revision: revision,
		Value:    []byte{0xAA},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.post("/nigori/put", server.PutRequest{
		Auth:     c.authBlock("put", index, revision, []byte{0xBB}),
		Index:    index,
		Revision: revision,
		Value:    []byte{0xBB},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestBadSignatureUnauthorized(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.register().StatusCode)

	block := c.authBlock("put", []byte("idx"), []byte("rev"), []byte("val"))
	resp := c.post("/nigori/put", server.PutRequest{
		Auth:     block,
		Index:    []byte("idx"),
		Revision: []byte("rev"),
		Value:    []byte("tampered"),
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestReplayedAuthUnauthorized(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.register().StatusCode)

	block := c.authBlock("get-indices")
	resp := c.post("/nigori/get-indices", server.GetIndicesRequest{Auth: block})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = c.post("/nigori/get-indices", server.GetIndicesRequest{Auth: block})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUnregisteredUserUnauthorized(t *testing.T) {
	c := newTestClient(t)

	resp := c.post("/nigori/get-indices", server.GetIndicesRequest{
		Auth: c.authBlock("get-indices"),
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	c := newTestClient(t)

	resp, err := http.Get(c.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsExposed(t *testing.T) {
	c := newTestClient(t)
	require.Equal(t, http.StatusOK, c.register().StatusCode)

	resp, err := http.Get(c.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
