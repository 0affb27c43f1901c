package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	dummyPath       = "dummy.key"
	dummyKeyContent = []byte("dummy content")
)

func testDummyKeyServer(requests *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.ServeContent(w, r, dummyPath, time.Now(), bytes.NewReader(dummyKeyContent))
	}))
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "zkdisclosure-artifacts-test")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(BaseDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestDownloadAndLoad(t *testing.T) {
	c := qt.New(t)
	var requests atomic.Int32
	server := testDummyKeyServer(&requests)
	defer server.Close()

	expectedHash := sha256.Sum256(dummyKeyContent)
	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)
	dummyKey := &Artifact{
		RemoteURL: remoteURL,
		Hash:      expectedHash[:],
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// not downloaded yet
	c.Assert(dummyKey.Load(), qt.IsNotNil)
	c.Assert(dummyKey.Download(ctx), qt.IsNil)
	c.Assert(dummyKey.Load(), qt.IsNil)
	c.Assert(dummyKey.Content, qt.DeepEquals, dummyKeyContent)
	c.Assert(requests.Load(), qt.Equals, int32(1))

	// already in the cache, no new request
	c.Assert(dummyKey.Download(ctx), qt.IsNil)
	c.Assert(requests.Load(), qt.Equals, int32(1))
}

func TestDownloadHashMismatch(t *testing.T) {
	c := qt.New(t)
	var requests atomic.Int32
	server := testDummyKeyServer(&requests)
	defer server.Close()

	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)
	wrongHash := sha256.Sum256([]byte("other content"))
	dummyKey := &Artifact{RemoteURL: remoteURL, Hash: wrongHash[:]}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = dummyKey.Download(ctx)
	c.Assert(err, qt.ErrorIs, errHashMismatch)
	// permanent errors are not retried
	c.Assert(requests.Load(), qt.Equals, int32(1))
}

func TestStore(t *testing.T) {
	c := qt.New(t)
	content := []byte("proving key bytes")
	stored := &Artifact{Content: content}
	c.Assert(stored.Store(), qt.IsNil)
	expectedHash := sha256.Sum256(content)
	c.Assert([]byte(stored.Hash), qt.DeepEquals, expectedHash[:])

	loaded := &Artifact{Hash: stored.Hash}
	c.Assert(loaded.Load(), qt.IsNil)
	c.Assert(loaded.Content, qt.DeepEquals, content)

	mismatch := &Artifact{Content: content, Hash: []byte("wrong hash")}
	c.Assert(mismatch.Store(), qt.ErrorIs, errHashMismatch)
	c.Assert((&Artifact{}).Store(), qt.IsNotNil)
}

func TestCircuitArtifacts(t *testing.T) {
	c := qt.New(t)
	ca := NewCircuitArtifacts(
		&Artifact{Content: []byte("circuit")},
		&Artifact{Content: []byte("pk")},
		&Artifact{Content: []byte("vk")},
	)
	c.Assert(ca.StoreAll(), qt.IsNil)
	circuit, pk, vk := ca.Hashes()

	reloaded := NewCircuitArtifacts(&Artifact{Hash: circuit}, &Artifact{Hash: pk}, &Artifact{Hash: vk})
	c.Assert(reloaded.LoadAll(), qt.IsNil)
	c.Assert([]byte(reloaded.CircuitDefinition()), qt.DeepEquals, []byte("circuit"))
	c.Assert([]byte(reloaded.ProvingKey()), qt.DeepEquals, []byte("pk"))
	c.Assert([]byte(reloaded.VerifyingKey()), qt.DeepEquals, []byte("vk"))

	// verifier only artifacts
	verifierOnly := NewCircuitArtifacts(&Artifact{Hash: circuit}, nil, &Artifact{Hash: vk})
	c.Assert(verifierOnly.LoadAll(), qt.IsNil)
	c.Assert(verifierOnly.ProvingKey(), qt.IsNil)
}
