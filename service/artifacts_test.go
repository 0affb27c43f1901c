package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/zk-disclosure/circuits"
)

func TestDownloadArtifacts(t *testing.T) {
	c := qt.New(t)
	circuits.BaseDir = t.TempDir()

	content := map[string][]byte{
		"/circuit": []byte("circuit definition"),
		"/vk":      []byte("verifying key"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := content[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Now(), bytes.NewReader(data))
	}))
	defer server.Close()

	artifact := func(path string) *circuits.Artifact {
		hash := sha256.Sum256(content[path])
		return &circuits.Artifact{RemoteURL: server.URL + path, Hash: hash[:]}
	}
	first := circuits.NewCircuitArtifacts(artifact("/circuit"), nil, nil)
	second := circuits.NewCircuitArtifacts(nil, nil, artifact("/vk"))

	c.Assert(DownloadArtifacts(context.Background(), 5*time.Second, first, second, nil), qt.IsNil)
	c.Assert(first.LoadAll(), qt.IsNil)
	c.Assert(second.LoadAll(), qt.IsNil)
	c.Assert([]byte(first.CircuitDefinition()), qt.DeepEquals, content["/circuit"])
	c.Assert([]byte(second.VerifyingKey()), qt.DeepEquals, content["/vk"])
}
