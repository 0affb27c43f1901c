// Package circuits keeps a local cache of circuit artifacts addressed by their
// sha256 hash, downloading the missing ones on demand.
package circuits

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/types"
)

const (
	checkHashesEnv  = "ZKDISCLOSURE_CHECK_HASHES"
	artifactsDirEnv = "ZKDISCLOSURE_ARTIFACTS_DIR"

	partialSuffix    = ".partial"
	progressInterval = 10 * time.Second
)

// CheckHashes enables the integrity check of cached and downloaded
// artifacts. Setting ZKDISCLOSURE_CHECK_HASHES to false or 0 disables it.
var CheckHashes = true

// BaseDir is the directory of the artifact cache. It defaults to
// ZKDISCLOSURE_ARTIFACTS_DIR or to a directory in the user cache.
var BaseDir string

// errHashMismatch is returned when the content of an artifact does not match
// its expected hash.
var errHashMismatch = errors.New("hash mismatch")

func init() {
	switch strings.ToLower(os.Getenv(checkHashesEnv)) {
	case "false", "0":
		CheckHashes = false
	}
	if dir := os.Getenv(artifactsDirEnv); dir != "" {
		BaseDir = dir
		return
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		log.Warnf("unable to access user home directory, using temporary directory: %v", err)
		BaseDir = filepath.Join(os.TempDir(), "zkdisclosure-artifacts")
		return
	}
	BaseDir = filepath.Join(home, ".cache", "zkdisclosure-artifacts")
}

// Artifact is a file of the cache: its content, the sha256 hash that names
// it and an optional URL to fetch it from.
type Artifact struct {
	RemoteURL string
	Hash      []byte
	Content   []byte
}

// Load reads the artifact content from the cache, unless it is already in
// memory.
func (k *Artifact) Load() error {
	if len(k.Content) > 0 {
		return nil
	}
	if len(k.Hash) == 0 {
		return fmt.Errorf("artifact hash not provided")
	}
	content, err := readCached(k.Hash)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("artifact %x not found in %s", k.Hash, BaseDir)
	}
	k.Content = content
	return nil
}

// Download fetches the artifact into the cache if it is not there yet.
// Transient failures are retried with exponential backoff until ctx is done;
// a content that does not match the hash is not retried.
func (k *Artifact) Download(ctx context.Context) error {
	if content, err := readCached(k.Hash); err == nil && content != nil {
		return nil
	}
	if k.RemoteURL == "" {
		return fmt.Errorf("artifact %x not cached and remote url not provided", k.Hash)
	}
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	return backoff.RetryNotify(func() error {
		err := fetch(ctx, k.Hash, k.RemoteURL)
		if errors.Is(err, errHashMismatch) {
			return backoff.Permanent(err)
		}
		return err
	}, bo, func(err error, next time.Duration) {
		log.Warnw("artifact download failed, retrying", "url", k.RemoteURL, "error", err, "next", next.String())
	})
}

// Store writes the artifact content to the cache. A missing hash is
// computed from the content, a present one must match it.
func (k *Artifact) Store() error {
	if len(k.Content) == 0 {
		return fmt.Errorf("artifact has no content")
	}
	sum := sha256.Sum256(k.Content)
	switch {
	case len(k.Hash) == 0:
		k.Hash = sum[:]
	case !bytes.Equal(k.Hash, sum[:]):
		return fmt.Errorf("%w: expected %x, got %x", errHashMismatch, k.Hash, sum)
	}
	path, err := cachePath(k.Hash)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+partialSuffix, k.Content, 0o644); err != nil {
		return fmt.Errorf("error writing artifact file: %w", err)
	}
	if err := os.Rename(path+partialSuffix, path); err != nil {
		return fmt.Errorf("error renaming artifact file: %w", err)
	}
	return nil
}

// CircuitArtifacts groups the artifacts of a circuit: the compiled
// constraint system, the proving key and the verifying key. Any of them may
// be nil, a verifier only needs the verifying key.
type CircuitArtifacts struct {
	circuitDefinition *Artifact
	provingKey        *Artifact
	verifyingKey      *Artifact
}

// NewCircuitArtifacts groups the artifacts provided.
func NewCircuitArtifacts(circuit, provingKey, verifyingKey *Artifact) *CircuitArtifacts {
	return &CircuitArtifacts{
		circuitDefinition: circuit,
		provingKey:        provingKey,
		verifyingKey:      verifyingKey,
	}
}

// each calls fn for every artifact set, in definition, proving key,
// verifying key order, stopping at the first error.
func (ca *CircuitArtifacts) each(op string, fn func(*Artifact) error) error {
	for _, entry := range []struct {
		name     string
		artifact *Artifact
	}{
		{"circuit definition", ca.circuitDefinition},
		{"proving key", ca.provingKey},
		{"verifying key", ca.verifyingKey},
	} {
		if entry.artifact == nil {
			continue
		}
		if err := fn(entry.artifact); err != nil {
			return fmt.Errorf("error %s %s: %w", op, entry.name, err)
		}
	}
	return nil
}

// LoadAll loads every artifact from the cache.
func (ca *CircuitArtifacts) LoadAll() error {
	return ca.each("loading", (*Artifact).Load)
}

// DownloadAll fetches every artifact missing from the cache.
func (ca *CircuitArtifacts) DownloadAll(ctx context.Context) error {
	return ca.each("downloading", func(a *Artifact) error {
		return a.Download(ctx)
	})
}

// StoreAll writes every artifact to the cache.
func (ca *CircuitArtifacts) StoreAll() error {
	return ca.each("storing", (*Artifact).Store)
}

// Hashes returns the hashes of the circuit definition, the proving key and
// the verifying key, in that order. Missing artifacts have a nil hash.
func (ca *CircuitArtifacts) Hashes() (circuit, provingKey, verifyingKey types.HexBytes) {
	return hashOf(ca.circuitDefinition), hashOf(ca.provingKey), hashOf(ca.verifyingKey)
}

// CircuitDefinition returns the loaded constraint system, or nil.
func (ca *CircuitArtifacts) CircuitDefinition() types.HexBytes {
	return contentOf(ca.circuitDefinition)
}

// ProvingKey returns the loaded proving key, or nil.
func (ca *CircuitArtifacts) ProvingKey() types.HexBytes {
	return contentOf(ca.provingKey)
}

// VerifyingKey returns the loaded verifying key, or nil.
func (ca *CircuitArtifacts) VerifyingKey() types.HexBytes {
	return contentOf(ca.verifyingKey)
}

func hashOf(a *Artifact) types.HexBytes {
	if a == nil {
		return nil
	}
	return a.Hash
}

func contentOf(a *Artifact) types.HexBytes {
	if a == nil {
		return nil
	}
	return a.Content
}

// cachePath returns the cache file of the digest, creating BaseDir if needed.
func cachePath(digest []byte) (string, error) {
	if err := os.MkdirAll(BaseDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating the artifacts directory: %w", err)
	}
	return filepath.Join(BaseDir, hex.EncodeToString(digest)), nil
}

func checkHash(h hash.Hash, expected []byte) error {
	if !CheckHashes {
		return nil
	}
	if got := h.Sum(nil); !bytes.Equal(got, expected) {
		return fmt.Errorf("%w: expected %x, got %x", errHashMismatch, expected, got)
	}
	return nil
}

// readCached returns the cached content of the digest, or nil if it is not
// cached.
func readCached(digest []byte) ([]byte, error) {
	path, err := cachePath(digest)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading artifact file %s: %w", path, err)
	}
	h := sha256.New()
	h.Write(content)
	if err := checkHash(h, digest); err != nil {
		return nil, fmt.Errorf("artifact file %s: %w", path, err)
	}
	return content, nil
}

// countingReader counts the bytes read through it.
type countingReader struct {
	io.Reader
	n atomic.Int64
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	r.n.Add(int64(n))
	return n, err
}

// fetch downloads the artifact at fileURL into the cache. An interrupted
// download leaves a partial file that the next attempt resumes with a Range
// request.
func fetch(ctx context.Context, expectedHash []byte, fileURL string) error {
	if _, err := url.Parse(fileURL); err != nil {
		return fmt.Errorf("invalid artifact url: %w", err)
	}
	path, err := cachePath(expectedHash)
	if err != nil {
		return err
	}
	partialPath := path + partialSuffix

	h := sha256.New()
	var offset int64
	if partial, err := os.Open(partialPath); err == nil {
		offset, _ = io.Copy(h, partial)
		partial.Close()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return fmt.Errorf("error creating the artifact request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("error requesting %s: %w", fileURL, err)
	}
	defer res.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	switch {
	case res.StatusCode == http.StatusPartialContent && offset > 0:
		flags = os.O_APPEND | os.O_WRONLY
	case res.StatusCode == http.StatusOK:
		// the server ignored the range, start over
		h.Reset()
		offset = 0
	default:
		return fmt.Errorf("error downloading %s: http status %d", fileURL, res.StatusCode)
	}
	fd, err := os.OpenFile(partialPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("error opening artifact file: %w", err)
	}
	defer fd.Close()

	body := &countingReader{Reader: res.Body}
	stop := logProgress(fileURL, body, offset, res.ContentLength)
	_, err = io.Copy(io.MultiWriter(fd, h), body)
	stop()
	if err != nil {
		return fmt.Errorf("error writing artifact file: %w", err)
	}
	if err := checkHash(h, expectedHash); err != nil {
		_ = os.Remove(partialPath)
		return err
	}
	if err := os.Rename(partialPath, path); err != nil {
		return fmt.Errorf("error renaming artifact file: %w", err)
	}
	return nil
}

// logProgress logs the download progress periodically until the returned
// function is called.
func logProgress(fileURL string, body *countingReader, offset, length int64) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				total := offset + body.n.Load()
				var progress float64
				if length > 0 {
					progress = float64(total) / float64(offset+length) * 100
				}
				log.Debugw("downloading artifact", "url", fileURL,
					"downloaded", fmt.Sprintf("%.2fMiB", float64(total)/(1<<20)),
					"progress", fmt.Sprintf("%.2f%%", progress))
			}
		}
	}()
	return func() { close(done) }
}
