// Package fixture implements the "save_downloaded"/"use_saved" replay
// seam named in spec.md §6: a SavingTransport persists every round trip
// to disk (body plus a header sidecar) so a later run's ReplayTransport
// can substitute a local file read for the network request, without
// threading file-IO concerns through the prober core itself.
package fixture

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// sidecar mirrors the response fields a prober actually reads. It is
// the on-disk header record next to the saved body, matching the
// gharchive CachedFetcher's body-file-plus-meta-sidecar layout.
type sidecar struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
}

// key derives a stable filename from the request method and URL so
// repeated sweeps against the same resource land on the same fixture.
func key(req *http.Request) string {
	sum := sha256.Sum256([]byte(req.Method + " " + req.URL.String()))
	return hex.EncodeToString(sum[:])
}

func paths(dir string, req *http.Request) (body, meta string) {
	k := key(req)
	return filepath.Join(dir, k+".body"), filepath.Join(dir, k+".json")
}

// SavingTransport wraps a base RoundTripper and persists every response
// it returns under Dir before handing it back to the caller, mirroring
// CachedFetcher.writeResponseToCache's atomic-write-then-rename pattern.
type SavingTransport struct {
	Base http.RoundTripper
	Dir  string
}

func (t *SavingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip executes the request and writes the response to disk,
// returning a fresh reader so the original body is still usable by the
// caller.
func (t *SavingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base().RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(t.Dir, 0o755); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("fixture: mkdir %s: %w", t.Dir, err)
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("fixture: read body: %w", err)
	}

	bodyPath, metaPath := paths(t.Dir, req)
	if err := writeAtomic(bodyPath, body); err != nil {
		return nil, fmt.Errorf("fixture: save body: %w", err)
	}
	meta := sidecar{StatusCode: resp.StatusCode, Header: resp.Header}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("fixture: marshal sidecar: %w", err)
	}
	if err := writeAtomic(metaPath, metaBytes); err != nil {
		return nil, fmt.Errorf("fixture: save sidecar: %w", err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp, nil
}

// ReplayTransport substitutes a saved fixture for the network round
// trip. A missing fixture is a transport failure (the prober's retry
// policy will classify and surface it), matching retrieval.py's
// behavior of raising when use_saved is set but no saved copy exists.
type ReplayTransport struct {
	Dir string
}

// RoundTrip reads the saved body and sidecar for req instead of issuing
// the request over the network.
func (t *ReplayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	bodyPath, metaPath := paths(t.Dir, req)

	metaBytes, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("fixture: no saved response for %s %s: %w", req.Method, req.URL, err)
	}
	var meta sidecar
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("fixture: decode sidecar: %w", err)
	}

	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil, fmt.Errorf("fixture: no saved body for %s %s: %w", req.Method, req.URL, err)
	}

	return &http.Response{
		StatusCode:    meta.StatusCode,
		Status:        http.StatusText(meta.StatusCode),
		Header:        meta.Header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}

// writeAtomic mirrors CachedFetcher's tmp-file-then-rename write, so a
// concurrent reader never observes a partially written fixture.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
