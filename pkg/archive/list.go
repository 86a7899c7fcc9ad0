package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoManifest is returned for archives without a manifest.json entry.
var ErrNoManifest = errors.New("archive: manifest.json not found")

// Info holds metadata about an existing archive file.
type Info struct {
	Path       string // Full filesystem path
	Filename   string // Base filename
	Size       int64  // File size in bytes
	Timestamp  string // From manifest, or file mod time
	ServerName string // From manifest
	Clients    int    // From manifest
}

// ListArchives scans an archive directory for .tar.gz files and returns info
// about each, sorted newest-first.
func ListArchives(archiveDir string) ([]Info, error) {
	pattern := filepath.Join(archiveDir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var archives []Info
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      info.Size(),
			Timestamp: info.ModTime().UTC().Format("2006-01-02T15:04:05Z"),
		}
		if m, err := ReadManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.ServerName = m.ServerName
			ai.Clients = m.Clients
		}
		archives = append(archives, ai)
	}

	// RFC3339 timestamps sort lexically.
	slices.SortFunc(archives, func(a, b Info) int {
		return strings.Compare(b.Timestamp, a.Timestamp)
	})
	return archives, nil
}

// walk calls fn for every entry of a .tar.gz archive.
func walk(archivePath string, fn func(hdr *tar.Header, r io.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("archive: %s: %w", archivePath, err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: %s: %w", archivePath, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// ReadManifest extracts the manifest.json entry of an archive.
func ReadManifest(archivePath string) (*Manifest, error) {
	var m *Manifest
	err := walk(archivePath, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name != "manifest.json" {
			return nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		m = &Manifest{}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoManifest
	}
	return m, nil
}

// Verify checks every file in an archive against the manifest checksums. It
// returns the names of mismatched or missing entries; an empty result means
// the archive is intact.
func Verify(archivePath string) ([]string, error) {
	sums := make(map[string]string)
	var m *Manifest
	err := walk(archivePath, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name == "manifest.json" {
			data, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			m = &Manifest{}
			return json.Unmarshal(data, m)
		}
		h := sha256.New()
		if _, err := io.Copy(h, r); err != nil {
			return err
		}
		sums[hdr.Name] = hex.EncodeToString(h.Sum(nil))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoManifest
	}

	var bad []string
	for name, entry := range m.Files {
		if sums[name] != entry.SHA256 {
			bad = append(bad, name)
		}
	}
	slices.Sort(bad)
	return bad, nil
}
