// Package archive writes and inspects .tar.gz backups of server data: the
// client database snapshot, the text files and the config file.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version    int                  `json:"version"`
	Server     string               `json:"server"`
	Timestamp  string               `json:"timestamp"`
	ServerName string               `json:"server_name"`
	Clients    int                  `json:"clients"`
	Files      map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "bolt", "text", "conf"
}

// Params holds all inputs needed to create an archive.
type Params struct {
	SnapshotFunc func(destPath string) error // Writes a client database snapshot (nil = skip)
	TextDir      string                      // Path to text files directory (empty = skip)
	ConfPath     string                      // Path to server config file (empty = skip)
	ArchiveDir   string                      // Output directory for the archive
	Server       string                      // Server software and version for the manifest
	ServerName   string                      // Configured server name for the manifest
	Clients      int                         // Number of client records for the manifest
}

const clientsEntry = "data/clients.db"

// CreateArchive creates a .tar.gz archive of the server data and returns the archive path.
func CreateArchive(params Params) (string, error) {
	if err := os.MkdirAll(params.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", params.ArchiveDir, err)
	}

	now := time.Now()
	filename := fmt.Sprintf("archive-%s.tar.gz", now.Format("20060102-150405"))
	archivePath := filepath.Join(params.ArchiveDir, filename)

	tmpDir, err := os.MkdirTemp("", "gemscraft-archive-*")
	if err != nil {
		return "", fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	manifest := Manifest{
		Version:    1,
		Server:     params.Server,
		Timestamp:  now.UTC().Format(time.RFC3339),
		ServerName: params.ServerName,
		Clients:    params.Clients,
		Files:      make(map[string]FileEntry),
	}

	// Stage the database snapshot before opening the output so a failed
	// snapshot leaves no partial archive behind.
	var snapshot string
	if params.SnapshotFunc != nil {
		snapshot = filepath.Join(tmpDir, "clients.db")
		if err := params.SnapshotFunc(snapshot); err != nil {
			return "", fmt.Errorf("archive: snapshot: %w", err)
		}
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	defer outFile.Close()

	gw := gzip.NewWriter(outFile)
	tw := tar.NewWriter(gw)

	if snapshot != "" {
		entry, err := addFileToTar(tw, snapshot, clientsEntry)
		if err != nil {
			return "", err
		}
		entry.Type = "bolt"
		manifest.Files[clientsEntry] = entry
	}

	if params.TextDir != "" {
		if info, err := os.Stat(params.TextDir); err == nil && info.IsDir() {
			entries, err := addDirToTar(tw, params.TextDir, "text")
			if err != nil {
				return "", err
			}
			for k, v := range entries {
				v.Type = "text"
				manifest.Files[k] = v
			}
		}
	}

	if params.ConfPath != "" {
		if _, err := os.Stat(params.ConfPath); err == nil {
			archName := "conf/" + filepath.Base(params.ConfPath)
			entry, err := addFileToTar(tw, params.ConfPath, archName)
			if err != nil {
				return "", err
			}
			entry.Type = "conf"
			manifest.Files[archName] = entry
		}
	}

	// The manifest goes last so its checksums cover everything before it.
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	if err := tw.WriteHeader(&tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(manifestJSON)),
		Mode:    0644,
		ModTime: now,
	}); err != nil {
		return "", fmt.Errorf("archive: write manifest header: %w", err)
	}
	if _, err := tw.Write(manifestJSON); err != nil {
		return "", fmt.Errorf("archive: write manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", fmt.Errorf("archive: close tar: %w", err)
	}
	if err := gw.Close(); err != nil {
		return "", fmt.Errorf("archive: close gzip: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return "", fmt.Errorf("archive: close %s: %w", archivePath, err)
	}
	return archivePath, nil
}

// addFileToTar adds a single file to the tar archive with the given archive name,
// computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}

	// Use forward slashes in tar paths
	archName = strings.ReplaceAll(archName, "\\", "/")

	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}

	return FileEntry{
		SHA256: hex.EncodeToString(h.Sum(nil)),
		Size:   written,
	}, nil
}

// addDirToTar recursively adds all files in a directory to the tar archive.
func addDirToTar(tw *tar.Writer, srcDir, archPrefix string) (map[string]FileEntry, error) {
	entries := make(map[string]FileEntry)
	err := filepath.WalkDir(srcDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		archName := archPrefix + "/" + filepath.ToSlash(rel)
		entry, err := addFileToTar(tw, path, archName)
		if err != nil {
			return err
		}
		entries[archName] = entry
		return nil
	})
	return entries, err
}
