package corpus

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// File names inside a store directory.
const (
	IndexFile    = "index.bin"
	DocstoreFile = "docstore.db"
	ManifestFile = "manifest.toml"
)

const manifestVersion = 1

// manifest is the completion marker of a save. It is written last, so a
// directory whose manifest does not verify was left mid-save.
type manifest struct {
	Version   int       `toml:"version"`
	Dimension int       `toml:"dimension"`
	Count     int       `toml:"count"`
	Model     string    `toml:"model"`
	SavedAt   time.Time `toml:"saved_at"`
	Checksum  string    `toml:"checksum"`
}

func readManifest(dir string) (*manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

func writeManifest(dir string, m manifest) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

// checksum hashes the serialized index followed by the canonical docstore
// rows: slot, content length, content, then sorted-key metadata JSON.
func checksum(index []byte, docs []domain.StoredDocument) (string, error) {
	h := sha256.New()
	h.Write(index)

	var num [8]byte
	for _, d := range docs {
		binary.LittleEndian.PutUint64(num[:], uint64(d.Slot))
		h.Write(num[:])

		binary.LittleEndian.PutUint64(num[:], uint64(len(d.Content)))
		h.Write(num[:])
		h.Write([]byte(d.Content))

		md, err := json.Marshal(d.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata of slot %d: %w", d.Slot, err)
		}
		h.Write(md)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// writeFileAtomic writes to a temporary sibling and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
