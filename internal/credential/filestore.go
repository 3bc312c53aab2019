package credential

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/adflow/pipeline/internal/model"
)

// fileStore persists one JSON file per provider under dir, encrypting the
// token material field before it touches disk. Writes are atomic: a temp
// file is written alongside the target and renamed into place, the pattern
// the teacher codebase uses for every on-disk artifact that must never be
// observed half-written.
type fileStore struct {
	dir string
	enc *encryptor
}

// record is the on-disk shape; TokenMaterial holds ciphertext, never plaintext.
type record struct {
	Provider             string    `json:"provider"`
	TokenMaterial        string    `json:"token_material"`
	CreatedAt            time.Time `json:"created_at"`
	ValidDays            int       `json:"valid_days"`
	RefreshThresholdDays int       `json:"refresh_threshold_days"`
	LastUsedAt           time.Time `json:"last_used_at,omitempty"`
}

func newFileStore(dir, encryptionKey string) (*fileStore, error) {
	enc, err := newEncryptor(encryptionKey)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create credential dir: %w", err)
	}
	return &fileStore{dir: dir, enc: enc}, nil
}

func (fs *fileStore) path(provider string) string {
	return filepath.Join(fs.dir, provider+"_token.json")
}

func (fs *fileStore) load(provider string) (model.Credential, error) {
	raw, err := os.ReadFile(fs.path(provider))
	if err != nil {
		return model.Credential{}, fmt.Errorf("read credential for %s: %w", provider, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return model.Credential{}, fmt.Errorf("decode credential for %s: %w", provider, err)
	}
	plain, err := fs.enc.decrypt(rec.TokenMaterial)
	if err != nil {
		return model.Credential{}, fmt.Errorf("decrypt credential for %s: %w", provider, err)
	}
	return model.Credential{
		Provider:             rec.Provider,
		TokenMaterial:        plain,
		CreatedAt:            rec.CreatedAt,
		ValidDays:            rec.ValidDays,
		RefreshThresholdDays: rec.RefreshThresholdDays,
	}, nil
}

func (fs *fileStore) save(cred model.Credential) error {
	cipherText, err := fs.enc.encrypt(cred.TokenMaterial)
	if err != nil {
		return fmt.Errorf("encrypt credential for %s: %w", cred.Provider, err)
	}
	rec := record{
		Provider:             cred.Provider,
		TokenMaterial:        cipherText,
		CreatedAt:            cred.CreatedAt,
		ValidDays:            cred.ValidDays,
		RefreshThresholdDays: cred.RefreshThresholdDays,
	}
	return fs.writeAtomic(cred.Provider, rec)
}

func (fs *fileStore) touch(provider string) error {
	raw, err := os.ReadFile(fs.path(provider))
	if err != nil {
		return fmt.Errorf("read credential for %s: %w", provider, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return fmt.Errorf("decode credential for %s: %w", provider, err)
	}
	rec.LastUsedAt = time.Now().UTC()
	return fs.writeAtomic(provider, rec)
}

func (fs *fileStore) writeAtomic(provider string, rec record) error {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential for %s: %w", provider, err)
	}
	target := fs.path(provider)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credential for %s: %w", provider, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("finalize credential for %s: %w", provider, err)
	}
	return nil
}

// encryptedBytes returns the same encrypted JSON written to disk, for
// mirroring to the blob archive.
func (fs *fileStore) encryptedBytes(cred model.Credential) ([]byte, error) {
	cipherText, err := fs.enc.encrypt(cred.TokenMaterial)
	if err != nil {
		return nil, err
	}
	rec := record{
		Provider:             cred.Provider,
		TokenMaterial:        cipherText,
		CreatedAt:            cred.CreatedAt,
		ValidDays:            cred.ValidDays,
		RefreshThresholdDays: cred.RefreshThresholdDays,
	}
	return json.MarshalIndent(rec, "", "  ")
}
