package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"energy-forecast/internal/ml"

	"go.etcd.io/bbolt"
)

// Save writes the whole artifact bundle and its version record in one
// transaction. It replaces the previously saved bundle.
func (s *Store) Save(ctx context.Context, a *ml.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.Validate(); err != nil {
		return fmt.Errorf("refusing to save: %w", err)
	}

	bundle, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}

	info := a.Info()
	info.SavedAt = time.Now().UTC()
	meta, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal version info: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(artifactsBucket)).Put([]byte(currentKey), bundle); err != nil {
			return fmt.Errorf("put artifact: %w", err)
		}
		key := fmt.Sprintf("%020d_%s", info.SavedAt.UnixNano(), info.Version)
		if err := tx.Bucket([]byte(versionsBucket)).Put([]byte(key), meta); err != nil {
			return fmt.Errorf("put version: %w", err)
		}
		return nil
	})
}

// Load returns the saved artifact, or nil and no error when nothing has been
// saved. Bytes that do not decode into a usable artifact fail with
// ml.ErrLoad.
func (s *Store) Load(ctx context.Context) (*ml.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var a *ml.Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(artifactsBucket)).Get([]byte(currentKey))
		if data == nil {
			return nil
		}
		var decoded ml.Artifact
		if err := json.Unmarshal(data, &decoded); err != nil {
			return fmt.Errorf("%w: decode bundle: %v", ml.ErrLoad, err)
		}
		a = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Versions returns the metadata of saved artifacts, newest first. A limit of
// zero or less returns all of them. Malformed records are skipped.
func (s *Store) Versions(ctx context.Context, limit int) ([]ml.VersionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []ml.VersionInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(versionsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var info ml.VersionInfo
			if err := json.Unmarshal(v, &info); err != nil {
				continue
			}
			out = append(out, info)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}
