package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/skillissue/mockview/internal/models"
)

const (
	sessionExt = ".session.json.zst"
	reportExt  = ".report.json"
)

// FileStore keeps each session as zstd-compressed JSON next to its plain
// JSON report.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// SaveSession writes <dir>/<id>.session.json.zst.
func (s *FileStore) SaveSession(ctx context.Context, sess *models.Session) error {
	if err := checkID(sess.ID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}
	defer enc.Close() //nolint:errcheck
	return s.write(sess.ID+sessionExt, enc.EncodeAll(data, nil))
}

// LoadSession reads a session written by SaveSession.
func (s *FileStore) LoadSession(ctx context.Context, id string) (*models.Session, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	raw, err := s.read(id + sessionExt)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	defer dec.Close()
	data, err := dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing session %s: %w", id, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", id, err)
	}
	return &sess, nil
}

// SaveReport writes <dir>/<id>.report.json.
func (s *FileStore) SaveReport(ctx context.Context, r *models.SessionReport) error {
	if err := checkID(r.SessionID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return s.write(r.SessionID+reportExt, append(data, '\n'))
}

// LoadReport reads a report written by SaveReport.
func (s *FileStore) LoadReport(ctx context.Context, id string) (*models.SessionReport, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := s.read(id + reportExt)
	if err != nil {
		return nil, err
	}
	var r models.SessionReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", id, err)
	}
	return &r, nil
}

// Sessions lists the ids of stored sessions in lexical order.
func (s *FileStore) Sessions() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if id, ok := strings.CutSuffix(e.Name(), sessionExt); ok && !e.IsDir() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

// Dir returns the store root.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) write(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

func (s *FileStore) read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}
