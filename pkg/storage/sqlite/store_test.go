package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/storage/storetest"
)

func TestSuite(t *testing.T) {
	storetest.StoreSuite(t, func() (storage.Store, func(), error) {
		s, err := New(config.Storage{
			Type:   "sqlite",
			Params: map[string]string{"path": filepath.Join(t.TempDir(), "mail.db")},
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	})
}

func TestMissingPath(t *testing.T) {
	_, err := New(config.Storage{Type: "sqlite"})
	if err == nil {
		t.Fatal("expected error for missing path param")
	}
}
