package mem

import (
	"testing"

	"github.com/driftmail/driftmail/pkg/config"
	"github.com/driftmail/driftmail/pkg/storage"
	"github.com/driftmail/driftmail/pkg/storage/storetest"
)

func TestSuite(t *testing.T) {
	storetest.StoreSuite(t, func() (storage.Store, func(), error) {
		s, err := New(config.Storage{})
		return s, func() {}, err
	})
}
