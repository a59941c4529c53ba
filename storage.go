package bridge

import (
	"github.com/cockroachdb/errors"
	"github.com/niclabs/keychain-bridge/config"
	"github.com/niclabs/keychain-bridge/storage"
	"github.com/niclabs/keychain-bridge/storage/memory"
	"github.com/niclabs/keychain-bridge/storage/sqlite3"
)

// NewStorage opens and initializes the store named by conf.Storage.Type.
func NewStorage(conf *config.Config) (storage.Storage, error) {
	var (
		store storage.Storage
		err   error
	)
	switch conf.Storage.Type {
	case "sqlite3":
		store, err = sqlite3.GetDatabase(conf.Sqlite3.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "open database %s", conf.Sqlite3.Path)
		}
	case "memory":
		store = memory.New()
	default:
		return nil, errors.Errorf("storage option not found: '%s'", conf.Storage.Type)
	}
	if err := store.InitStorage(); err != nil {
		_ = store.CloseStorage()
		return nil, errors.Wrap(err, "init storage")
	}
	return store, nil
}
