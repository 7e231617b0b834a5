package storage

import (
	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// Open returns the backend selected by settings.Storage
func Open(settings *conf.Settings) (Store, error) {
	log := GetLogger()

	switch settings.Storage.Type {
	case "memory":
		log.Info("using in-memory state store")
		return NewMemoryStore(), nil
	case "file":
		log.Info("using file state store", logger.String("path", settings.Storage.Path))
		return NewFileStore(settings.Storage.Path)
	case "sqlite":
		log.Info("using sqlite state store", logger.String("path", settings.Storage.Path))
		return NewSQLiteStore(settings.Storage.Path, log)
	default:
		return nil, errors.Newf("unknown storage type %q", settings.Storage.Type).
			Component("storage").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// GetLogger returns the storage module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("storage")
}
