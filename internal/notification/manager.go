package notification

import (
	"sync"
)

var (
	instance *Service
	once     sync.Once
	mu       sync.RWMutex
)

// InitializeService sets up the process-wide service with factory. Only the
// first call runs factory; every call returns the same instance.
func InitializeService(factory func() *Service) *Service {
	once.Do(func() {
		s := factory()
		mu.Lock()
		if instance == nil {
			instance = s
		}
		mu.Unlock()
	})
	return GetService()
}

// GetService returns the process-wide service, or nil before InitializeService
func GetService() *Service {
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// SetService replaces the process-wide service (mainly for testing)
func SetService(service *Service) {
	mu.Lock()
	defer mu.Unlock()
	instance = service
}

// MustGetService returns the service instance or panics if not initialized
func MustGetService() *Service {
	service := GetService()
	if service == nil {
		panic("notification service not initialized")
	}
	return service
}

// IsInitialized checks if the process-wide service has been set
func IsInitialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return instance != nil
}
