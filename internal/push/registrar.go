package push

import (
	"context"
	"sync"

	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/platform"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
)

// RegistrationResult is the outcome of one registration attempt
type RegistrationResult string

const (
	// ResultDeferred means no session was ready; the token is kept pending
	ResultDeferred RegistrationResult = "deferred"
	// ResultSkipped means the pair was already registered
	ResultSkipped RegistrationResult = "skipped"
	// ResultRegistered means the backend accepted the token
	ResultRegistered RegistrationResult = "registered"
	// ResultDuplicate means the backend already knew the token
	ResultDuplicate RegistrationResult = "duplicate"
	// ResultFailed means the call failed; the token is kept pending
	ResultFailed RegistrationResult = "failed"
	// ResultNone means there was nothing to retry
	ResultNone RegistrationResult = "none"
)

// DeviceTokenAPI registers device tokens with the Tabla backend
type DeviceTokenAPI interface {
	RegisterDeviceToken(ctx context.Context, token string, deviceType platform.DeviceType, restaurantID string) (*backend.DeviceToken, error)
}

// SessionReader exposes the current auth snapshot
type SessionReader interface {
	Snapshot() session.Snapshot
}

// TokenRegistrar registers a device token at most once per
// (token, restaurant) pair and buffers tokens that arrive before a session
// is ready.
type TokenRegistrar struct {
	api        DeviceTokenAPI
	session    SessionReader
	deviceType platform.DeviceType
	log        logger.Logger

	// callMu serializes registrations so a pair is never posted twice
	callMu sync.Mutex

	mu                       sync.Mutex
	pendingToken             string
	lastRegisteredToken      string
	lastRegisteredRestaurant string
	observer                 func(RegistrationResult)
}

// NewTokenRegistrar creates a registrar tagging tokens with deviceType
func NewTokenRegistrar(api DeviceTokenAPI, sess SessionReader, deviceType platform.DeviceType, log logger.Logger) *TokenRegistrar {
	if log == nil {
		log = GetLogger()
	}
	return &TokenRegistrar{
		api:        api,
		session:    sess,
		deviceType: deviceType,
		log:        log.With(logger.String("device_type", string(deviceType))),
	}
}

// SetObserver installs a callback receiving every result, for metrics
func (r *TokenRegistrar) SetObserver(fn func(RegistrationResult)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observer = fn
}

// Register registers token for the current restaurant
func (r *TokenRegistrar) Register(ctx context.Context, token string) RegistrationResult {
	if token == "" {
		return ResultNone
	}

	r.callMu.Lock()
	defer r.callMu.Unlock()

	return r.observe(r.register(ctx, token))
}

// RetryPending registers the buffered token, if any
func (r *TokenRegistrar) RetryPending(ctx context.Context) RegistrationResult {
	r.callMu.Lock()
	defer r.callMu.Unlock()

	r.mu.Lock()
	token := r.pendingToken
	r.mu.Unlock()

	if token == "" {
		return ResultNone
	}

	r.log.Debug("retrying pending device token", logger.Token("token", token))
	return r.observe(r.register(ctx, token))
}

// PendingToken returns the buffered token or ""
func (r *TokenRegistrar) PendingToken() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pendingToken
}

// LastRegistered returns the last successfully registered pair
func (r *TokenRegistrar) LastRegistered() (token, restaurantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRegisteredToken, r.lastRegisteredRestaurant
}

// register runs with callMu held. The snapshot is read once; the pair that is
// cached is the pair that was posted.
func (r *TokenRegistrar) register(ctx context.Context, token string) RegistrationResult {
	snap := r.session.Snapshot()
	log := r.log.With(logger.Token("token", token), logger.String("restaurant_id", snap.RestaurantID))

	if !snap.CanRegister() {
		r.mu.Lock()
		r.pendingToken = token
		r.mu.Unlock()
		log.Debug("session not ready, device token kept pending",
			logger.Bool("logged_in", snap.IsLoggedIn))
		return ResultDeferred
	}

	r.mu.Lock()
	same := r.lastRegisteredToken == token && r.lastRegisteredRestaurant == snap.RestaurantID
	if same {
		r.pendingToken = ""
	}
	r.mu.Unlock()
	if same {
		log.Debug("device token already registered for restaurant")
		return ResultSkipped
	}

	result := ResultRegistered
	if _, err := r.api.RegisterDeviceToken(ctx, token, r.deviceType, snap.RestaurantID); err != nil {
		if !backend.IsTokenAlreadyExists(err) {
			r.mu.Lock()
			r.pendingToken = token
			r.mu.Unlock()
			log.Warn("device token registration failed", logger.Error(err))
			return ResultFailed
		}
		result = ResultDuplicate
	}

	r.mu.Lock()
	r.lastRegisteredToken = token
	r.lastRegisteredRestaurant = snap.RestaurantID
	r.pendingToken = ""
	r.mu.Unlock()

	log.Info("device token registered", logger.String("result", string(result)))
	return result
}

func (r *TokenRegistrar) observe(result RegistrationResult) RegistrationResult {
	r.mu.Lock()
	fn := r.observer
	r.mu.Unlock()
	if fn != nil {
		fn(result)
	}
	return result
}
