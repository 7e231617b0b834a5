package push

import (
	"context"
	"fmt"
	"strings"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// Permission is the notification permission state
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionDenied  Permission = "denied"
	PermissionGranted Permission = "granted"
)

// ParsePermission validates a permission string
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(strings.ToLower(strings.TrimSpace(s))); p {
	case PermissionDefault, PermissionDenied, PermissionGranted:
		return p, nil
	default:
		return "", errors.Newf("invalid notification permission %q", s).
			Component("push").
			Category(errors.CategoryValidation).
			Build()
	}
}

// PromptPolicy decides how an unanswered permission prompt resolves when
// there is no operator to click it
type PromptPolicy string

const (
	PromptGrant PromptPolicy = "grant"
	PromptDeny  PromptPolicy = "deny"
)

// Permissions holds the permission state in storage, so it survives restarts
// and changes made through the control API are visible to every reader.
type Permissions struct {
	kv     storage.Store
	policy PromptPolicy
	log    logger.Logger
}

// NewPermissions creates the permission state over kv
func NewPermissions(kv storage.Store, policy PromptPolicy, log logger.Logger) *Permissions {
	if log == nil {
		log = GetLogger()
	}
	if policy != PromptDeny {
		policy = PromptGrant
	}
	return &Permissions{kv: kv, policy: policy, log: log}
}

// State returns the stored permission; unknown or missing values read as default
func (p *Permissions) State() Permission {
	v, ok := p.kv.Get(storage.KeyNotificationPermission)
	if !ok {
		return PermissionDefault
	}
	perm, err := ParsePermission(v)
	if err != nil {
		return PermissionDefault
	}
	return perm
}

// Request resolves the prompt. An answered prompt is never asked again, so a
// denied permission stays denied until changed out of band.
func (p *Permissions) Request(_ context.Context) (Permission, error) {
	current := p.State()
	if current != PermissionDefault {
		return current, nil
	}

	answer := PermissionGranted
	if p.policy == PromptDeny {
		answer = PermissionDenied
	}
	if err := p.Set(answer); err != nil {
		return PermissionDefault, err
	}

	p.log.Info("notification permission prompt answered",
		logger.String("policy", string(p.policy)),
		logger.String("permission", string(answer)))
	return answer, nil
}

// Set overwrites the permission state
func (p *Permissions) Set(perm Permission) error {
	if _, err := ParsePermission(string(perm)); err != nil {
		return err
	}
	if err := p.kv.Set(storage.KeyNotificationPermission, string(perm)); err != nil {
		return errors.New(fmt.Errorf("failed to store permission: %w", err)).
			Component("push").
			Category(errors.CategoryStorage).
			Build()
	}
	return nil
}

// Watch calls fn with the new state whenever the stored permission changes
func (p *Permissions) Watch(fn func(Permission)) (cancel func()) {
	return p.kv.Watch(func(c storage.Change) {
		if c.Key != storage.KeyNotificationPermission {
			return
		}
		if c.Deleted {
			fn(PermissionDefault)
			return
		}
		perm, err := ParsePermission(c.Value)
		if err != nil {
			return
		}
		fn(perm)
	})
}
