// Package serviceworker keeps the background push worker registered exactly
// while an operator is logged in and has not denied notifications.
package serviceworker

import (
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
)

// DefaultScriptURL is the well-known worker script path
const DefaultScriptURL = "/firebase-messaging-sw.js"

// DefaultScope is the scope the worker is registered for
const DefaultScope = "/"

// Action is what a lifecycle pass does
type Action string

const (
	ActionNone       Action = "none"
	ActionRegister   Action = "register"
	ActionUnregister Action = "unregister"
)

// Decide maps the live inputs to an action:
//
//	logged in | permission | registered | action
//	no        | any        | yes        | unregister
//	no        | any        | no         | none
//	yes       | denied     | yes        | unregister
//	yes       | denied     | no         | none
//	yes       | granted    | no         | register
//	yes       | granted    | yes        | none
//	yes       | default    | any        | none
//
// An unanswered permission leaves an existing registration alone.
func Decide(isLoggedIn bool, permission push.Permission, hasRegistration bool) Action {
	if !isLoggedIn {
		if hasRegistration {
			return ActionUnregister
		}
		return ActionNone
	}

	switch permission {
	case push.PermissionDenied:
		if hasRegistration {
			return ActionUnregister
		}
	case push.PermissionGranted:
		if !hasRegistration {
			return ActionRegister
		}
	}
	return ActionNone
}
