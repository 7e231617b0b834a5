// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"strings"
)

var (
	validPlatforms         = []string{"auto", "web", "ios", "android"}
	validStorageTypes      = []string{"memory", "file", "sqlite"}
	validPermissionPrompts = []string{"grant", "deny"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validatePlatformSettings,
		validateAPISettings,
		validateStorageSettings,
		validatePushSettings,
		validateInboxSettings,
		validateAgentSettings,
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validatePlatformSettings(s *Settings) error {
	if err := oneOf(s.Platform.Name, validPlatforms); err != nil {
		return fmt.Errorf("platform.name: %w", err)
	}
	return nil
}

func validateAPISettings(s *Settings) error {
	if err := validateEnvHTTPURL(s.API.BaseURL); err != nil {
		return fmt.Errorf("api.baseurl: %w", err)
	}
	if s.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if s.App.BaseURL != "" {
		if err := validateEnvHTTPURL(s.App.BaseURL); err != nil {
			return fmt.Errorf("app.baseurl: %w", err)
		}
	}
	return nil
}

func validateStorageSettings(s *Settings) error {
	if err := oneOf(s.Storage.Type, validStorageTypes); err != nil {
		return fmt.Errorf("storage.type: %w", err)
	}
	if s.Storage.Type != "memory" && strings.TrimSpace(s.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required for %s storage", s.Storage.Type)
	}
	return nil
}

func validatePushSettings(s *Settings) error {
	var errs []string

	if !strings.HasPrefix(s.Push.ServiceWorkerPath, "/") {
		errs = append(errs, "push.serviceworkerpath must be an absolute path")
	}
	if err := oneOf(s.Push.PermissionPrompt, validPermissionPrompts); err != nil {
		errs = append(errs, fmt.Sprintf("push.permissionprompt: %v", err))
	}
	if err := validateEnvWebSocketURL(s.Push.Web.GatewayURL); err != nil {
		errs = append(errs, fmt.Sprintf("push.web.gatewayurl: %v", err))
	}
	if strings.TrimSpace(s.Push.Native.Broker) == "" {
		errs = append(errs, "push.native.broker is required")
	}
	if s.Push.Native.QoS > 2 {
		errs = append(errs, "push.native.qos must be 0, 1 or 2")
	}
	if s.Push.Native.TokenWait <= 0 {
		errs = append(errs, "push.native.tokenwait must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("push settings errors: %v", errs)
	}
	return nil
}

func validateInboxSettings(s *Settings) error {
	if s.Inbox.PageSize <= 0 || s.Inbox.PageSize > 100 {
		return fmt.Errorf("inbox.pagesize must be between 1 and 100, got %d", s.Inbox.PageSize)
	}
	return nil
}

func validateAgentSettings(s *Settings) error {
	if _, _, err := net.SplitHostPort(s.Agent.Listen); err != nil {
		return fmt.Errorf("agent.listen: %w", err)
	}
	return nil
}
