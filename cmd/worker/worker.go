package worker

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/serviceworker"
	"github.com/tabladeV/manager.tabla-sub002/internal/session"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// Command creates the worker command group for inspecting and driving the
// service worker lifecycle outside the agent.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect or reconcile the service worker registration",
	}

	cmd.AddCommand(syncCommand(settings), statusCommand(settings))

	return cmd
}

func syncCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one lifecycle pass against the stored session and permission",
		Long: `Register or unregister the service worker from the stored login state and
notification permission, then print the action taken (register, unregister
or none).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(settings, func(m *serviceworker.Manager) error {
				action := m.Sync(cmd.Context())
				_, err := fmt.Fprintln(cmd.OutOrStdout(), action)
				return err
			})
		},
	}
}

func statusCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the stored service worker registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(settings, func(m *serviceworker.Manager) error {
				reg, err := m.Registration(cmd.Context())
				if err != nil {
					return err
				}
				return printRegistration(cmd.OutOrStdout(), reg)
			})
		},
	}
}

// withManager opens the configured store and runs fn with a manager over it
func withManager(settings *conf.Settings, fn func(*serviceworker.Manager) error) error {
	info := settings.PlatformInfo()
	if info.Native {
		return errors.Newf("service workers are not used on %s", info).
			Component("cmd.worker").
			Category(errors.CategoryUnsupported).
			Build()
	}

	log := logger.Global().Module("worker")
	if settings.Storage.Type == "memory" {
		log.Warn("memory storage is empty in a new process; nothing is shared with the agent")
	}

	kv, err := storage.Open(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := kv.Close(); err != nil {
			log.Warn("closing storage failed", logger.Error(err))
		}
	}()

	sess := session.New(kv, nil, log)
	defer sess.Close()

	perms := push.NewPermissions(kv, push.PromptPolicy(settings.Push.PermissionPrompt), log)
	manager := serviceworker.NewManager(sess, perms, serviceworker.NewStoreRegistry(kv), settings.Push.ServiceWorkerPath, log)

	return fn(manager)
}

func printRegistration(w io.Writer, reg *serviceworker.Registration) error {
	if reg == nil {
		_, err := fmt.Fprintln(w, "not registered")
		return err
	}
	_, err := fmt.Fprintf(w, "registered %s (scope %s) at %s\n",
		reg.ScriptURL, reg.Scope, reg.RegisteredAt.Format("2006-01-02 15:04:05"))
	return err
}
