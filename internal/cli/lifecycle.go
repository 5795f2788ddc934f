package cli

import (
	"github.com/dl-alexandre/gsyncd/internal/sync/scheduler"
	"github.com/spf13/cobra"
)

var registerLabel string

var registerCmd = &cobra.Command{
	Use:   "register <app-id>",
	Short: "Register an application for synchronization",
	Long: `Register an application sync root. Creates the remote app folder,
the local directory and the index entries. Re-registering an existing
app is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "register", func(c coordinatorAPI, cb scheduler.Callback) {
			c.RegisterRoot(args[0], registerLabel, cb)
		})
	},
}

var enableCmd = &cobra.Command{
	Use:   "enable <app-id>",
	Short: "Turn synchronization on for an application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "enable", func(c coordinatorAPI, cb scheduler.Callback) {
			c.EnableRoot(args[0], cb)
		})
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable <app-id>",
	Short: "Turn synchronization off for an application",
	Long: `Disable synchronization for one application. Pending changes are
kept and drain when the application is re-enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "disable", func(c coordinatorAPI, cb scheduler.Callback) {
			c.DisableRoot(args[0], cb)
		})
	},
}

var uninstallPurgeRemote bool

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <app-id>",
	Short: "Remove an application from the engine",
	Long: `Remove an application's sync root and tracked files from the
index. With --purge-remote the remote app folder is deleted as well.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "uninstall", func(c coordinatorAPI, cb scheduler.Callback) {
			c.UninstallRoot(args[0], uninstallPurgeRemote, cb)
		})
	},
}

var setPolicyCmd = &cobra.Command{
	Use:   "set-policy <app-id> <policy>",
	Short: "Set the conflict policy for an application",
	Long: `Set the per-application conflict policy override. Known policies:
last-writer-wins, local-wins, remote-wins, rename-both. An empty
policy clears the override.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLifecycle(cmd, "set-policy", func(c coordinatorAPI, cb scheduler.Callback) {
			c.SetConflictPolicy(args[0], args[1], cb)
		})
	},
}

// coordinatorAPI is the slice of the Coordinator the lifecycle
// commands use.
type coordinatorAPI interface {
	RegisterRoot(appID, label string, cb scheduler.Callback)
	EnableRoot(appID string, cb scheduler.Callback)
	DisableRoot(appID string, cb scheduler.Callback)
	UninstallRoot(appID string, purgeRemote bool, cb scheduler.Callback)
	SetConflictPolicy(appID, policy string, cb scheduler.Callback)
}

func init() {
	registerCmd.Flags().StringVar(&registerLabel, "label", "", "Human-readable label for the sync root")
	uninstallCmd.Flags().BoolVar(&uninstallPurgeRemote, "purge-remote", false, "Delete the remote app folder too")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(uninstallCmd)
	rootCmd.AddCommand(setPolicyCmd)
}

func runLifecycle(cmd *cobra.Command, name string, op func(coordinatorAPI, scheduler.Callback)) error {
	coordinator, cleanup, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	code := awaitCode(func(cb scheduler.Callback) { op(coordinator, cb) })
	if err := codeErr(code, name+" failed"); err != nil {
		return err
	}
	return NewOutputWriter().WriteResult(name, code, nil)
}
