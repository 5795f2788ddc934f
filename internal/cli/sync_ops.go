package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/dl-alexandre/gsyncd/internal/types"
	"github.com/spf13/cobra"
)

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Push pending local changes, then apply pending remote ones",
	RunE:  runDrain,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch remote change pages and apply them locally",
	RunE:  runFetch,
}

var runInterval time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine until interrupted",
	Long: `Run a long-lived sync loop: drain pending changes, fetch remote
changes, then repeat every interval. Stops on SIGINT/SIGTERM after
finishing the in-flight operation.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().DurationVar(&runInterval, "interval", 30*time.Second, "Delay between sync rounds")

	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(runCmd)
}

func runDrain(cmd *cobra.Command, args []string) error {
	coordinator, cleanup, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	code := awaitCode(coordinator.Drain)
	if err := codeErr(code, "drain failed"); err != nil {
		return err
	}
	return NewOutputWriter().WriteResult("drain", code, nil)
}

func runFetch(cmd *cobra.Command, args []string) error {
	coordinator, cleanup, err := buildEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer cleanup()

	result := awaitRemoteChange(coordinator)
	if err := codeErr(result.Code, "fetch failed"); err != nil {
		return err
	}

	out := NewOutputWriter()
	for _, p := range result.Paths {
		out.Log("applied %s", p)
	}
	var data interface{}
	if len(result.Paths) > 0 {
		data = map[string]interface{}{"paths": result.Paths}
	}
	return out.WriteResult("fetch", result.Code, data)
}

func runLoop(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coordinator, cleanup, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out := NewOutputWriter()
	unsubscribe := coordinator.Subscribe(func(state types.ServiceState, reason string) {
		out.Log("service state: %s (%s)", state, reason)
	})
	defer unsubscribe()

	out.Log("sync loop started (interval %s)", runInterval)
	ticker := time.NewTicker(runInterval)
	defer ticker.Stop()

	for {
		code := awaitCode(coordinator.Drain)
		if code.IsSuccess() {
			code = awaitRemoteChange(coordinator).Code
		}
		if code.IsFatal() {
			return codeErr(code, "sync loop stopped on fatal index failure")
		}
		if !code.IsSuccess() {
			out.Log("sync round: %s", code)
		}

		select {
		case <-ctx.Done():
			out.Log("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
