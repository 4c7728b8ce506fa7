// Package main is the CLI entry point for audioperm.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/audioperm/internal/daemon"
	"github.com/eliteGoblin/audioperm/internal/domain"
	"github.com/eliteGoblin/audioperm/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "audioperm",
	Short: "Audio recording permissions and foreground service control",
	Long: `audioperm checks and requests microphone and notification permissions and
controls the foreground recording service, using the strategy that fits the
platform: native consent on macOS, Android and iOS, auto-grant elsewhere.

Use --emulate to run against an emulated mobile device.`,
	Version:      Version,
	SilenceUsage: true,
}

var checkCmd = &cobra.Command{
	Use:       "check [audio|notification]",
	Short:     "Report whether a permission is granted (never prompts)",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"audio", "notification"},
	RunE:      runPermission(usecase.OpCheckPermission),
}

var requestCmd = &cobra.Command{
	Use:   "request [audio|notification]",
	Short: "Request a permission, prompting only if undetermined",
	Long: `Requests a permission. The consent dialog is shown only while the status is
undetermined; once granted or denied the stored answer is returned without
prompting. Blocks until the user answers.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"audio", "notification"},
	RunE:      runPermission(usecase.OpRequestPermission),
}

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Control the foreground recording service",
}

var serviceStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the foreground recording service (requires audio permission)",
	RunE:  runSimple(usecase.OpStartService),
}

var serviceStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the foreground recording service",
	RunE:  runSimple(usecase.OpStopService),
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the foreground service is running",
	RunE:  runSimple(usecase.OpServiceStatus),
}

var serviceUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the service notification title and/or message",
	RunE:  runUpdate,
}

var micCmd = &cobra.Command{
	Use:   "mic",
	Short: "Report whether a microphone is present (not whether it is permitted)",
	RunE:  runSimple(usecase.OpMicrophoneAvailable),
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve commands as JSON lines on stdin/stdout",
	Long: `Reads one request per line from stdin:

  {"id":1,"command":"requestPermission","payload":{"permissionType":"audio"}}

and writes one response per line to stdout:

  {"id":1,"result":{"granted":true}}
  {"id":2,"error":{"kind":"PlatformUnavailable","message":"..."}}

Requests run concurrently; responses carry the request id. Commands accept
camelCase names or their snake_case aliases.`,
	RunE: runServe,
}

var platformCmd = &cobra.Command{
	Use:   "platform",
	Short: "Show the detected platform and the strategies selected for it",
	RunE:  runPlatform,
}

var emulatorCmd = &cobra.Command{
	Use:   "emulator",
	Short: "Manage the emulated device",
}

var emulatorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Return the emulated device to factory state",
	RunE:  runEmulatorReset,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	globals       globalOptions
	jsonOutput    bool
	updateTitle   string
	updateMessage string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&globals.configPath, "config", "", "Config file (.yaml or .toml)")
	rootCmd.PersistentFlags().StringVar(&globals.platform, "platform", "", "Force platform (macos, windows, linux, android, ios)")
	rootCmd.PersistentFlags().BoolVar(&globals.emulate, "emulate", false, "Use the emulated device as the native platform")
	rootCmd.PersistentFlags().BoolVarP(&globals.verbose, "verbose", "v", false, "Log to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	serviceUpdateCmd.Flags().StringVar(&updateTitle, "title", "", "Notification title")
	serviceUpdateCmd.Flags().StringVar(&updateMessage, "message", "", "Notification message")

	serviceCmd.AddCommand(serviceStartCmd, serviceStopCmd, serviceStatusCmd, serviceUpdateCmd)
	emulatorCmd.AddCommand(emulatorResetCmd)

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(serviceCmd)
	rootCmd.AddCommand(micCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(platformCmd)
	rootCmd.AddCommand(emulatorCmd)
	rootCmd.AddCommand(versionCmd)
}

func runPermission(op string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		payload := []byte(`{}`)
		if len(args) == 1 {
			kind, err := domain.ParsePermissionKind(args[0])
			if err != nil {
				return err
			}
			payload, _ = json.Marshal(domain.PermissionRequest{Kind: kind})
		}
		return dispatchAndPrint(cmd, op, payload)
	}
}

func runSimple(op string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return dispatchAndPrint(cmd, op, nil)
	}
}

func runUpdate(cmd *cobra.Command, args []string) error {
	var update domain.NotificationUpdate
	if cmd.Flags().Changed("title") {
		update.Title = &updateTitle
	}
	if cmd.Flags().Changed("message") {
		update.Message = &updateMessage
	}
	if update.Title == nil && update.Message == nil {
		return fmt.Errorf("--title or --message is required")
	}
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return dispatchAndPrint(cmd, usecase.OpUpdateNotification, payload)
}

func dispatchAndPrint(cmd *cobra.Command, op string, payload []byte) error {
	rt, logger, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer rt.Close()

	ctx, cancel := signalContext(logger)
	defer cancel()

	result, err := rt.dispatcher.Dispatch(ctx, op, payload)
	if err != nil {
		// Already reported in styled form.
		cmd.SilenceErrors = true
		printError(cmd.OutOrStdout(), err)
		return err
	}
	printResult(cmd.OutOrStdout(), op, result)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	rt, logger, err := openRuntime(true)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer rt.Close()

	ctx, cancel := signalContext(logger)
	defer cancel()

	logger.Info("serving",
		zap.String("platform", rt.info.String()),
		zap.Bool("emulated", rt.device != nil),
		zap.Strings("commands", rt.dispatcher.Commands()))

	server := daemon.NewServer(daemon.DefaultServerConfig(), rt.dispatcher, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runPlatform(cmd *cobra.Command, args []string) error {
	rt, logger, err := openRuntime(false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer rt.Close()

	printPlatform(cmd.OutOrStdout(), rt)
	return nil
}

func runEmulatorReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dataDir := cfg.EmulatorDataDir()
	if dataDir == "" {
		return fmt.Errorf("no emulator data directory")
	}
	if err := resetEmulator(cfg); err != nil {
		return err
	}
	printNote(cmd.OutOrStdout(), "emulated device reset", dataDir)
	return nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Fprintf(cmd.OutOrStdout(), `{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "audioperm %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
