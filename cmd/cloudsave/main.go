package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"cloudsave/internal/app"
	"cloudsave/internal/cloudsave"
	"cloudsave/internal/config"
	"cloudsave/internal/watch"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "Sync", "Upload").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

var rootCmd = &cobra.Command{
	Use:   "cloudsave",
	Short: "Game save cloud synchronization",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init USER_ID",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(args[0], defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("User ID:  %s\n", cfg.UserID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("User ID:  %s\n", cfg.UserID)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Backend:  %s\n", cfg.Backend.Type)
		fmt.Printf("History:  %s\n", cfg.History.Type)
		return nil
	},
}

var configSetCredentialsCmd = &cobra.Command{
	Use:   "set-credentials",
	Short: "Set backend credentials (secrets read without echo)",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		switch cfg.Backend.Type {
		case "cos":
			id, err := promptLine("COS Secret ID: ")
			if err != nil {
				return err
			}
			key, err := promptSecret("COS Secret Key: ")
			if err != nil {
				return err
			}
			cfg.Backend.COSSecretID = id
			cfg.Backend.COSSecretKey = key
		case "s3":
			id, err := promptLine("S3 Access Key ID: ")
			if err != nil {
				return err
			}
			key, err := promptSecret("S3 Secret Access Key: ")
			if err != nil {
				return err
			}
			cfg.Backend.S3AccessKeyID = id
			cfg.Backend.S3SecretAccessKey = key
		default:
			return fmt.Errorf("unknown backend type: %s", cfg.Backend.Type)
		}

		if err := config.WriteToFile(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		fmt.Println("Credentials saved.")
		return nil
	},
}

var configTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Test backend connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "TestConnection")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.TestConnection(cmd.Context()); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}
		fmt.Println("Connection OK.")
		return nil
	},
}

// scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List installed games",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "ScanGames")
		if err != nil {
			return err
		}
		defer a.Close()

		games, err := a.ScanGames()
		if err != nil {
			return err
		}

		if len(games) == 0 {
			fmt.Println("No installed games found.")
			return nil
		}

		for _, g := range games {
			fmt.Printf("%8s  %-40s  %s\n", g.ID, g.Name, g.InstallPath)
		}
		return nil
	},
}

// locate command
var locateCmd = &cobra.Command{
	Use:   "locate GAME",
	Short: "Resolve a game's save location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setPath, _ := cmd.Flags().GetString("set")
		unset, _ := cmd.Flags().GetBool("unset")

		a, err := newApp(cmd.Context(), "Locate")
		if err != nil {
			return err
		}
		defer a.Close()

		if setPath != "" {
			if err := a.SetMapping(args[0], setPath); err != nil {
				return fmt.Errorf("setting mapping: %w", err)
			}
			fmt.Printf("Mapped %s -> %s\n", args[0], setPath)
			return nil
		}
		if unset {
			removed, err := a.UnsetMapping(args[0])
			if err != nil {
				return fmt.Errorf("removing mapping: %w", err)
			}
			if removed {
				fmt.Printf("Removed mapping for %s\n", args[0])
			} else {
				fmt.Printf("No mapping for %s\n", args[0])
			}
			return nil
		}

		save, err := a.Locate(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%d  %s\n", save.AppID, save.SavePath)
		return nil
	},
}

// mappings command
var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "List manual save-path overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Mappings")
		if err != nil {
			return err
		}
		defer a.Close()

		mappings, err := a.Mappings()
		if err != nil {
			return err
		}
		if len(mappings) == 0 {
			fmt.Println("No manual mappings.")
			return nil
		}
		for appID, path := range mappings {
			fmt.Printf("%8d  %s\n", appID, path)
		}
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync [GAME]",
	Short: "Reconcile local and cloud saves (last write wins)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localPath, _ := cmd.Flags().GetString("path")
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context(), "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		if all || len(args) == 0 {
			reports, err := a.SyncAll(cmd.Context())
			if err != nil {
				return err
			}
			printReports(reports)
			return nil
		}

		outcome, err := a.Sync(cmd.Context(), args[0], localPath)
		if err != nil {
			return err
		}
		printOutcome(args[0], outcome)
		return nil
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload GAME",
	Short: "Upload a save snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		localPath, _ := cmd.Flags().GetString("path")

		a, err := newApp(cmd.Context(), "Upload")
		if err != nil {
			return err
		}
		defer a.Close()

		meta, err := a.Upload(cmd.Context(), args[0], localPath)
		if err != nil {
			return err
		}
		fmt.Printf("Uploaded %s (%d bytes)\n", meta.ObjectKey, meta.SizeBytes)
		return nil
	},
}

// download command
var downloadCmd = &cobra.Command{
	Use:   "download GAME TARGET",
	Short: "Download a save snapshot to a local path",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")

		a, err := newApp(cmd.Context(), "Download")
		if err != nil {
			return err
		}
		defer a.Close()

		meta, err := a.Download(cmd.Context(), args[0], key, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Downloaded %s -> %s\n", meta.ObjectKey, args[1])
		return nil
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore GAME",
	Short: "Restore a snapshot over the local save (backs up the existing save first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		localPath, _ := cmd.Flags().GetString("path")

		a, err := newApp(cmd.Context(), "Restore")
		if err != nil {
			return err
		}
		defer a.Close()

		meta, err := a.Restore(cmd.Context(), args[0], key, localPath)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %s\n", meta.ObjectKey)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete GAME",
	Short: "Delete a cloud snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		yes, _ := cmd.Flags().GetBool("yes")

		if !yes {
			ok, err := confirm(fmt.Sprintf("Delete snapshot for %s? [y/N] ", args[0]))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Aborted.")
				return nil
			}
		}

		a, err := newApp(cmd.Context(), "Delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(cmd.Context(), args[0], key); err != nil {
			return err
		}
		fmt.Println("Deleted.")
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list [GAME]",
	Short: "List cloud snapshots",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "List")
		if err != nil {
			return err
		}
		defer a.Close()

		game := ""
		if len(args) > 0 {
			game = args[0]
		}
		saves, err := a.List(cmd.Context(), game)
		if err != nil {
			return err
		}

		if len(saves) == 0 {
			fmt.Println("No cloud snapshots.")
			return nil
		}
		for _, s := range saves {
			fmt.Printf("%-10s  %s  %10d  %s\n",
				s.GameID,
				s.Timestamp.Format("2006-01-02 15:04:05"),
				s.SizeBytes,
				s.ObjectKey,
			)
		}
		return nil
	},
}

// storage command
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Show storage usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "StorageInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.StorageInfo(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Used:       %d bytes in %d file(s)\n", info.UsedBytes, info.FileCount)
		if info.BucketUsedBytes != nil {
			fmt.Printf("Bucket:     %d bytes\n", *info.BucketUsedBytes)
		}
		if info.BucketTotalObjects != nil {
			fmt.Printf("Objects:    %d\n", *info.BucketTotalObjects)
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history [GAME]",
	Short: "View recorded cloud operations",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		game := ""
		if len(args) > 0 {
			game = args[0]
		}
		ops, err := a.History(game, limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}
		for _, op := range ops {
			duration := ""
			if !op.CompletedAt.IsZero() {
				duration = op.CompletedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("%-10s  %-8s  %s  %-10s  %s\n",
				op.GameID,
				op.Kind,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
			)
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch [GAME...]",
	Short: "Watch save directories and sync on change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := readConfig()
		if err != nil {
			return err
		}

		a, err := app.NewApp(ctx, cfg, "Watch")
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		gameArgs := args
		if len(gameArgs) == 0 {
			gameArgs = cfg.Watch.Games
		}
		if len(gameArgs) == 0 {
			return fmt.Errorf("no games to watch: pass game arguments or set watch.games in config")
		}

		var targets []watch.Target
		for _, arg := range gameArgs {
			save, err := a.Locate(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", arg, err)
				continue
			}
			targets = append(targets, watch.Target{
				GameID:   fmt.Sprintf("%d", save.AppID),
				SavePath: save.SavePath,
			})
		}

		go printEvents(a.Events())

		debounce := time.Duration(cfg.Watch.DebounceSeconds) * time.Second
		w := watch.NewWatcher(a.Service(), nil, debounce)
		err = w.Run(ctx, targets)
		if err == context.Canceled {
			return nil
		}
		return err
	},
}

func printOutcome(game string, outcome *cloudsave.SyncOutcome) {
	switch outcome.Action {
	case cloudsave.ActionUpload:
		fmt.Printf("%s: uploaded %s\n", game, outcome.Snapshot.ObjectKey)
	case cloudsave.ActionDownload:
		fmt.Printf("%s: downloaded %s\n", game, outcome.Snapshot.ObjectKey)
	default:
		fmt.Printf("%s: up to date\n", game)
	}
}

func printReports(reports []cloudsave.SyncReport) {
	for _, r := range reports {
		if r.Err != nil {
			fmt.Printf("%s: %v\n", r.GameID, r.Err)
			continue
		}
		printOutcome(r.GameID, r.Outcome)
	}
}

func printEvents(events <-chan cloudsave.ProgressEvent) {
	for ev := range events {
		if ev.Status == cloudsave.StatusFailed {
			fmt.Fprintf(os.Stderr, "[%s] %s %s: %s\n", ev.Status, ev.Kind, ev.GameID, ev.Error)
			continue
		}
		fmt.Fprintf(os.Stderr, "[%s] %s %s\n", ev.Status, ev.Kind, ev.GameID)
	}
}

func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptSecret reads a line without echoing it to the terminal.
func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading secret: %w", err)
	}
	return strings.TrimSpace(string(secret)), nil
}

func confirm(prompt string) (bool, error) {
	answer, err := promptLine(prompt)
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configSetCredentialsCmd)
	configCmd.AddCommand(configTestCmd)

	// locate flags
	locateCmd.Flags().String("set", "", "Register a manual save-path override")
	locateCmd.Flags().Bool("unset", false, "Remove the manual override")

	// sync flags
	syncCmd.Flags().String("path", "", "Explicit local save path")
	syncCmd.Flags().Bool("all", false, "Sync every installed game")

	// transfer flags
	uploadCmd.Flags().String("path", "", "Explicit local save path")
	downloadCmd.Flags().String("key", "", "Object key of the snapshot (default: newest)")
	restoreCmd.Flags().String("key", "", "Object key of the snapshot (default: newest)")
	restoreCmd.Flags().String("path", "", "Explicit local save path")
	deleteCmd.Flags().String("key", "", "Object key of the snapshot (default: newest)")
	deleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(locateCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(restoreCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
}
