// dhtree - incremental change detection for directory trees
//
// dhtree fingerprints a directory tree, keeps the fingerprints in a cache
// under .dhtree/, and reports the minimal set of directories whose contents
// changed since the cache was last refreshed.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/spf13/cobra"

	dirhashtree "github.com/mattkeenan/dirhashtree/pkg"
)

var (
	flagStateDir    string
	flagVerbose     int
	flagDebug       string
	flagFileHash    string
	flagSymlinks    string
	flagHashWorkers string
	flagFormat      string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dhtree: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dhtree",
		Short: "Incremental change detection for directory trees",
		Long: `dhtree fingerprints a directory tree and keeps the fingerprints in a
durable cache so that batch processing pipelines can skip subtrees whose
contents have not changed since the last run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			dirhashtree.SetVerboseLevel(flagVerbose)
			if flagDebug != "" {
				dirhashtree.SetDebugFlags(flagDebug)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagStateDir, "state-dir", "", "directory holding the .dhtree state (default: the root itself)")
	pf.IntVarP(&flagVerbose, "verbose", "v", 0, "verbose level (0-3)")
	pf.StringVar(&flagDebug, "debug", "", "comma-separated debug flags (walk,diff,store)")
	pf.StringVar(&flagFileHash, "filehash", "", "hash algorithm override (sha1, sha256, sha512, xxh64)")
	pf.StringVar(&flagSymlinks, "symlinks", "", "symlink mode override (all, contained, none)")
	pf.StringVar(&flagHashWorkers, "hash-workers", "", "hash worker count override")
	pf.StringVar(&flagFormat, "format", "", "output format (human, json)")

	root.AddCommand(newChangedCommand())
	root.AddCommand(newRefreshCommand())
	root.AddCommand(newRunCommand())
	root.AddCommand(newPruneCommand())
	root.AddCommand(newStatsCommand())
	root.AddCommand(newConfigCommand())

	return root
}

// resolveRoot returns the explicit root argument, or discovers the enclosing
// dhtree repository from the working directory
func resolveRoot(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return dirhashtree.FindRepoRoot(cwd)
}

// openTreeCache builds a TreeCache for root with CLI overrides applied
func openTreeCache(root string) (*dirhashtree.TreeCache, error) {
	tc := dirhashtree.NewTreeCache(root, flagStateDir)

	overrides := map[string]string{}
	if flagFileHash != "" {
		overrides["filehash"] = flagFileHash
	}
	if flagSymlinks != "" {
		overrides["symlinks"] = flagSymlinks
	}
	if flagHashWorkers != "" {
		overrides["hash_workers"] = flagHashWorkers
	}
	if len(overrides) > 0 {
		if err := tc.ApplyConfigOverrides(overrides); err != nil {
			return nil, err
		}
	}

	return tc, nil
}

func outputFormat(tc *dirhashtree.TreeCache) string {
	if flagFormat != "" {
		return flagFormat
	}
	if cfg := tc.GetConfig(); cfg != nil {
		return cfg.GetOutputConfig().Format
	}
	return "human"
}

func printPaths(tc *dirhashtree.TreeCache, paths []string) error {
	if outputFormat(tc) == "json" {
		if paths == nil {
			paths = []string{}
		}
		encoder := json.NewEncoder(os.Stdout)
		return encoder.Encode(paths)
	}
	for _, path := range paths {
		fmt.Println(path)
	}
	return nil
}

func newChangedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "changed [root]",
		Short: "List directories whose contents changed since the last refresh",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			changed, err := tc.GetChangedDirectories(root)
			if err != nil {
				return err
			}
			return printPaths(tc, changed)
		},
	}
}

func newRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [root]",
		Short: "Recompute the hash tree and persist it to the cache",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			return tc.RefreshCache(root)
		},
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run [root] -- command [args...]",
		Short: "Run a command for each changed directory, then refresh the cache",
		Long: `Runs the given command once per changed directory with the directory path
appended as the final argument. The cache is refreshed only if every
invocation exits cleanly; failed directories stay "changed" for the next run.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash := cmd.ArgsLenAtDash()
			if dash < 0 || dash == len(args) {
				return fmt.Errorf("missing command: usage is 'dhtree run [root] -- command [args...]'")
			}
			rootArgs := args[:dash]
			command := args[dash:]
			if len(rootArgs) > 1 {
				return fmt.Errorf("at most one root argument expected, got %d", len(rootArgs))
			}

			root, err := resolveRoot(rootArgs)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}

			changed, err := tc.ProcessChanged(root, nil, func(dc dirhashtree.DirectoryConfig) error {
				proc := exec.Command(command[0], append(command[1:], dc.Path)...)
				proc.Stdout = os.Stdout
				proc.Stderr = os.Stderr
				return proc.Run()
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "dhtree: processed %d changed directories\n", len(changed))
			return nil
		},
	}
}

func newPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune [root]",
		Short: "Drop cached roots whose directory no longer exists",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			removed, err := tc.Prune()
			if err != nil {
				return err
			}
			return printPaths(tc, removed)
		},
	}
}

func newStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [root]",
		Short: "Show cache statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			roots, files, err := tc.Stats()
			if err != nil {
				return err
			}
			if outputFormat(tc) == "json" {
				return json.NewEncoder(os.Stdout).Encode(map[string]int{"roots": roots, "files": files})
			}
			fmt.Printf("Cached roots: %d\nTracked files: %d\n", roots, files)
			return nil
		},
	}
}

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or change dhtree configuration",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "get [root]",
		Short: "Print the effective configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args)
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			cfg := tc.GetConfig()
			if cfg == nil {
				return fmt.Errorf("no configuration loaded for %s", root)
			}
			all := cfg.GetAllConfig()
			fmt.Printf("treehash.algorithm = %s\n", all.TreeHash.Algorithm)
			fmt.Printf("output.format = %s\n", all.Output.Format)
			fmt.Printf("verbose.level = %d\n", all.Verbose.Level)
			fmt.Printf("verbose.debug = %s\n", all.Verbose.Debug)
			fmt.Printf("symlink.mode = %s\n", all.Symlink.Mode)
			fmt.Printf("performance.hash_workers = %d\n", all.Performance.HashWorkers)
			fmt.Printf("performance.hash_buffer = %s\n", all.Performance.HashBuffer)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "set key value [root]",
		Short: "Set a configuration key (algorithm, format, level, debug, mode, hash_workers, hash_buffer)",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot(args[2:])
			if err != nil {
				return err
			}
			tc, err := openTreeCache(root)
			if err != nil {
				return err
			}
			cfg := tc.GetConfig()
			if cfg == nil {
				return fmt.Errorf("no configuration loaded for %s", root)
			}
			if err := validateConfigValue(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.ApplyOverrides([]string{args[0] + ":" + args[1]}); err != nil {
				return err
			}
			return cfg.Save()
		},
	})

	return configCmd
}

// validateConfigValue rejects bad values before they reach the config file
func validateConfigValue(key, value string) error {
	switch key {
	case "algorithm":
		return dirhashtree.ValidateHashAlgorithm(value)
	case "format":
		return dirhashtree.ValidateOutputFormat(value)
	case "level":
		level, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid verbose level '%s': %w", value, err)
		}
		return dirhashtree.ValidateVerboseLevel(level)
	case "mode":
		return dirhashtree.ValidateSymlinkMode(value)
	case "hash_workers":
		workers, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid hash workers '%s': %w", value, err)
		}
		return dirhashtree.ValidateHashWorkers(workers)
	case "hash_buffer":
		_, err := dirhashtree.ParseHumanSize(value)
		return err
	}
	// Unknown keys fall through to ApplyOverrides, which rejects them
	return nil
}
