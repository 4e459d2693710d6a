// Package main provides the gaffer CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gadgetlabs/Gaffer/pkg/config"
	"github.com/gadgetlabs/Gaffer/pkg/ctxlog"
	"github.com/gadgetlabs/Gaffer/pkg/graph"
	"github.com/gadgetlabs/Gaffer/pkg/library"
	"github.com/gadgetlabs/Gaffer/pkg/pool"
	"github.com/gadgetlabs/Gaffer/pkg/schema"
	"github.com/gadgetlabs/Gaffer/pkg/store"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	var cfg *config.Config

	rootCmd := &cobra.Command{
		Use:   "gaffer",
		Short: "Gaffer - schema-driven graph data engine",
		Long: `Gaffer stores entities and edges whose properties are aggregated,
filtered and transformed according to a schema.

Configuration is read from GAFFER_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.LoadFromEnv()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger := ctxlog.New(os.Stderr, cfg.Logging.Format, cfg.Logging.Level)
			slog.SetDefault(logger)

			cfg.Memory.ApplyRuntimeMemory()
			pool.Configure(pool.PoolConfig{Enabled: cfg.Memory.PoolEnabled, MaxSize: cfg.Memory.PoolMaxSize})
			logger.Debug("Runtime configured.",
				"memoryLimit", cfg.Memory.RuntimeLimit,
				"gcPercent", cfg.Memory.GCPercent,
				"pooling", cfg.Memory.PoolEnabled)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gaffer v%s (%s)\n", version, commit)
		},
	})

	// Schema commands
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Schema operations",
	}
	schemaCmd.AddCommand(&cobra.Command{
		Use:   "validate [files...]",
		Short: "Load and validate schema files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSchemaValidate,
	})
	rootCmd.AddCommand(schemaCmd)

	// Library commands
	libraryCmd := &cobra.Command{
		Use:   "library",
		Short: "Graph library operations",
	}
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a graph with its schema and store properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibraryAdd(cmd, cfg)
		},
	}
	addCmd.Flags().String("graph-id", "", "Graph id")
	addCmd.Flags().StringSlice("schema", nil, "Schema files, merged in order")
	addCmd.Flags().String("properties", "", "Store properties file")
	addCmd.Flags().String("schema-id", "", "Schema id (defaults to a content hash)")
	addCmd.Flags().String("properties-id", "", "Properties id (defaults to a content hash)")
	_ = addCmd.MarkFlagRequired("graph-id")
	_ = addCmd.MarkFlagRequired("schema")
	libraryCmd.AddCommand(addCmd)
	libraryCmd.AddCommand(&cobra.Command{
		Use:   "get [graphId]",
		Short: "Show a registered graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLibraryGet(cmd, cfg, args[0])
		},
	})
	rootCmd.AddCommand(libraryCmd)

	// Run command
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Execute an encoded operation chain against a graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(cmd, cfg)
		},
	}
	runCmd.Flags().String("graph-id", "", "Graph id")
	runCmd.Flags().StringSlice("schema", nil, "Schema files (optional when the graph is in the library)")
	runCmd.Flags().String("properties", "", "Store properties file")
	runCmd.Flags().String("chain", "", "JSON file holding the operation chain, - for stdin")
	runCmd.Flags().String("user", "", "User id")
	runCmd.Flags().StringSlice("auths", nil, "Data authorisations of the user")
	_ = runCmd.MarkFlagRequired("graph-id")
	_ = runCmd.MarkFlagRequired("chain")
	rootCmd.AddCommand(runCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runSchemaValidate(cmd *cobra.Command, args []string) error {
	sch, err := schema.LoadFiles(args)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Schema is valid (%d groups)\n", len(sch.Groups()))
	for _, group := range sch.Groups() {
		fmt.Fprintf(cmd.OutOrStdout(), "   • %s\n", group)
	}
	return nil
}

func runLibraryAdd(cmd *cobra.Command, cfg *config.Config) error {
	graphID, _ := cmd.Flags().GetString("graph-id")
	schemaFiles, _ := cmd.Flags().GetStringSlice("schema")
	propsFile, _ := cmd.Flags().GetString("properties")
	schemaID, _ := cmd.Flags().GetString("schema-id")
	propertiesID, _ := cmd.Flags().GetString("properties-id")

	sch, err := schema.LoadFiles(schemaFiles)
	if err != nil {
		return err
	}
	props, err := loadProperties(cfg, propsFile)
	if err != nil {
		return err
	}

	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	ids, err := lib.Add(cmd.Context(), graphID, schemaID, sch, propertiesID, props)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Registered %s\n", graphID)
	fmt.Fprintf(cmd.OutOrStdout(), "   Schema id:     %s\n", ids.SchemaID)
	fmt.Fprintf(cmd.OutOrStdout(), "   Properties id: %s\n", ids.PropertiesID)
	return nil
}

func runLibraryGet(cmd *cobra.Command, cfg *config.Config, graphID string) error {
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer lib.Close()

	ctx := cmd.Context()
	ids, err := lib.GetIDs(ctx, graphID)
	if err != nil {
		return err
	}
	schemaBytes, err := lib.GetSchemaBytes(ctx, ids.SchemaID)
	if err != nil {
		return err
	}
	props, err := lib.GetProperties(ctx, ids.PropertiesID)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), map[string]any{
		"graphId":      graphID,
		"schemaId":     ids.SchemaID,
		"propertiesId": ids.PropertiesID,
		"schema":       json.RawMessage(schemaBytes),
		"properties":   props,
	})
}

func runChain(cmd *cobra.Command, cfg *config.Config) error {
	graphID, _ := cmd.Flags().GetString("graph-id")
	schemaFiles, _ := cmd.Flags().GetStringSlice("schema")
	propsFile, _ := cmd.Flags().GetString("properties")
	chainFile, _ := cmd.Flags().GetString("chain")
	userID, _ := cmd.Flags().GetString("user")
	auths, _ := cmd.Flags().GetStringSlice("auths")

	ctx := cmd.Context()
	lib, err := openLibrary(cfg)
	if err != nil {
		return err
	}

	b := graph.NewBuilder().GraphID(graphID).Library(lib).Logger(ctxlog.FromContext(ctx))
	if len(schemaFiles) > 0 {
		sch, err := schema.LoadFiles(schemaFiles)
		if err != nil {
			_ = lib.Close()
			return err
		}
		props, err := loadProperties(cfg, propsFile)
		if err != nil {
			_ = lib.Close()
			return err
		}
		b.Schema(sch).Properties(props)
	} else if propsFile != "" {
		_ = lib.Close()
		return fmt.Errorf("--properties requires --schema")
	}

	g, err := b.Build(ctx)
	// The graph keeps no reference to the library once built.
	_ = lib.Close()
	if err != nil {
		return err
	}
	defer g.Close()

	data, err := readInput(cmd.InOrStdin(), chainFile)
	if err != nil {
		return err
	}
	chain, err := g.Codec().DecodeChain(data)
	if err != nil {
		return err
	}

	result, err := g.Execute(ctx, chain, store.User{UserID: userID, DataAuths: auths})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), result)
}

// openLibrary opens the library backend selected by cfg.
func openLibrary(cfg *config.Config) (*library.Library, error) {
	switch cfg.Library.Backend {
	case config.LibraryBadger:
		b, err := library.NewBadgerBackend(cfg.Library.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening library: %w", err)
		}
		return library.New(b), nil
	case config.LibraryEtcd:
		b, err := library.NewEtcdBackend(library.EtcdConfig{
			Endpoints:   cfg.Library.EtcdEndpoints,
			Namespace:   cfg.Library.EtcdNamespace,
			DialTimeout: cfg.Library.EtcdDialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("opening library: %w", err)
		}
		return library.New(b), nil
	default:
		return library.New(library.NewMemoryBackend()), nil
	}
}

// loadProperties reads path, or starts empty when path is "", and fills
// unset keys from cfg.
func loadProperties(cfg *config.Config, path string) (*store.Properties, error) {
	props := store.NewProperties()
	if path != "" {
		var err error
		if props, err = store.LoadProperties(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyStoreDefaults(props); err != nil {
		return nil, err
	}
	return props, props.Validate()
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
