// Command jungledb is a small inspection CLI for bbolt-backed object
// stores: list keys, dump records, and declare secondary indices against a
// database file without writing Go code.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jungledb/jungledb/pkg/boltbackend"
	"github.com/jungledb/jungledb/pkg/jlog"
	"github.com/jungledb/jungledb/pkg/jungledb"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jungledb",
	Short: "Inspect and manage bbolt-backed JungleDB object stores",
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", ".", "directory containing <store>.db files")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit logs as JSON")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(createIndexCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	jlog.Init(jlog.Config{Level: jlog.Level(level), JSONOutput: jsonOutput})
}

func openBackend(cmd *cobra.Command, store string) (*boltbackend.Backend, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	backend := boltbackend.New(dataDir, store, nil)
	if err := backend.Connect(context.Background()); err != nil {
		return nil, fmt.Errorf("open %s: %w", store, err)
	}
	return backend, nil
}

var inspectCmd = &cobra.Command{
	Use:   "inspect STORE",
	Short: "Print record count and declared indices for STORE",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openBackend(cmd, args[0])
		if err != nil {
			return err
		}
		defer backend.Close()

		fmt.Printf("store: %s\n", args[0])
		fmt.Printf("records: %d\n", backend.Length())

		indices := backend.Indices()
		if len(indices) == 0 {
			fmt.Println("indices: none")
			return nil
		}
		fmt.Println("indices:")
		for _, desc := range indices {
			kind := "non-unique"
			if desc.Unique {
				kind = "unique"
			}
			if desc.MultiEntry {
				kind += ", multi-entry"
			}
			idx, _ := backend.Index(desc.Name)
			fmt.Printf("  %-20s %-30s %s (%d keys)\n", desc.Name, desc.KeyPath.String(), kind, idx.Count(nil))
		}
		return nil
	},
}

var dumpCmd = &cobra.Command{
	Use:   "dump STORE",
	Short: "Print every record in STORE as JSON, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := openBackend(cmd, args[0])
		if err != nil {
			return err
		}
		defer backend.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		keys := backend.Keys(nil, limit)
		enc := json.NewEncoder(os.Stdout)
		for _, key := range keys {
			value, ok := backend.Get(key)
			if !ok {
				continue
			}
			if err := enc.Encode(map[string]any{"key": key, "value": value}); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	dumpCmd.Flags().Int("limit", 0, "maximum number of records to print (0 means unlimited)")
}

var createIndexCmd = &cobra.Command{
	Use:   "create-index STORE",
	Short: "Declare a secondary index on STORE and backfill it from existing data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		name, _ := cmd.Flags().GetString("name")
		keyPath, _ := cmd.Flags().GetString("key-path")
		unique, _ := cmd.Flags().GetBool("unique")
		multiEntry, _ := cmd.Flags().GetBool("multi-entry")
		if name == "" || keyPath == "" {
			return fmt.Errorf("--name and --key-path are required")
		}

		backend, err := openBackend(cmd, args[0])
		if err != nil {
			return err
		}
		defer backend.Close()

		desc := jungledb.IndexDescriptor{
			Name:       name,
			KeyPath:    jungledb.NewKeyPath(strings.Split(keyPath, ".")...),
			Unique:     unique,
			MultiEntry: multiEntry,
		}

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("create index: %v", r)
			}
		}()
		backend.CreateIndex(desc)
		fmt.Printf("index %q created\n", name)
		return nil
	},
}

func init() {
	createIndexCmd.Flags().String("name", "", "index name (required)")
	createIndexCmd.Flags().String("key-path", "", "dot-separated field path (required)")
	createIndexCmd.Flags().Bool("unique", false, "reject duplicate secondary keys")
	createIndexCmd.Flags().Bool("multi-entry", false, "index each element of a slice-valued field separately")
}
