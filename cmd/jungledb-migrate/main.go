// Command jungledb-migrate backs up a bbolt-backed object store and then
// applies a schema change to it: adding a secondary index over data that
// already exists on disk. It exists to exercise the backup-then-migrate
// path against a real database file before a schema change touches it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"

	"github.com/jungledb/jungledb/pkg/boltbackend"
	"github.com/jungledb/jungledb/pkg/jungledb"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/jungledb", "JungleDB data directory")
	store      = flag.String("store", "", "object store name (file <data-dir>/<store>.db)")
	indexName  = flag.String("add-index", "", "name of the secondary index to add")
	keyPath    = flag.String("key-path", "", "dot-separated field path the new index is keyed on")
	unique     = flag.Bool("unique", false, "reject the migration if the new index would have duplicate keys")
	multiEntry = flag.Bool("multi-entry", false, "index each element of a slice-valued field separately")
	dryRun     = flag.Bool("dry-run", false, "report what would change without writing anything")
	backupPath = flag.String("backup", "", "backup file path (default <data-dir>/<store>.db.backup)")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *store == "" || *indexName == "" || *keyPath == "" {
		log.Fatal("-store, -add-index, and -key-path are required")
	}

	dbPath := filepath.Join(*dataDir, *store+".db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}

	log.Printf("database: %s", dbPath)
	log.Printf("adding index %q on %q (unique=%v multiEntry=%v)", *indexName, *keyPath, *unique, *multiEntry)

	if err := inspectExisting(dbPath, *indexName); err != nil {
		log.Fatalf("inspection failed: %v", err)
	}

	if *dryRun {
		log.Println("dry run: no changes made")
		return
	}

	backup := *backupPath
	if backup == "" {
		backup = dbPath + ".backup"
	}
	log.Printf("creating backup: %s", backup)
	if err := copyFile(dbPath, backup); err != nil {
		log.Fatalf("failed to create backup: %v", err)
	}

	segments := strings.Split(*keyPath, ".")
	desc := jungledb.IndexDescriptor{
		Name:       *indexName,
		KeyPath:    jungledb.NewKeyPath(segments...),
		Unique:     *unique,
		MultiEntry: *multiEntry,
	}

	backend := boltbackend.New(*dataDir, *store, nil)
	ctx := context.Background()
	if err := backend.Connect(ctx); err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer backend.Close()

	if err := runCreateIndex(backend, desc); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	log.Printf("index %q created over %d records", desc.Name, backend.Length())
}

func runCreateIndex(backend *boltbackend.Backend, desc jungledb.IndexDescriptor) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("create index: %v", r)
		}
	}()
	backend.CreateIndex(desc)
	return nil
}

func inspectExisting(dbPath, indexName string) error {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: true})
	if err != nil {
		return err
	}
	defer db.Close()

	return db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte("data"))
		if data == nil {
			return fmt.Errorf("no data bucket in %s", dbPath)
		}
		log.Printf("existing records: %d", data.Stats().KeyN)

		if schema := tx.Bucket([]byte("schema")); schema != nil {
			if schema.Get([]byte(indexName)) != nil {
				return fmt.Errorf("index %q already declared", indexName)
			}
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0600)
}
