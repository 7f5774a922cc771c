// Package main provides the standalone cohort builder CLI. It needs no
// external services, saved cohorts live in a local SQLite database.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/cohortstore"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/config"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/setup"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if os.Args[1] == "setup" {
		if err := setup.NewCLI().Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Setup failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg := config.LoadLiteConfig()
	if err := run(cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.LiteConfig, command string, args []string) error {
	ctx := context.Background()

	switch command {
	case "tables":
		return listTables(cfg)
	case "fields":
		if len(args) < 1 {
			return fmt.Errorf("usage: cohortctl fields <table>")
		}
		return listFields(cfg, args[0])
	case "list":
		return withStore(cfg, func(store cohortstore.Store) error {
			return listCohorts(ctx, store)
		})
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: cohortctl show <name>")
		}
		return withStore(cfg, func(store cohortstore.Store) error {
			return showCohort(ctx, store, args[0])
		})
	case "delete":
		if len(args) < 1 {
			return fmt.Errorf("usage: cohortctl delete <id|name>")
		}
		return withStore(cfg, func(store cohortstore.Store) error {
			return deleteCohort(ctx, store, args[0])
		})
	case "export":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		return withStore(cfg, func(store cohortstore.Store) error {
			return exportCohorts(ctx, cfg, store, path)
		})
	case "import":
		if len(args) < 1 {
			return fmt.Errorf("usage: cohortctl import <file>")
		}
		return withStore(cfg, func(store cohortstore.Store) error {
			return importCohorts(ctx, store, args[0])
		})
	case "help", "--help", "-h":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func usage() {
	fmt.Println(`cohortctl manages locally saved patient cohorts.

Usage:
  cohortctl <command> [arguments]

Commands:
  setup <cmd>     Installation and diagnostics (wizard, init, status, validate)
  tables          List tables in the schema document
  fields <table>  List filterable fields of a table
  list            List saved cohorts
  show <name>     Show one saved cohort with its filters
  delete <id>     Delete a saved cohort by numeric ID or name
  export [file]   Export all saved cohorts as JSON
  import <file>   Import cohorts from a JSON export, skipping existing names
  help            Show this help message`)
}

// withStore opens the local cohort database for the duration of one command.
func withStore(cfg *config.LiteConfig, fn func(cohortstore.Store) error) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := cohortstore.NewSQLiteStore(cfg.CohortDBPath())
	if err != nil {
		return fmt.Errorf("failed to open cohort database: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func loadSchema(cfg *config.LiteConfig) (*schema.Index, error) {
	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)
	idx, err := schema.Load(cfg.SchemaPath, quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema document %s: %w", cfg.SchemaPath, err)
	}
	return idx, nil
}

func listTables(cfg *config.LiteConfig) error {
	idx, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	for _, name := range idx.TableNames() {
		table := idx.Table(name)
		fmt.Printf("%-24s %d fields\n", name, len(table.FieldNames()))
	}
	return nil
}

func listFields(cfg *config.LiteConfig, table string) error {
	idx, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	if idx.Table(table) == nil {
		return fmt.Errorf("unknown table: %s", table)
	}
	for _, nf := range idx.FilterableFields(table) {
		kind := "categorical"
		switch {
		case idx.IsDate(table, nf.Name):
			kind = "date"
		case idx.IsNumeric(table, nf.Name):
			kind = "numeric"
		}
		fmt.Printf("%-32s %-10s %s\n", nf.Name, kind, nf.Field.Description)
		if values := idx.FieldUniqueValues(table, nf.Name); len(values) > 0 {
			fmt.Printf("    values: %s\n", strings.Join(values, ", "))
		}
	}
	return nil
}

func listCohorts(ctx context.Context, store cohortstore.Store) error {
	cohorts, err := store.List(ctx, 100, 0)
	if err != nil {
		return err
	}
	if len(cohorts) == 0 {
		fmt.Println("No saved cohorts")
		return nil
	}
	for _, c := range cohorts {
		fmt.Printf("%-6d %-32s %6d patients  %d filters  %s\n",
			c.ID, c.Name, c.PatientCount, len(c.Filters), c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func showCohort(ctx context.Context, store cohortstore.Store, name string) error {
	cohort, err := store.Get(ctx, name)
	if err != nil {
		return err
	}
	if cohort == nil {
		return fmt.Errorf("no saved cohort named %q", name)
	}

	fmt.Printf("Name:          %s\n", cohort.Name)
	if cohort.Description != "" {
		fmt.Printf("Description:   %s\n", cohort.Description)
	}
	fmt.Printf("Patient count: %d\n", cohort.PatientCount)
	fmt.Printf("Updated:       %s\n", cohort.UpdatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Filters (%d):\n", len(cohort.Filters))
	for _, f := range cohort.Filters {
		state := "enabled"
		if !f.Enabled {
			state = "disabled"
		}
		fmt.Printf("  [%s, %s] %s\n", f.Kind, state, f.Text)
		for _, entity := range f.Entities {
			if m, ok := f.DBMappings[entity]; ok {
				fmt.Printf("      %s -> %s\n", entity, m.TableDotField)
			}
		}
	}
	return nil
}

func deleteCohort(ctx context.Context, store cohortstore.Store, key string) error {
	id, err := strconv.ParseInt(key, 10, 64)
	if err != nil {
		cohort, getErr := store.Get(ctx, key)
		if getErr != nil {
			return getErr
		}
		if cohort == nil {
			return fmt.Errorf("no saved cohort named %q", key)
		}
		id = cohort.ID
	}
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted cohort %d\n", id)
	return nil
}

func exportCohorts(ctx context.Context, cfg *config.LiteConfig, store cohortstore.Store, path string) error {
	if path == "" {
		path = cfg.ExportDir() + "/cohorts.json"
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	if err := store.ExportJSON(ctx, f); err != nil {
		return err
	}
	fmt.Printf("Exported cohorts to %s\n", path)
	return nil
}

func importCohorts(ctx context.Context, store cohortstore.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open import file: %w", err)
	}
	defer f.Close()

	imported, skipped, err := store.ImportJSON(ctx, f)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d cohort(s), skipped %d existing\n", imported, skipped)
	return nil
}
