// Package setup provides installation and diagnostic utilities for the
// standalone cohort builder CLI.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/cohortstore"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/config"
	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/schema"
)

// Status summarizes the state of a standalone installation.
type Status struct {
	DataDir        string
	DataDirExists  bool
	CohortDBPath   string
	CohortDBExists bool
	SavedCohorts   int64
	SchemaPath     string
	SchemaOK       bool
	SchemaTables   []string
	ProducerURL    string
}

// EnvFileName is the environment file the wizard writes under the data dir.
const EnvFileName = "cohortctl.env"

// InitDataDir creates the data directory layout and an empty cohort database.
func InitDataDir(cfg *config.LiteConfig) error {
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	store, err := cohortstore.NewSQLiteStore(cfg.CohortDBPath())
	if err != nil {
		return fmt.Errorf("failed to initialize cohort database: %w", err)
	}
	return store.Close()
}

// CheckStatus inspects the installation without modifying it.
func CheckStatus(cfg *config.LiteConfig) *Status {
	status := &Status{
		DataDir:      cfg.DataDir,
		CohortDBPath: cfg.CohortDBPath(),
		SchemaPath:   cfg.SchemaPath,
		ProducerURL:  cfg.ProducerURL,
	}

	if info, err := os.Stat(cfg.DataDir); err == nil && info.IsDir() {
		status.DataDirExists = true
	}
	if _, err := os.Stat(cfg.CohortDBPath()); err == nil {
		status.CohortDBExists = true
		if store, err := cohortstore.NewSQLiteStore(cfg.CohortDBPath()); err == nil {
			if n, err := store.Count(context.Background()); err == nil {
				status.SavedCohorts = n
			}
			store.Close()
		}
	}

	quiet := logrus.New()
	quiet.SetLevel(logrus.ErrorLevel)
	if idx, err := schema.Load(cfg.SchemaPath, quiet); err == nil {
		status.SchemaOK = true
		status.SchemaTables = idx.TableNames()
		sort.Strings(status.SchemaTables)
	}

	return status
}

// Validate verifies that the installation is usable and returns every
// problem found, or nil when the setup is complete.
func Validate(cfg *config.LiteConfig) []error {
	var problems []error

	status := CheckStatus(cfg)
	if !status.DataDirExists {
		problems = append(problems, fmt.Errorf("data directory %s does not exist (run setup init)", cfg.DataDir))
	}
	if !status.CohortDBExists {
		problems = append(problems, fmt.Errorf("cohort database %s does not exist (run setup init)", cfg.CohortDBPath()))
	}
	if !status.SchemaOK {
		problems = append(problems, fmt.Errorf("schema document %s is missing or invalid", cfg.SchemaPath))
	}
	return problems
}

// WriteEnvFile persists wizard answers as COHORT_* environment assignments
// so shells can source them.
func WriteEnvFile(cfg *config.LiteConfig) (string, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# cohortctl environment, generated by setup wizard\n")
	fmt.Fprintf(&b, "export COHORT_DATA_DIR=%q\n", cfg.DataDir)
	fmt.Fprintf(&b, "export COHORT_SCHEMA_PATH=%q\n", cfg.SchemaPath)
	if cfg.ProducerURL != "" {
		fmt.Fprintf(&b, "export COHORT_PRODUCER_URL=%q\n", cfg.ProducerURL)
	}
	if cfg.ProducerAPIKey != "" {
		fmt.Fprintf(&b, "export COHORT_PRODUCER_API_KEY=%q\n", cfg.ProducerAPIKey)
	}

	path := filepath.Join(cfg.DataDir, EnvFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0600); err != nil {
		return "", fmt.Errorf("failed to write env file: %w", err)
	}
	return path, nil
}
