package setup

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/RishabhRajTarunEL/cohort-builder-sub001/internal/config"
)

// CLI provides the command-line interface for setup operations.
type CLI struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewCLI creates a new setup CLI instance.
func NewCLI() *CLI {
	return &CLI{
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

// Run executes the setup command based on the provided arguments.
func (c *CLI) Run(args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "init":
		return c.runInit()
	case "status":
		return c.showStatus()
	case "validate":
		return c.validate()
	case "wizard":
		return c.runWizard()
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		return c.showHelp()
	}
}

// showHelp displays usage information.
func (c *CLI) showHelp() error {
	help := `
Cohort Builder Setup

Usage:
  cohortctl setup <command>

Commands:
  wizard          Interactive setup wizard (recommended for new users)
  init            Create the data directory and an empty cohort database
  status          Show current setup status
  validate        Validate current configuration
  help            Show this help message

Environment:
  COHORT_DATA_DIR          Data directory (default ~/.cohort-builder)
  COHORT_SCHEMA_PATH       Table/field metadata document (default data/schema.json)
  COHORT_PRODUCER_URL      Optional natural-language filter producer endpoint
  COHORT_PRODUCER_API_KEY  Optional producer API key
`
	fmt.Fprintln(c.out, help)
	return nil
}

func (c *CLI) runInit() error {
	cfg := config.LoadLiteConfig()
	if err := InitDataDir(cfg); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Initialized data directory at %s\n", cfg.DataDir)
	fmt.Fprintf(c.out, "Cohort database: %s\n", cfg.CohortDBPath())
	return nil
}

// showStatus prints the installation state.
func (c *CLI) showStatus() error {
	status := CheckStatus(config.LoadLiteConfig())

	fmt.Fprintln(c.out, "Cohort Builder Setup Status")
	fmt.Fprintln(c.out, strings.Repeat("-", 40))
	fmt.Fprintf(c.out, "Data directory:   %s (%s)\n", status.DataDir, present(status.DataDirExists))
	fmt.Fprintf(c.out, "Cohort database:  %s (%s)\n", status.CohortDBPath, present(status.CohortDBExists))
	if status.CohortDBExists {
		fmt.Fprintf(c.out, "Saved cohorts:    %d\n", status.SavedCohorts)
	}
	if status.SchemaOK {
		fmt.Fprintf(c.out, "Schema document:  %s (ok, %d tables)\n", status.SchemaPath, len(status.SchemaTables))
	} else {
		fmt.Fprintf(c.out, "Schema document:  %s (missing or invalid)\n", status.SchemaPath)
	}
	if status.ProducerURL != "" {
		fmt.Fprintf(c.out, "Filter producer:  %s\n", status.ProducerURL)
	} else {
		fmt.Fprintln(c.out, "Filter producer:  not configured")
	}
	return nil
}

func (c *CLI) validate() error {
	problems := Validate(config.LoadLiteConfig())
	if len(problems) == 0 {
		fmt.Fprintln(c.out, "Configuration is valid")
		return nil
	}
	for _, p := range problems {
		fmt.Fprintf(c.out, "  - %v\n", p)
	}
	return fmt.Errorf("%d problem(s) found", len(problems))
}

// runWizard walks the user through first-time configuration.
func (c *CLI) runWizard() error {
	cfg := config.LoadLiteConfig()

	fmt.Fprintln(c.out, "Cohort Builder Setup Wizard")
	fmt.Fprintln(c.out, strings.Repeat("-", 40))

	cfg.DataDir = c.prompt("Data directory", cfg.DataDir)
	cfg.SchemaPath = c.prompt("Schema document path", cfg.SchemaPath)
	cfg.ProducerURL = c.prompt("Filter producer URL (blank to skip)", cfg.ProducerURL)
	if cfg.ProducerURL != "" {
		cfg.ProducerAPIKey = c.prompt("Producer API key (blank to skip)", cfg.ProducerAPIKey)
	}

	if err := InitDataDir(cfg); err != nil {
		return err
	}
	envPath, err := WriteEnvFile(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "\nSetup complete. To use this configuration:\n")
	fmt.Fprintf(c.out, "  source %s\n", envPath)
	return nil
}

// prompt reads one answer, returning the default when the user hits enter.
func (c *CLI) prompt(label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(c.out, "%s [%s]: ", label, defaultValue)
	} else {
		fmt.Fprintf(c.out, "%s: ", label)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return defaultValue
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}

func present(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
