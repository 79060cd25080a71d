// Package cmd provides the operator command-line interface for managing
// targets and extraction rules.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"auditsync/config"
	"auditsync/core"
	"auditsync/storage"
	"auditsync/util"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	noColor    bool
)

// defaultTimeout bounds one CLI operation.
const defaultTimeout = 30 * time.Second

// NewAdminCmd creates the root admin command.
func NewAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage targets and extraction rules",
		Long: `Manage the monitored targets and their extraction rules.

Targets gate which audit events are ingested; rules define what the
extraction engine pulls out of each event. The consumer only reads this
data, so authoring happens here or through an external system writing to
the same database.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	adminCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	adminCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	adminCmd.AddCommand(newTargetsCmd())
	adminCmd.AddCommand(newRulesCmd())

	return adminCmd
}

// openStorage loads the config and opens the database, returning a
// cleanup function.
func openStorage() (*storage.SQLite, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	logger := zap.NewNop().Sugar()
	db, err := storage.NewSQLite(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, func() { _ = db.Close() }, nil
}

func newTargetsCmd() *cobra.Command {
	targetsCmd := &cobra.Command{
		Use:   "targets",
		Short: "Manage monitored targets",
	}
	targetsCmd.AddCommand(newTargetsListCmd())
	targetsCmd.AddCommand(newTargetsAddCmd())
	return targetsCmd
}

func newTargetsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered targets",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			db, cleanup, err := openStorage()
			if err != nil {
				return err
			}
			defer cleanup()

			targets, err := storage.NewSQLiteTargetStorage(db, db.Logger).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list targets: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(targets)
			}

			if len(targets) == 0 {
				infoColor.Println("No targets registered")
				return nil
			}

			headerColor.Printf("%-20s %-36s %s\n", "NAME", "ID", "DESCRIPTION")
			for _, t := range targets {
				fmt.Printf("%-20s %-36s %s\n", t.Name, t.ID, t.Description)
			}
			return nil
		},
	}
}

func newTargetsAddCmd() *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a monitored target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			db, cleanup, err := openStorage()
			if err != nil {
				return err
			}
			defer cleanup()

			target := &core.Target{
				ID:          uuid.NewString(),
				Name:        args[0],
				Description: description,
			}
			if err := storage.NewSQLiteTargetStorage(db, db.Logger).Create(ctx, target); err != nil {
				errorColor.Fprintf(os.Stderr, "Failed to create target: %v\n", err)
				return err
			}

			successColor.Printf("Created target %s (%s)\n", target.Name, target.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Target description")
	return cmd
}

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage extraction rules",
	}
	rulesCmd.AddCommand(newRulesListCmd())
	rulesCmd.AddCommand(newRulesAddCmd())
	return rulesCmd
}

func newRulesListCmd() *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:     "list <target>",
		Aliases: []string{"ls"},
		Short:   "List a target's extraction rules in evaluation order",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			db, cleanup, err := openStorage()
			if err != nil {
				return err
			}
			defer cleanup()

			ruleStorage := storage.NewSQLiteRuleStorage(db, db.Logger)
			var rules []core.ExtractionRule
			if activeOnly {
				rules, err = ruleStorage.GetActiveRulesByTarget(ctx, args[0])
			} else {
				rules, err = ruleStorage.GetRulesByTarget(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}

			if outputJSON {
				return json.NewEncoder(os.Stdout).Encode(rules)
			}

			if len(rules) == 0 {
				infoColor.Printf("No rules for target %s\n", args[0])
				return nil
			}

			headerColor.Printf("%-5s %-20s %-14s %-8s %-8s %s\n",
				"ORDER", "NAME", "SOURCE", "REQ", "ACTIVE", "PATTERN")
			for _, r := range rules {
				fmt.Printf("%-5d %-20s %-14s %-8t %-8t %s\n",
					r.RuleOrder, r.RuleName, r.SourceField, r.IsRequired, r.IsActive, r.RegexPattern)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Show active rules only")
	return cmd
}

func newRulesAddCmd() *cobra.Command {
	var (
		sourceField string
		pattern     string
		required    bool
		inactive    bool
		order       int
	)

	cmd := &cobra.Command{
		Use:   "add <target> <rule-name>",
		Short: "Add an extraction rule to a target",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			if err := validateSourceField(sourceField); err != nil {
				return err
			}
			if err := util.ValidatePattern(pattern); err != nil {
				return fmt.Errorf("invalid pattern: %w", err)
			}

			db, cleanup, err := openStorage()
			if err != nil {
				return err
			}
			defer cleanup()

			target, err := storage.NewSQLiteTargetStorage(db, db.Logger).GetByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to resolve target %s: %w", args[0], err)
			}

			rule := &core.ExtractionRule{
				ID:           uuid.NewString(),
				TargetID:     target.ID,
				TargetName:   target.Name,
				RuleName:     args[1],
				SourceField:  sourceField,
				RegexPattern: pattern,
				IsRequired:   required,
				IsActive:     !inactive,
				RuleOrder:    order,
			}
			if err := storage.NewSQLiteRuleStorage(db, db.Logger).CreateRule(ctx, rule); err != nil {
				errorColor.Fprintf(os.Stderr, "Failed to create rule: %v\n", err)
				return err
			}

			successColor.Printf("Created rule %s (order %d) on target %s\n", rule.RuleName, rule.RuleOrder, target.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceField, "source", "text", "Event field the pattern runs against")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Regex pattern (first capturing group is the extracted value)")
	cmd.Flags().BoolVar(&required, "required", false, "Fail the event when this rule does not match")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the rule disabled")
	cmd.Flags().IntVar(&order, "order", 0, "Evaluation order (ascending)")
	_ = cmd.MarkFlagRequired("pattern")

	return cmd
}

func validateSourceField(field string) error {
	known := core.KnownSourceFields()
	sort.Strings(known)
	for _, name := range known {
		if strings.EqualFold(field, name) {
			return nil
		}
	}
	return fmt.Errorf("unknown source field %q (known: %s)", field, strings.Join(known, ", "))
}
