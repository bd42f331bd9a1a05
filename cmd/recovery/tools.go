package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/DanielPopoola/payment-recovery-engine/internal/application"
	"github.com/DanielPopoola/payment-recovery-engine/internal/application/services"
	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/directory"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/persistence/memory"
	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/policyfile"
	"github.com/DanielPopoola/payment-recovery-engine/internal/interfaces/rest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Work with payment batch files offline",
	}

	var (
		dirPath          string
		maxAmountCents   int64
		rejectDuplicates bool
		asJSON           bool
	)
	validate := &cobra.Command{
		Use:   "validate [file.csv]",
		Short: "Validate a batch file without submitting anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			logger := quietLogger()
			var loans application.LoanDirectory
			if dirPath != "" {
				store, err := directory.Open(dirPath)
				if err != nil {
					return err
				}
				defer store.Close()
				loans = store
			}

			rules := services.DefaultValidationRules()
			if maxAmountCents > 0 {
				rules.MaxAmountCents = maxAmountCents
			}
			rules.RejectDuplicates = rejectDuplicates
			validator := services.NewBatchValidator(rules, loans, logger)
			batches := services.NewBatchService(memory.NewBatchRepository(), validator, nil, nil, logger)

			batch, err := batches.Validate(cmd.Context(), filepath.Base(args[0]), f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rest.ToAPIBatch(batch, true))
			}
			printValidation(out, batch)
			if batch.InvalidRecords > 0 {
				return fmt.Errorf("%d of %d records failed validation", batch.InvalidRecords, batch.RecordCount)
			}
			return nil
		},
	}
	validate.Flags().StringVarP(&dirPath, "directory", "d", "", "SQLite loan directory used to check loan references")
	validate.Flags().Int64Var(&maxAmountCents, "max-amount-cents", 0, "Per-record amount ceiling (default: built-in limit)")
	validate.Flags().BoolVar(&rejectDuplicates, "reject-duplicates", false, "Reject duplicate rows instead of flagging them")
	validate.Flags().BoolVarP(&asJSON, "json", "j", false, "Output the validated batch as JSON")

	cmd.AddCommand(validate)
	return cmd
}

func printValidation(w io.Writer, b *domain.PaymentBatch) {
	fmt.Fprintf(w, "%s: %d records, %d valid, %d invalid, declared total %s\n",
		b.FileName, b.RecordCount, b.ValidRecords, b.InvalidRecords, domain.FormatCents(b.DeclaredTotalCents))
	if b.InvalidRecords == 0 {
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROW\tLOAN\tERRORS")
	for _, r := range b.Records {
		if len(r.Errors) == 0 {
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.RowNumber, r.LoanRef, strings.Join(r.Errors, "; "))
	}
	tw.Flush()
}

func policiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "Inspect retry policy files",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file.yaml]",
		Short: "Validate a retry policy file and print the registry it produces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policies, err := policyfile.LoadFile(args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENABLED\tPRIORITY\tMAX\tINTERVALS\tMETHODS\tREASONS")
			for _, p := range policies {
				wire := policyfile.FromDomain(p)
				fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%s\t%s\t%s\n",
					p.ID, p.Enabled, p.Priority, p.MaxAttempts,
					strings.Join(wire.Intervals, ","),
					strings.Join(wire.PaymentMethods, ","),
					strings.Join(wire.FailureReasons, ","))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func directoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "directory",
		Short: "Manage the SQLite loan directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load [directory.db] [loans.yaml]",
		Short: "Insert or replace loans from a YAML export",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			loans, err := directory.ReadLoans(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[1], err)
			}
			store, err := directory.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.UpsertAll(cmd.Context(), loans); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded %d loans into %s\n", len(loans), args[0])
			return nil
		},
	})
	return cmd
}
