package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DanielPopoola/payment-recovery-engine/internal/infrastructure/directory"
)

const header = "Loan Number,Payment Amount,Payment Date,Payment Method,Account Number,Routing Number\n"

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestBatchValidate_ReportsInvalidRows(t *testing.T) {
	path := writeFile(t, "march.csv", header+
		"LN-10000,100.50,2026-03-01,ACH,000123450,021000021\n"+
		"LN-10001,abc,2026-03-01,ACH,000123451,021000021\n")

	out, err := run(t, batchCmd(), "validate", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 records failed validation")
	assert.Contains(t, out, "march.csv: 2 records, 1 valid, 1 invalid")
	assert.Contains(t, out, "LN-10001")
}

func TestBatchValidate_CleanFile(t *testing.T) {
	path := writeFile(t, "clean.csv", header+"LN-10000,100.50,2026-03-01,ACH,000123450,021000021\n")

	out, err := run(t, batchCmd(), "validate", "--json", path)
	require.NoError(t, err)
	assert.Contains(t, out, `"valid_records": 1`)
}

func TestBatchValidate_ChecksLoansAgainstDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "directory.db")
	loans := writeFile(t, "loans.yaml", "loans:\n  - loan_id: loan-1\n    loan_number: LN-10000\n    borrower_name: Ada Obi\n")

	out, err := run(t, directoryCmd(), "load", dbPath, loans)
	require.NoError(t, err)
	assert.Contains(t, out, "loaded 1 loans")

	store, err := directory.Open(dbPath)
	require.NoError(t, err)
	_, err = store.FindLoan(context.Background(), "LN-10000")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	csv := writeFile(t, "batch.csv", header+
		"LN-10000,100.50,2026-03-01,ACH,000123450,021000021\n"+
		"LN-99999,100.50,2026-03-01,ACH,000123450,021000021\n")
	out, err = run(t, batchCmd(), "validate", "--directory", dbPath, csv)
	require.Error(t, err)
	assert.Contains(t, out, "LN-99999")
}

func TestPoliciesCheck(t *testing.T) {
	out, err := run(t, policiesCmd(), "check", filepath.Join("..", "..", "configs", "policies.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "ach-nsf")
	assert.Contains(t, out, "3d,7d")

	bad := writeFile(t, "bad.yaml", "policies:\n  - id: x\n    name: x\n    intervals: [1d, 2d]\n    max_attempts: 1\n")
	_, err = run(t, policiesCmd(), "check", bad)
	assert.Error(t, err)
}
