package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/DanielPopoola/payment-recovery-engine/internal/domain"
)

// Canonical field names of a batch file.
const (
	FieldLoanRef       = "loan_ref"
	FieldAmount        = "amount"
	FieldPaymentDate   = "payment_date"
	FieldPaymentMethod = "payment_method"
	FieldAccountNumber = "account_number"
	FieldRoutingNumber = "routing_number"
	FieldReference     = "reference"
)

var headerAliases = map[string]string{
	"loan":             FieldLoanRef,
	"loan_id":          FieldLoanRef,
	"loan_number":      FieldLoanRef,
	"loan_reference":   FieldLoanRef,
	"payment_amount":   FieldAmount,
	"amount_usd":       FieldAmount,
	"date":             FieldPaymentDate,
	"method":           FieldPaymentMethod,
	"account":          FieldAccountNumber,
	"account_no":       FieldAccountNumber,
	"routing":          FieldRoutingNumber,
	"routing_no":       FieldRoutingNumber,
	"aba":              FieldRoutingNumber,
	"ref":              FieldReference,
	"reference_number": FieldReference,
}

// RawRow is one data line of a batch file keyed by canonical header.
type RawRow struct {
	Line   int
	Fields map[string]string
}

// ParseBatchCSV reads a batch file. Row-level problems are left to validation;
// only an unreadable file or header is an error.
func ParseBatchCSV(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("read header: file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = normalizeHeader(h)
	}

	var rows []RawRow
	lineNum := 1
	for {
		lineNum++
		line, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		fields := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(line) && col != "" {
				fields[col] = strings.TrimSpace(line[i])
			}
		}
		rows = append(rows, RawRow{Line: lineNum, Fields: fields})
	}
	return rows, nil
}

// NewBatchRecords turns parsed rows into PENDING records. Typed fields are
// filled in during validation.
func NewBatchRecords(batchID string, rows []RawRow) []*domain.BatchRecord {
	records := make([]*domain.BatchRecord, 0, len(rows))
	for i, row := range rows {
		records = append(records, &domain.BatchRecord{
			ID:            fmt.Sprintf("%s-%d", batchID, i+1),
			RowNumber:     row.Line,
			LoanRef:       row.Fields[FieldLoanRef],
			AccountNumber: row.Fields[FieldAccountNumber],
			RoutingNumber: row.Fields[FieldRoutingNumber],
			Reference:     row.Fields[FieldReference],
			Fields:        row.Fields,
			Status:        domain.RecordPending,
		})
	}
	return records
}

var exportHeader = []string{
	"row", "loan_ref", "amount", "payment_date", "payment_method", "status",
	"transaction_id", "applied", "principal", "interest", "fees", "resulting_balance", "errors",
}

// WriteBatchCSV writes one line per record with its outcome.
func WriteBatchCSV(w io.Writer, batch *domain.PaymentBatch) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range batch.Records {
		line := []string{
			strconv.Itoa(r.RowNumber),
			r.LoanRef,
			r.Fields[FieldAmount],
			r.Fields[FieldPaymentDate],
			r.Fields[FieldPaymentMethod],
			string(r.Status),
			"", "", "", "", "", "",
			strings.Join(r.Errors, "; "),
		}
		if res := r.Result; res != nil {
			line[6] = res.TransactionID
			line[7] = domain.FormatCents(res.AppliedCents)
			line[8] = domain.FormatCents(res.PrincipalCents)
			line[9] = domain.FormatCents(res.InterestCents)
			line[10] = domain.FormatCents(res.FeesCents)
			line[11] = domain.FormatCents(res.ResultingBalanceCents)
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if canonical, ok := headerAliases[h]; ok {
		return canonical
	}
	return h
}
