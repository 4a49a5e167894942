package services

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const statementSheet = "Statement"

var statementHeader = []any{
	"Connection", "Site", "Biller", "Item", "Item ID", "Approved Amount", "Paid Amount", "Status",
}

// Statement renders the batch and its lines as an XLSX workbook.
func (s *BatchService) Statement(ctx context.Context, orgID, batchID string) ([]byte, error) {
	summary, err := s.summary(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}
	lines, err := s.lineDetails(ctx, orgID, batchID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	meta := [][]any{
		{"Batch", summary.ID},
		{"Status", summary.BatchStatus},
		{"Type", summary.BatchType},
		{"Total Amount", summary.TotalAmount.InexactFloat64()},
		{"Valid Until", summary.ValidityDate.Format("2006-01-02")},
	}
	for i, row := range meta {
		if err := f.SetSheetRow(statementSheet, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, fmt.Errorf("write summary: %w", err)
		}
	}

	headerRow := len(meta) + 2
	headerCell := fmt.Sprintf("A%d", headerRow)
	if err := f.SetSheetRow(statementSheet, headerCell, &statementHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create style: %w", err)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(statementHeader), headerRow)
	if err := f.SetCellStyle(statementSheet, headerCell, lastHeader, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if err := f.SetCellStyle(statementSheet, "A1", fmt.Sprintf("A%d", len(meta)), bold); err != nil {
		return nil, fmt.Errorf("style summary: %w", err)
	}

	for i, l := range lines {
		kind, itemID := CartKindBill, ""
		if l.BillID != nil {
			itemID = *l.BillID
		} else if l.RechargeID != nil {
			kind, itemID = CartKindRecharge, *l.RechargeID
		}
		var paid any = ""
		if l.PaidAmount != nil {
			paid = l.PaidAmount.InexactFloat64()
		}
		row := []any{
			l.ConnectionNumber, l.SiteName, l.BillerCode, kind, itemID,
			l.ApprovedAmount.InexactFloat64(), paid, l.Status,
		}
		if err := f.SetSheetRow(statementSheet, fmt.Sprintf("A%d", headerRow+1+i), &row); err != nil {
			return nil, fmt.Errorf("write line: %w", err)
		}
	}

	if err := f.SetColWidth(statementSheet, "A", "H", 18); err != nil {
		return nil, fmt.Errorf("size columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
