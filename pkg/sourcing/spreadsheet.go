package sourcing

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadRows loads analysis rows from a .csv or .xlsx file. Columns are
// matched by name, case-insensitively: ASIN is required; cost may be named
// cost, your_cost or supplier_cost; fulfillment (FBA/FBM) is optional.
func ReadRows(path string) ([]Row, error) {
	var records [][]string
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = readCSV(path)
	case ".xlsx":
		records, err = readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported spreadsheet format %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	return rowsFromRecords(records)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return records, nil
}

func rowsFromRecords(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("spreadsheet is empty")
	}

	asinCol, costCol, fulfillmentCol := -1, -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "asin":
			asinCol = i
		case "cost", "your_cost", "supplier_cost":
			if costCol == -1 {
				costCol = i
			}
		case "fulfillment":
			fulfillmentCol = i
		}
	}
	if asinCol == -1 {
		return nil, fmt.Errorf("spreadsheet must have an ASIN column")
	}

	var rows []Row
	for _, record := range records[1:] {
		asin := NormalizeASIN(cell(record, asinCol))
		if asin == "" {
			continue
		}

		row := Row{ASIN: asin}

		if costCol != -1 {
			raw := strings.TrimPrefix(strings.TrimSpace(cell(record, costCol)), "$")
			if cost, err := strconv.ParseFloat(raw, 64); err == nil {
				row.Cost = cost
			}
		}

		if fulfillmentCol != -1 {
			switch strings.ToUpper(strings.TrimSpace(cell(record, fulfillmentCol))) {
			case "FBM":
				row.Fulfillment = "FBM"
			default:
				row.Fulfillment = "FBA"
			}
		}

		rows = append(rows, row)
	}
	return rows, nil
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// WriteCSV writes the batch results as CSV, one row per analyzed product.
func WriteCSV(w io.Writer, report BatchReport) error {
	writer := csv.NewWriter(w)

	header := []string{"ASIN", "Fulfillment", "Cost", "AmazonPrice", "EstimatedFees", "NetProfit", "ROI", "SalesRank", "Gated", "Verdict", "Error"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, result := range report.Results {
		record := []string{
			result.ASIN,
			result.Fulfillment,
			formatAmount(result.Cost, true),
			formatAmount(result.Price, result.HasPrice),
			formatAmount(result.Fees, result.HasFees),
			formatAmount(result.Profit, result.HasPrice && result.HasFees),
			formatROI(result),
			formatRank(result),
			formatBool(result.Gated),
			string(result.Verdict),
			formatErr(result.Err),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func formatAmount(v float64, ok bool) string {
	if !ok {
		return ""
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatROI(result Analysis) string {
	if !result.HasPrice || !result.HasFees || result.Cost <= 0 {
		return ""
	}
	return strconv.FormatFloat(result.ROI, 'f', 4, 64)
}

func formatRank(result Analysis) string {
	if !result.HasRank {
		return ""
	}
	return strconv.Itoa(result.SalesRank)
}

func formatBool(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func formatErr(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
