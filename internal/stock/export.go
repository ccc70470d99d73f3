package stock

import (
	"encoding/csv"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/stocklane/stocklane/internal/platform/httpx"
)

var summaryHeader = []string{"Material Code", "Material Name", "Unit", "Received", "Remain", "Issued"}

func (h *Handler) exportSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summarize(r.Context(), queryID(r, "warehouse_id"))
	if err != nil {
		h.logger.Error("export summary", slog.Any("error", err))
		respondStockError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Summary"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for col, title := range summaryHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		f.SetCellValue(sheet, cell, title)
	}
	for i, row := range rows {
		values := []any{row.MaterialCode, row.MaterialName, row.Unit, row.TotalQuantity, row.TotalRemain, row.Issued}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	filename := "stock-summary-" + time.Now().UTC().Format("20060102") + ".xlsx"
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	if err := f.Write(w); err != nil {
		h.logger.Error("write summary workbook", slog.Any("error", err))
	}
}

func (h *Handler) exportSummaryCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := h.service.Summarize(r.Context(), queryID(r, "warehouse_id"))
	if err != nil {
		h.logger.Error("export summary csv", slog.Any("error", err))
		respondStockError(w, err)
		return
	}

	filename := "stock-summary-" + time.Now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	writer := csv.NewWriter(w)
	if err := writer.Write(summaryHeader); err != nil {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	for _, row := range rows {
		record := []string{
			row.MaterialCode,
			row.MaterialName,
			row.Unit,
			strconv.FormatInt(row.TotalQuantity, 10),
			strconv.FormatInt(row.TotalRemain, 10),
			strconv.FormatInt(row.Issued, 10),
		}
		if err := writer.Write(record); err != nil {
			h.logger.Error("write summary csv", slog.Any("error", err))
			return
		}
	}
	writer.Flush()
}
