package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"wisefido-allocator/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetResources = "Resources"
	SheetQueue     = "Patient Queue"
	SheetSummary   = "Summary"
)

// ResourceHeader 资源表头
var ResourceHeader = []string{"Resource ID", "Name", "Type", "Status", "Location", "Assigned To", "Estimated Release"}

// QueueHeader 患者队列表头
var QueueHeader = []string{"Rank", "Patient ID", "Name", "Triage", "Score", "Risk Level", "Chief Complaint", "Resources", "Arrival Time"}

// SummaryHeader 资源汇总表头
var SummaryHeader = []string{"Type", "Total", "Available", "In Use", "Maintenance", "Reserved", "Available %", "Level"}

// GenerateBoardReport 生成看板 Excel 报表（资源 / 患者队列 / 汇总三个工作表）
func GenerateBoardReport(board *models.Board) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	resourceRows := make([][]interface{}, 0, len(board.Resources))
	for _, r := range board.Resources {
		resourceRows = append(resourceRows, []interface{}{
			r.ID, r.Name, string(r.Type), string(r.Status), r.Location, r.AssignedTo, formatTime(r.EstimatedRelease),
		})
	}

	queueRows := make([][]interface{}, 0, len(board.Queue))
	for i, p := range board.Queue {
		arrival := ""
		if !p.ArrivalTime.IsZero() {
			arrival = p.ArrivalTime.Format(time.RFC3339)
		}
		queueRows = append(queueRows, []interface{}{
			i + 1, p.ID, p.Name, string(p.Triage), p.Score, p.RiskLevel, p.ChiefComplaint, strings.Join(p.Resources, ", "), arrival,
		})
	}

	summaryRows := make([][]interface{}, 0, len(board.Summary))
	for _, s := range board.Summary {
		summaryRows = append(summaryRows, []interface{}{
			string(s.Type), s.Total, s.Available, s.InUse, s.Maintenance, s.Reserved, s.AvailablePercent, s.Level,
		})
	}

	sheets := []struct {
		name   string
		header []string
		rows   [][]interface{}
		widths []float64
	}{
		{SheetResources, ResourceHeader, resourceRows, []float64{12, 22, 12, 14, 24, 14, 22}},
		{SheetQueue, QueueHeader, queueRows, []float64{8, 12, 20, 12, 10, 12, 36, 20, 22}},
		{SheetSummary, SummaryHeader, summaryRows, []float64{14, 8, 10, 8, 12, 10, 12, 10}},
	}
	for _, s := range sheets {
		if _, err := f.NewSheet(s.name); err != nil {
			return nil, fmt.Errorf("failed to create sheet %s: %w", s.name, err)
		}
		if err := writeSheet(f, s.name, s.header, s.rows, s.widths, headerStyle); err != nil {
			return nil, err
		}
	}

	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(SheetResources); err == nil {
		f.SetActiveSheet(index)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, rows [][]interface{}, widths []float64, headerStyle int) error {
	for col, h := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if col < len(widths) {
			name, err := excelize.ColumnNumberToName(col + 1)
			if err != nil {
				return fmt.Errorf("failed to convert column number: %w", err)
			}
			if err := f.SetColWidth(sheet, name, name, widths[col]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	// 从第2行开始写数据（第1行是表头）
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %s: %w", i+2, sheet, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
