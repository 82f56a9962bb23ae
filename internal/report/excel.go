package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/parser06/first-responder-risk/internal/models"
)

const (
	eventsSheetName  = "Risk Events"
	samplesSheetName = "Vital Samples"
)

// RiskEventsHeader 风险事件导出表头
var RiskEventsHeader = []string{
	"Event ID",
	"Officer ID",
	"Risk Level",
	"Risk Score",
	"Confidence",
	"Anomaly",
	"Model Version",
	"Recommendations",
	"Created At",
}

// VitalSamplesHeader 采样明细导出表头
var VitalSamplesHeader = []string{
	"Officer ID",
	"Heart Rate",
	"Confidence",
	"Source",
	"Recorded At",
}

var riskEventColumnWidths = []float64{
	38, // Event ID
	20, // Officer ID
	12, // Risk Level
	12, // Risk Score
	12, // Confidence
	10, // Anomaly
	15, // Model Version
	60, // Recommendations
	20, // Created At
}

var vitalSampleColumnWidths = []float64{
	20, // Officer ID
	12, // Heart Rate
	12, // Confidence
	15, // Source
	20, // Recorded At
}

// GenerateRiskReport 生成风险事件报表 Excel 文件
// samples 为空时只输出事件工作表
func GenerateRiskReport(events []*models.RiskEvent, samples []*models.VitalSample) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	eventRows := make([][]interface{}, 0, len(events))
	for _, event := range events {
		eventRows = append(eventRows, []interface{}{
			event.EventID,
			event.OfficerID,
			string(event.RiskLevel),
			event.RiskScore,
			event.Confidence,
			yesNo(event.AnomalyDetected),
			event.ModelVersion,
			strings.Join(event.Recommendations, "; "),
			event.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	if err := writeSheet(f, eventsSheetName, RiskEventsHeader, riskEventColumnWidths, eventRows); err != nil {
		f.Close()
		return nil, err
	}

	if len(samples) > 0 {
		sampleRows := make([][]interface{}, 0, len(samples))
		for _, sample := range samples {
			sampleRows = append(sampleRows, []interface{}{
				sample.OfficerID,
				sample.HeartRate,
				sample.Confidence,
				sample.Source,
				sample.RecordedAt.Format("2006-01-02 15:04:05"),
			})
		}
		if err := writeSheet(f, samplesSheetName, VitalSamplesHeader, vitalSampleColumnWidths, sampleRows); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 删除默认的 Sheet1
	f.DeleteSheet("Sheet1")

	index, err := f.GetSheetIndex(eventsSheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to locate events sheet: %w", err)
	}
	f.SetActiveSheet(index)

	// Write to bytes buffer
	// Note: File must remain open during Write operation
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}

	return buf.Bytes(), nil
}

// writeSheet 写入单个工作表: 表头样式、列宽、数据行、冻结首行
func writeSheet(f *excelize.File, sheetName string, headers []string, widths []float64, rows [][]interface{}) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
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
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i := 0; i < len(headers); i++ {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if i < len(widths) && widths[i] > 0 {
			if err := f.SetColWidth(sheetName, col, col, widths[i]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			if value == nil || value == "" {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return fmt.Errorf("failed to set cell value at row %d, col %d: %w", rowIdx+2, colIdx+1, err)
			}
		}
	}

	// 冻结表头
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
