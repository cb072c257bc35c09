package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"dienstplan/internal/roster"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoEmployees  = errors.New("该月没有可导出的员工")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 设计说明：
//   - 导出当前计划月的显示内容（含愿望/休假体现、锁定）为 .xlsx
//   - 导出前等待流水线落定，保证与界面一致
//   - 以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	ExportRoster(ctx context.Context, year int, month time.Month) (*bytes.Buffer, string, error)
}

type exportService struct {
	roster RosterService
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(rs RosterService, logger *zap.Logger) ExportService {
	return &exportService{roster: rs, logger: logger}
}

var weekdayShort = map[time.Weekday]string{
	time.Monday: "Mo", time.Tuesday: "Di", time.Wednesday: "Mi", time.Thursday: "Do",
	time.Friday: "Fr", time.Saturday: "Sa", time.Sunday: "So",
}

// ═══════════════════════════════════════════════════════════
// ExportRoster 导出月度排班为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 第 1 行：标题
//   - 第 2 行：姓名 | 1 Sa | 2 So | … | 工时
//   - 员工行：仅可见员工，单元格为显示代码，按班次颜色填充，锁定格子加粗
//   - 统计行：开启缺员检查的班次每日人数，缺员标红

func (s *exportService) ExportRoster(ctx context.Context, year int, month time.Month) (*bytes.Buffer, string, error) {
	// 1. 确保该月已加载且编辑已落定
	if _, err := s.roster.View(ctx, year, month); err != nil {
		return nil, "", err
	}
	pdm := s.roster.Manager()
	catalog := pdm.Catalog()

	var employees []int
	names := make(map[int]string)
	for _, e := range pdm.Employees() {
		if !e.Visible {
			continue
		}
		employees = append(employees, e.ID)
		names[e.ID] = e.DisplayName()
	}
	if len(employees) == 0 {
		return nil, "", ErrExportNoEmployees
	}
	dates := roster.MonthDates(year, month)

	// 2. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := fmt.Sprintf("Dienstplan %04d-%02d", year, int(month))
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	lastCol := colName(len(dates) + 1)
	f.SetColWidth(sheetName, "A", "A", 24)
	f.SetColWidth(sheetName, colName(1), colName(len(dates)), 5)
	f.SetColWidth(sheetName, lastCol, lastCol, 9)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	weekendStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#A5A5A5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	shortStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#C00000"},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	codeStyles := make(map[string]int)
	styleFor := func(code string, locked bool) int {
		key := fmt.Sprintf("%s|%t", code, locked)
		if id, ok := codeStyles[key]; ok {
			return id
		}
		st := &excelize.Style{
			Font:      &excelize.Font{Bold: locked},
			Alignment: &excelize.Alignment{Horizontal: "center"},
		}
		if t, ok := catalog.Get(code); ok && strings.HasPrefix(t.Color, "#") {
			st.Fill = excelize.Fill{Type: "pattern", Color: []string{t.Color}, Pattern: 1}
		}
		id, _ := f.NewStyle(st)
		codeStyles[key] = id
		return id
	}

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("Dienstplan %02d/%04d", int(month), year))
	f.MergeCell(sheetName, "A1", cell(lastCol, 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	f.SetCellValue(sheetName, cell("A", row), "Name")
	f.SetCellStyle(sheetName, cell("A", row), cell("A", row), headerStyle)
	for i, d := range dates {
		c := cell(colName(i+1), row)
		f.SetCellValue(sheetName, c, fmt.Sprintf("%d\n%s", d.Day, weekdayShort[d.Weekday()]))
		style := headerStyle
		if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday || pdm.StaffingRules().IsHoliday(d) {
			style = weekendStyle
		}
		f.SetCellStyle(sheetName, c, c, style)
	}
	f.SetCellValue(sheetName, cell(lastCol, row), "Std.")
	f.SetCellStyle(sheetName, cell(lastCol, row), cell(lastCol, row), headerStyle)

	// 员工行
	row = 3
	for _, uid := range employees {
		f.SetCellValue(sheetName, cell("A", row), names[uid])
		for i, d := range dates {
			text := pdm.DisplayCode(uid, d)
			_, locked := pdm.LockCode(uid, d)
			if text == "" && !locked {
				continue
			}
			c := cell(colName(i+1), row)
			f.SetCellValue(sheetName, c, text)
			f.SetCellStyle(sheetName, c, c, styleFor(text, locked))
		}
		f.SetCellValue(sheetName, cell(lastCol, row), pdm.UserHours(uid))
		row++
	}

	// 统计行
	row++
	for _, t := range catalog.Ordered(true) {
		if !t.CheckUnderstaffing {
			continue
		}
		f.SetCellValue(sheetName, cell("A", row), t.Code)
		for i, d := range dates {
			n := pdm.DisplayCounts(d)[t.Code]
			c := cell(colName(i+1), row)
			if req, ok := pdm.GetMinStaffingForDate(d)[t.Code]; ok {
				f.SetCellValue(sheetName, c, fmt.Sprintf("%d/%d", n, req))
			} else {
				f.SetCellValue(sheetName, c, n)
			}
			for _, short := range pdm.Understaffing(d) {
				if short == t.Code {
					f.SetCellStyle(sheetName, c, c, shortStyle)
					break
				}
			}
		}
		row++
	}

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("Dienstplan_%04d-%02d.xlsx", year, int(month))
	return buf, filename, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
