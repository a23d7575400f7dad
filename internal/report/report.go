package report

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/UnknownOlympus/janus/internal/models"
	"github.com/xuri/excelize/v2"
)

var ErrNoClients = errors.New("failed to generate roster, 0 clients were provided")

const maxSheetName = 31

var headers = []string{
	"Access Code", "Name", "Company", "Email", "Phone", "Telegram", "Last Login", "Created",
}

// Generator holds the state for the Excel roster generation process.
type Generator struct {
	file *excelize.File
}

// NewGenerator creates a new roster generator.
func NewGenerator() *Generator {
	return &Generator{
		file: excelize.NewFile(),
	}
}

// GenerateClientRoster builds an Excel workbook with one sheet per client status.
// Each sheet lists the clients with their access codes and contact data.
//
// Parameters:
// - clients: The clients to export, in the order they should appear.
//
// Returns:
// - A pointer to a bytes.Buffer containing the workbook.
// - ErrNoClients when the list is empty, or an error if any excelize operation fails.
func GenerateClientRoster(clients []models.Client) (*bytes.Buffer, error) {
	var err error

	if len(clients) == 0 {
		return nil, ErrNoClients
	}

	byStatus := make(map[string][]models.Client)
	for _, client := range clients {
		byStatus[sheetTitle(client.Status)] = append(byStatus[sheetTitle(client.Status)], client)
	}

	gen := NewGenerator()
	defer gen.file.Close()

	if err = gen.addSheets(byStatus); err != nil {
		return nil, fmt.Errorf("failed to add sheets: %w", err)
	}

	// delete default sheet
	if sheetIndex, _ := gen.file.GetSheetIndex("Sheet1"); sheetIndex != -1 {
		if err = gen.file.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("failed to delete default sheet 'Sheet1': %w", err)
		}
	}
	gen.file.SetActiveSheet(0)

	buffer, err := gen.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write data from saved file: %w", err)
	}

	return buffer, nil
}

func sheetTitle(status string) string {
	if status == "" {
		return "Unknown"
	}
	return strings.ToUpper(status[:1]) + status[1:]
}

// addSheets creates one sheet per status in alphabetical order and fills it.
func (g *Generator) addSheets(byStatus map[string][]models.Client) error {
	var err error
	headerIndex := 2

	names := make([]string, 0, len(byStatus))
	for name := range byStatus {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, status := range names {
		sheetName := truncateSheetName(status)
		clients := byStatus[status]

		if _, err = g.file.NewSheet(sheetName); err != nil {
			return fmt.Errorf("failed to generate new sheet '%s': %w", sheetName, err)
		}

		if err = g.setupSheet(sheetName, len(clients)); err != nil {
			return fmt.Errorf("failed to setup sheet '%s': %w", sheetName, err)
		}

		for i, client := range clients {
			if err = g.addRow(sheetName, i+headerIndex, client); err != nil { // first row is the header
				return fmt.Errorf("failed to add row '%d': %w", i+headerIndex, err)
			}
		}
	}
	return nil
}

// setupSheet writes the styled header row, column widths and the table over the data range.
func (g *Generator) setupSheet(sheetName string, rowCount int) error {
	headerStyle, err := g.file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F81BD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "center", Horizontal: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create new style: %w", err)
	}

	rowHeight := 20
	if err = g.file.SetRowHeight(sheetName, 1, float64(rowHeight)); err != nil {
		return fmt.Errorf("failed to set row height for headers: %w", err)
	}
	if err = g.file.SetSheetRow(sheetName, "A1", &headers); err != nil {
		return fmt.Errorf("failed to set sheet row for headers: %w", err)
	}
	if err = g.file.SetCellStyle(sheetName, "A1", "H1", headerStyle); err != nil {
		return fmt.Errorf("failed to set cell style for headers: %w", err)
	}

	widths := map[string]float64{
		"A": 14, "B": 28, "C": 28, "D": 30, "E": 18, "F": 20, "G": 18, "H": 14, //nolint:mnd // column widths
	}
	for col, width := range widths {
		if err = g.file.SetColWidth(sheetName, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err = g.file.AddTable(sheetName, &excelize.Table{
		Range:     fmt.Sprintf("A1:H%d", rowCount+1),
		Name:      "table_" + strings.ReplaceAll(sheetName, " ", ""),
		StyleName: "TableStyleMedium9",
	}); err != nil {
		return fmt.Errorf("failed to add table: %w", err)
	}

	return nil
}

func (g *Generator) addRow(sheetName string, rowNum int, client models.Client) error {
	telegram := ""
	if client.TelegramUsername != "" {
		telegram = "@" + client.TelegramUsername
	}
	lastLogin := ""
	if client.LastLoginAt != nil {
		lastLogin = client.LastLoginAt.Format("02.01.2006 15:04")
	}

	rowData := []any{
		client.AccessCode,
		client.Name,
		client.Company,
		client.Email,
		client.Phone,
		telegram,
		lastLogin,
		client.CreatedAt.Format("02.01.2006"),
	}
	cell, _ := excelize.CoordinatesToCellName(1, rowNum)

	if err := g.file.SetSheetRow(sheetName, cell, &rowData); err != nil {
		return fmt.Errorf("failed to set sheet row: %w", err)
	}

	return nil
}

// truncateSheetName truncates the given sheet name to a maximum of 31 runes.
func truncateSheetName(name string) string {
	if utf8.RuneCountInString(name) > maxSheetName {
		runes := []rune(name)
		return string(runes[:maxSheetName])
	}
	return name
}
