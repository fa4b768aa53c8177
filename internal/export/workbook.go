package export

import (
	"fmt"
	"io"
	"os"

	"github.com/xuri/excelize/v2"
)

const rangeName = "MailStatsRange"

// copyFile copies the template to dst, refusing to overwrite.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open template: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy template: %w", err)
	}
	return out.Close()
}

// openWorkbook copies template to path and opens the copy, or starts an
// empty workbook when template is empty.
func openWorkbook(template, path string) (*excelize.File, error) {
	if template == "" {
		return excelize.NewFile(), nil
	}
	if err := copyFile(template, path); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	return f, nil
}

// freshSheet creates an empty sheet called name, replacing any sheet of
// that name the template already has, and returns its index.
func freshSheet(f *excelize.File, name string) (int, error) {
	existing, err := f.GetSheetIndex(name)
	if err != nil {
		return 0, fmt.Errorf("look up sheet %s: %w", name, err)
	}
	if existing < 0 {
		return f.NewSheet(name)
	}

	tmp := name + "_new"
	if _, err := f.NewSheet(tmp); err != nil {
		return 0, fmt.Errorf("create sheet: %w", err)
	}
	if err := f.DeleteSheet(name); err != nil {
		return 0, fmt.Errorf("replace sheet %s: %w", name, err)
	}
	if err := f.SetSheetName(tmp, name); err != nil {
		return 0, fmt.Errorf("rename sheet: %w", err)
	}
	return f.GetSheetIndex(name)
}

// fillSheet writes the header and rows, then applies styles, the duplicate
// filter and the column layout.
func fillSheet(f *excelize.File, sheet string, rows []Row) error {
	header := headers()
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	linkStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "0563C1", Underline: "single"},
	})
	if err != nil {
		return fmt.Errorf("create link style: %w", err)
	}

	lastCol, err := excelize.ColumnNumberToName(len(columns))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, r := range rows {
		n := i + 2
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		values := r.values()
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", n, err)
		}

		link, err := excelize.CoordinatesToCellName(colOpen, n)
		if err != nil {
			return err
		}
		if err := f.SetCellHyperLink(sheet, link, "mid:"+r.Record.EntryID, "External"); err != nil {
			return fmt.Errorf("link row %d: %w", n, err)
		}
		if err := f.SetCellStyle(sheet, link, link, linkStyle); err != nil {
			return fmt.Errorf("style row %d: %w", n, err)
		}
	}

	last := len(rows) + 1
	ref := fmt.Sprintf("A1:%s%d", lastCol, last)
	dupCol, err := excelize.ColumnNumberToName(colDuplicate)
	if err != nil {
		return err
	}
	if err := f.AutoFilter(sheet, ref, []excelize.AutoFilterOptions{
		{Column: dupCol, Expression: "x != " + DuplicateFlag},
	}); err != nil {
		return fmt.Errorf("apply filter: %w", err)
	}
	// Excel does not evaluate the filter on open; hide the rows it excludes.
	for i, r := range rows {
		if r.Duplicate {
			if err := f.SetRowVisible(sheet, i+2, false); err != nil {
				return fmt.Errorf("hide row %d: %w", i+2, err)
			}
		}
	}

	for i, c := range columns {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, c.width); err != nil {
			return fmt.Errorf("size column %s: %w", name, err)
		}
		if c.hidden {
			if err := f.SetColVisible(sheet, name, false); err != nil {
				return fmt.Errorf("hide column %s: %w", name, err)
			}
		}
	}

	// A template may carry the range from an earlier run.
	for _, dn := range f.GetDefinedName() {
		if dn.Name != rangeName || dn.Scope != "Workbook" {
			continue
		}
		if err := f.DeleteDefinedName(&excelize.DefinedName{Name: dn.Name, Scope: dn.Scope}); err != nil {
			return fmt.Errorf("drop old range name: %w", err)
		}
	}
	if err := f.SetDefinedName(&excelize.DefinedName{
		Name:     rangeName,
		RefersTo: fmt.Sprintf("'%s'!$A$1:$%s$%d", sheet, lastCol, last),
	}); err != nil {
		return fmt.Errorf("name range: %w", err)
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
