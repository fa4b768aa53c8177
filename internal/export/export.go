// Package export renders collected mail records as a spreadsheet table:
// one row per record, copies flagged by a coarse comparison key, most
// recent first.
package export

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tracyhatemice/gomailstat/internal/record"
)

var (
	// ErrNoRecords is returned by Export when there is nothing to write.
	ErrNoRecords = errors.New("no records to export")

	// ErrTemplateNotFound is returned when the configured template is missing.
	ErrTemplateNotFound = errors.New("template not found")
)

const defaultExt = ".xlsx"

// Options configure an Exporter.
type Options struct {
	Template string // workbook to copy; empty starts a blank workbook
	OutDir   string
	Prefix   string
	Sheet    string
	Location *time.Location // zone for rendered timestamps, default time.Local
}

// Result describes a written workbook.
type Result struct {
	Path       string
	Rows       int
	Duplicates int
}

// Exporter writes record tables.
type Exporter struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Exporter.
func New(opts Options, logger *slog.Logger) *Exporter {
	if opts.Prefix == "" {
		opts.Prefix = "MailStats"
	}
	if opts.Sheet == "" {
		opts.Sheet = "MailStats"
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Exporter{opts: opts, logger: logger, now: time.Now}
}

// CheckTemplate verifies that path names a readable file. An empty path is
// valid and means no template.
func CheckTemplate(path string) error {
	if path == "" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: %w", path, ErrTemplateNotFound)
		}
		return fmt.Errorf("stat template %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrTemplateNotFound)
	}
	return nil
}

// OutputPath returns <dir>/<prefix>_<timestamp><ext>, taking the extension
// from the template.
func OutputPath(dir, prefix, template string, at time.Time) string {
	ext := strings.ToLower(filepath.Ext(template))
	if ext == "" {
		ext = defaultExt
	}
	name := fmt.Sprintf("%s_%s%s", prefix, at.Format("20060102_150405"), ext)
	return filepath.Join(dir, name)
}

// Export writes records to a new workbook in the output directory. Records
// must already be free of identity duplicates; their order decides which
// copy of a content duplicate stays unflagged.
func (e *Exporter) Export(records []record.MailRecord) (*Result, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	if err := CheckTemplate(e.opts.Template); err != nil {
		return nil, err
	}

	rows := BuildRows(records, e.opts.Location)
	dups := MarkDuplicates(rows)
	SortBySentDesc(rows)

	if err := os.MkdirAll(e.opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	path := OutputPath(e.opts.OutDir, e.opts.Prefix, e.opts.Template, e.now())

	f, err := openWorkbook(e.opts.Template, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := f.Close(); err != nil {
			e.logger.Warn("close workbook", "path", path, "error", err)
		}
	}()

	if err := e.write(f, rows); err != nil {
		return nil, err
	}
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save workbook %s: %w", path, err)
	}

	e.logger.Info("workbook written", "path", path, "rows", len(rows), "duplicates", dups)
	return &Result{Path: path, Rows: len(rows), Duplicates: dups}, nil
}

func (e *Exporter) write(f *excelize.File, rows []Row) error {
	idx, err := freshSheet(f, e.opts.Sheet)
	if err != nil {
		return err
	}
	if e.opts.Template == "" {
		// Blank workbooks start with a default sheet nobody asked for.
		if def := f.GetSheetName(0); def != "" && def != e.opts.Sheet {
			if err := f.DeleteSheet(def); err != nil {
				return fmt.Errorf("drop default sheet: %w", err)
			}
			if idx, err = f.GetSheetIndex(e.opts.Sheet); err != nil {
				return err
			}
		}
	}
	if err := fillSheet(f, e.opts.Sheet, rows); err != nil {
		return fmt.Errorf("fill sheet %s: %w", e.opts.Sheet, err)
	}
	f.SetActiveSheet(idx)
	return nil
}
