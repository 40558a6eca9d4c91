// Package loader reads a directory of documents (PDF, spreadsheets and plain
// text) into domain documents. PDFs yield one document per page and
// spreadsheets one per sheet.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/viant/afs"
	"github.com/viant/afs/url"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"docqa/internal/domain"
)

// DefaultExtensions are loaded when none are configured.
var DefaultExtensions = []string{".pdf"}

// Loader implements domain.Loader on top of an afs storage service.
type Loader struct {
	fs         afs.Service
	extensions map[string]struct{}
	logger     *zap.Logger
}

// Option customises a Loader.
type Option func(*Loader)

// WithExtensions limits loading to the given file extensions (".pdf", ".txt", ".md", ".xlsx").
func WithExtensions(exts ...string) Option {
	return func(l *Loader) {
		if len(exts) == 0 {
			return
		}
		l.extensions = make(map[string]struct{}, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			l.extensions[ext] = struct{}{}
		}
	}
}

// WithLogger sets the logger used to report loaded files.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// New creates a loader.
func New(opts ...Option) *Loader {
	l := &Loader{fs: afs.New(), logger: zap.NewNop()}
	WithExtensions(DefaultExtensions...)(l)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads every file directly inside location whose extension is enabled.
// Subdirectories are not visited.
func (l *Loader) Load(ctx context.Context, location string) ([]domain.Document, error) {
	norm, err := normalize(location)
	if err != nil {
		return nil, err
	}
	objects, err := l.fs.List(ctx, norm)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", location, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name() < objects[j].Name() })

	var docs []domain.Document
	for _, object := range objects {
		if object.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(object.Name()))
		if _, ok := l.extensions[ext]; !ok {
			continue
		}
		source := object.URL()
		if url.Scheme(location, "") == "" {
			source = filepath.Join(location, object.Name())
		}
		l.logger.Info("loading document", zap.String("path", source))
		data, err := l.fs.Download(ctx, object)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", source, err)
		}
		fileDocs, err := parse(source, ext, data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", source, err)
		}
		docs = append(docs, fileDocs...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no documents found in %s", location)
	}
	return docs, nil
}

// normalize turns a plain OS path into a file URL afs understands.
func normalize(location string) (string, error) {
	norm := location
	if url.Scheme(norm, "") == "" && url.IsRelative(norm) {
		abs, err := filepath.Abs(norm)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path for %s: %w", location, err)
		}
		norm = abs
	}
	if url.Scheme(norm, "") == "" && !url.IsRelative(norm) {
		norm = url.ToFileURL(norm)
	}
	return norm, nil
}

func parse(source, ext string, data []byte) ([]domain.Document, error) {
	switch ext {
	case ".pdf":
		return pdfDocuments(source, data), nil
	case ".xlsx":
		return sheetDocuments(source, data)
	default:
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, nil
		}
		return []domain.Document{{
			ID:       source,
			Path:     source,
			Content:  text,
			Metadata: map[string]string{"source": source, "format": strings.TrimPrefix(ext, ".")},
		}}, nil
	}
}

func pdfDocuments(source string, data []byte) []domain.Document {
	pages, err := pdfPages(data)
	if err != nil || len(pages) == 0 {
		text := strings.TrimSpace(string(extractPrintableText(data)))
		if text == "" {
			return nil
		}
		pages = map[int]string{1: text}
	}
	numbers := make([]int, 0, len(pages))
	for n := range pages {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	docs := make([]domain.Document, 0, len(numbers))
	for _, n := range numbers {
		page := strconv.Itoa(n)
		docs = append(docs, domain.Document{
			ID:       source + "#" + page,
			Path:     source,
			Page:     n,
			Content:  pages[n],
			Metadata: map[string]string{"source": source, "page": page, "format": "pdf"},
		})
	}
	return docs
}

// pdfPages returns the non-blank plain text of each page keyed by 1-based page number.
func pdfPages(data []byte) (pages map[int]string, err error) {
	if len(data) == 0 {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	pages = make(map[int]string)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages[i] = text
		}
	}
	if len(pages) == 0 {
		// some files only expose text through the whole-document reader
		if plain, err := r.GetPlainText(); err == nil {
			if out, err := io.ReadAll(plain); err == nil {
				if text := strings.TrimSpace(string(out)); text != "" {
					pages[1] = text
				}
			}
		}
	}
	return pages, nil
}

func sheetDocuments(source string, data []byte) ([]domain.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var docs []domain.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		var b strings.Builder
		header := rows[0]
		for i, row := range rows {
			if i == 0 {
				b.WriteString(strings.Join(row, " | "))
				b.WriteByte('\n')
				continue
			}
			var cells []string
			for j, cell := range row {
				if strings.TrimSpace(cell) == "" {
					continue
				}
				if j < len(header) && header[j] != "" {
					cell = header[j] + ": " + cell
				}
				cells = append(cells, cell)
			}
			if len(cells) > 0 {
				b.WriteString(strings.Join(cells, "; "))
				b.WriteByte('\n')
			}
		}
		text := strings.TrimSpace(b.String())
		if text == "" {
			continue
		}
		docs = append(docs, domain.Document{
			ID:       source + "#" + sheet,
			Path:     source,
			Content:  text,
			Metadata: map[string]string{"source": source, "sheet": sheet, "format": "xlsx"},
		})
	}
	return docs, nil
}

func extractPrintableText(in []byte) []byte {
	var out bytes.Buffer
	for len(in) > 0 {
		r, size := utf8.DecodeRune(in)
		in = in[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == '\n' || r == '\r' || r == '\t' || r >= 32 && r != 127 {
			out.WriteRune(r)
		}
	}
	return out.Bytes()
}

var _ domain.Loader = (*Loader)(nil)
