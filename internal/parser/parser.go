package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"rag-chatbot/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// SupportedExtensions lists the upload types that can be ingested.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".pptx", ".xlsx", ".xlsm", ".ods"}

// ValidateFilename rejects files whose extension is not supported.
func ValidateFilename(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return nil
		}
	}
	if ext == "" {
		ext = "(none)"
	}
	return fmt.Errorf("%w: %w: %s has extension %s, supported: %s",
		models.ErrIngestion, models.ErrUnsupportedFileType, filename, ext, strings.Join(SupportedExtensions, ", "))
}

// ParseDocument extracts the text of doc page by page. Formats without pages
// return a single page with a nil number.
func ParseDocument(doc models.Document) (pages []models.Page, err error) {
	if err := ValidateFilename(doc.Filename); err != nil {
		return nil, err
	}

	// ledongthuc/pdf panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: cannot read %s: %v", models.ErrIngestion, doc.Filename, r)
		}
	}()

	ext := strings.ToLower(filepath.Ext(doc.Filename))
	switch ext {
	case ".pdf":
		pages, err = parsePDF(doc.Data)
	case ".docx":
		pages, err = parseDOCX(doc.Data)
	case ".pptx":
		pages, err = parsePPTX(doc.Data)
	case ".xlsx":
		pages, err = parseXLSX(doc.Data)
	case ".xlsm":
		pages, err = parseWorkbook(doc.Data)
	case ".ods":
		pages, err = parseODS(doc.Data)
	case ".md":
		pages, err = parseMarkdown(doc.Data)
	default:
		pages, err = parseText(doc.Data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: cannot read %s: %v", models.ErrIngestion, doc.Filename, err)
	}
	return pages, nil
}

func parsePDF(data []byte) ([]models.Page, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %v", i, err)
		}
		pages = append(pages, models.Page{Number: models.PageNumber(i), Text: pageText})
	}
	return pages, nil
}

func parseDOCX(data []byte) ([]models.Page, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content, err := ooxmlText(r.Editable().GetContent())
	if err != nil {
		return nil, err
	}
	return []models.Page{{Text: content}}, nil
}

// ooxmlText keeps the text runs of a WordprocessingML or DrawingML part, one
// line per paragraph.
func ooxmlText(content string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(content))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

var slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// parsePPTX returns one page per slide that has text, numbered by slide.
func parsePPTX(data []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range zr.File {
		m := slidePart.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var pages []models.Page
	for _, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", s.num, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", s.num, err)
		}
		slideText, err := ooxmlText(string(raw))
		if err != nil {
			return nil, fmt.Errorf("slide %d: %v", s.num, err)
		}
		if slideText == "" {
			continue
		}
		pages = append(pages, models.Page{Number: models.PageNumber(s.num), Text: slideText})
	}
	return pages, nil
}

func parseXLSX(data []byte) ([]models.Page, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for sheetNum, sheet := range f.Sheets {
		var b strings.Builder
		fmt.Fprintf(&b, "## Sheet: %s\n", sheet.Name)
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			b.WriteString(strings.Join(cells, "\t"))
			b.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: models.PageNumber(sheetNum + 1), Text: b.String()})
	}
	return pages, nil
}

// parseWorkbook reads macro-enabled workbooks, which only excelize opens.
func parseWorkbook(data []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %v", sheetName, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			b.WriteString(strings.Join(row, "\t"))
			b.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: models.PageNumber(sheetNum + 1), Text: b.String()})
	}
	return pages, nil
}

// parseODS walks content.xml of an OpenDocument spreadsheet and returns one
// page per table.
func parseODS(data []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	var content *zip.File
	for _, file := range zr.File {
		if file.Name == "content.xml" {
			content = file
			break
		}
	}
	if content == nil {
		return nil, errors.New("content.xml not found")
	}
	rc, err := content.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var (
		pages  []models.Page
		sheet  strings.Builder
		row    []string
		cell   strings.Builder
		repeat int
		inCell bool
		inPara bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "table":
				sheet.Reset()
				fmt.Fprintf(&sheet, "## Sheet: %s\n", attr(t, "name"))
			case "table-row":
				row = row[:0]
			case "table-cell", "covered-table-cell":
				inCell = true
				cell.Reset()
				repeat = 1
				if n, err := strconv.Atoi(attr(t, "number-columns-repeated")); err == nil && n > 1 {
					repeat = n
				}
			case "p":
				if inCell && cell.Len() > 0 {
					cell.WriteByte(' ')
				}
				inPara = true
			case "s":
				if inPara {
					cell.WriteByte(' ')
				}
			case "tab":
				if inPara {
					cell.WriteByte('\t')
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "table":
				pages = append(pages, models.Page{Number: models.PageNumber(len(pages) + 1), Text: sheet.String()})
			case "table-row":
				for len(row) > 0 && row[len(row)-1] == "" {
					row = row[:len(row)-1]
				}
				if len(row) > 0 {
					sheet.WriteString(strings.Join(row, "\t"))
					sheet.WriteString("\n")
				}
			case "table-cell", "covered-table-cell":
				inCell = false
				value := cell.String()
				// padding cells repeat to the sheet edge
				if value == "" {
					repeat = 1
				}
				for i := 0; i < repeat; i++ {
					row = append(row, value)
				}
			case "p":
				inPara = false
			}
		case xml.CharData:
			if inPara {
				cell.Write(t)
			}
		}
	}
	return pages, nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func parseMarkdown(data []byte) ([]models.Page, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("markdown is not valid UTF-8")
	}
	return []models.Page{{Text: markdownToText(data)}}, nil
}

func parseText(data []byte) ([]models.Page, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("text is not valid UTF-8")
	}
	return []models.Page{{Text: string(data)}}, nil
}

// markdownToText renders the text content of a markdown document without its
// markup. Each block ends on its own line.
func markdownToText(src []byte) string {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
				newline()
			}
		default:
			if !entering && n.Type() == ast.TypeBlock {
				newline()
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(b.String())
}
