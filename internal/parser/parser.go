package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"session-rag/internal/models"
)

const defaultPageNumber = 1

type parseFunc func(data []byte, password string) ([]models.Page, error)

var parsers = map[string]parseFunc{
	".pdf":  parsePDF,
	".docx": ignorePassword(parseDOCX),
	".pptx": ignorePassword(parsePPTX),
	".xlsx": ignorePassword(parseXLSX),
	".md":   ignorePassword(parseMarkdown),
	".txt":  ignorePassword(parseText),
}

func ignorePassword(fn func([]byte) ([]models.Page, error)) parseFunc {
	return func(data []byte, _ string) ([]models.Page, error) {
		return fn(data)
	}
}

// SupportedExtensions lists every extension Extract understands.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(parsers))
	for ext := range parsers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Supported reports whether filename has an extension Extract can read.
func Supported(filename string) bool {
	_, ok := parsers[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Extract returns the text of every page of the document. The password is
// only used for encrypted PDFs.
func Extract(filename string, data []byte, password string) ([]models.Page, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	parse, ok := parsers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", models.ErrEmptyInput, filename)
	}

	pages, err := parse(data, password)
	if err != nil {
		if models.KindOf(err) == models.KindUnknown {
			err = fmt.Errorf("%w: %w", models.ErrCorruptDocument, err)
		}
		return nil, err
	}

	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			return pages, nil
		}
	}
	return nil, models.ErrNoText
}

// ExtractFile reads the document at filePath and extracts it.
func ExtractFile(filePath, password string) ([]models.Page, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	return Extract(filepath.Base(filePath), data, password)
}

func parseDOCX(data []byte) ([]models.Page, error) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content, err := xmlText([]byte(r.Editable().GetContent()))
	if err != nil {
		return nil, err
	}
	// DOCX has no page numbers
	return []models.Page{{Number: defaultPageNumber, Text: content}}, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func parsePPTX(data []byte) ([]models.Page, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	var pages []models.Page
	for _, file := range zr.File {
		m := slideName.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		slideNum, _ := strconv.Atoi(m[1])

		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		slideText, err := xmlText(raw)
		if err != nil {
			return nil, err
		}
		pages = append(pages, models.Page{Number: slideNum, Text: slideText})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].Number < pages[j].Number })
	return pages, nil
}

func parseXLSX(data []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []models.Page
	for sheetNum, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, err
		}
		var text strings.Builder
		fmt.Fprintf(&text, "## Sheet: %s\n", sheetName)
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, models.Page{Number: sheetNum + 1, Text: text.String()})
	}
	return pages, nil
}

// parseMarkdown keeps the readable text of a markdown document and drops the markup.
func parseMarkdown(data []byte) ([]models.Page, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	doc := md.Parser().Parse(text.NewReader(data))

	var buf strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *extast.TableCell:
				buf.WriteString("\t")
			case *extast.TableRow, *extast.TableHeader:
				buf.WriteString("\n")
			default:
				if n.Type() == ast.TypeBlock && n.Kind() != ast.KindListItem && n.Kind() != ast.KindDocument {
					buf.WriteString("\n\n")
				}
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Text:
			buf.Write(node.Value(data))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteString("\n")
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.AutoLink:
			buf.Write(node.Label(data))
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(data))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	return []models.Page{{Number: defaultPageNumber, Text: strings.TrimSpace(buf.String())}}, nil
}

// parseText treats form feeds as page breaks.
func parseText(data []byte) ([]models.Page, error) {
	parts := strings.Split(string(data), "\f")
	pages := make([]models.Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, models.Page{Number: i + 1, Text: part})
	}
	return pages, nil
}

// xmlText collects the character data of every <t> element in an office
// document part, ending each <p> paragraph with a newline.
func xmlText(raw []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	var (
		buf    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				buf.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}
