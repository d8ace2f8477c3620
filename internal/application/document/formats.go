package document

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/BioRx-Intelligence/internal/infrastructure/monitoring/logging"
)

var (
	errInvalidUTF8     = errors.New("content is not valid UTF-8")
	errMissingDocument = errors.New("word/document.xml not found")
)

const utf8BOM = "\ufeff"

func loadText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return strings.TrimPrefix(string(data), utf8BOM), nil
}

// loadPDF joins the text of every page that has any, one page per line.
func loadPDF(data []byte, logger logging.Logger) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var pages []string
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, perr := page.GetPlainText(nil)
		if perr != nil {
			logger.Debug("skipping pdf page", logging.Int("page", i), logging.Err(perr))
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, norm.NFC.String(content))
	}
	return strings.Join(pages, "\n"), nil
}

const wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// loadDOCX returns the body paragraphs of a Word document, one per line.
// Paragraphs nested in tables are not part of the body paragraph list, and
// text box content does not contribute to the paragraph that anchors it.
func loadDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	var part *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			part = f
			break
		}
	}
	if part == nil {
		return "", errMissingDocument
	}
	rc, err := part.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		dec        = xml.NewDecoder(rc)
		paragraphs []string
		current    strings.Builder
		paraDepth  int
		inText     bool
		// excluded counts open tables and text boxes.
		excluded int
	)
	collecting := func() bool { return paraDepth > 0 && excluded == 0 }
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
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "tbl", "txbxContent":
				excluded++
			case "p":
				if excluded > 0 {
					continue
				}
				if paraDepth == 0 {
					current.Reset()
				}
				paraDepth++
			case "t":
				inText = collecting()
			case "tab":
				if collecting() {
					current.WriteByte('\t')
				}
			case "br", "cr":
				if collecting() {
					current.WriteByte('\n')
				}
			}
		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "tbl", "txbxContent":
				excluded--
			case "p":
				if excluded > 0 || paraDepth == 0 {
					continue
				}
				paraDepth--
				if paraDepth == 0 {
					paragraphs = append(paragraphs, current.String())
				}
			case "t":
				inText = false
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}
	return norm.NFC.String(strings.Join(paragraphs, "\n")), nil
}

// loadCSV flattens every cell row-major, separated by single spaces. Rows
// may have different lengths.
func loadCSV(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	r := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), utf8BOM)))
	r.FieldsPerRecord = -1

	var cells []string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		cells = append(cells, record...)
	}
	return strings.Join(cells, " "), nil
}
