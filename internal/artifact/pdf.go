package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

// Signature describes the signing identity affixed to a release PDF.
type Signature struct {
	Signer      string
	ApprovedAt  time.Time
	PDFChecksum string
}

// Result is the output of a pipeline render.
type Result struct {
	PDF       []byte
	Checksum  string // SHA-256 of the final PDF bytes
	Signature Signature
}

// Render produces the signed release PDF for a document. The content pages
// are rendered first and hashed; the signature block records that content
// checksum alongside the signer identity and approval time.
func Render(c Context, body string, signer string) (*Result, error) {
	values := Placeholders(c)
	substituted := Substitute(body, values)

	contentPDF, err := renderPDF(c, substituted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to render content pages: %w", err)
	}
	contentSum := sha256.Sum256(contentPDF)

	approvedAt := c.Now.UTC()
	if c.Doc.ApprovedAt != nil {
		approvedAt = c.Doc.ApprovedAt.UTC()
	}
	sig := Signature{
		Signer:      signer,
		ApprovedAt:  approvedAt,
		PDFChecksum: hex.EncodeToString(contentSum[:]),
	}

	signedPDF, err := renderPDF(c, substituted, &sig)
	if err != nil {
		return nil, fmt.Errorf("failed to render signed document: %w", err)
	}
	finalSum := sha256.Sum256(signedPDF)

	return &Result{
		PDF:       signedPDF,
		Checksum:  hex.EncodeToString(finalSum[:]),
		Signature: sig,
	}, nil
}

// renderPDF lays out the release document: header, metadata, body, version
// history, and (when sig is non-nil) the signature block.
func renderPDF(c Context, body string, sig *Signature) ([]byte, error) {
	doc := c.Doc
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "", 8)
		header := fmt.Sprintf("%s    %s %s", doc.Number, doc.Title, doc.FullVersion())
		if c.Organization != "" {
			header = c.Organization + "    " + header
		}
		pdf.CellFormat(0, 5, header, "B", 1, "L", false, 0, "")
		pdf.Ln(3)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 5, fmt.Sprintf("Controlled copy. Page %d", pdf.PageNo()), "T", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, doc.Title, "", "L", false)
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 10)
	meta := [][2]string{
		{"Document Number", doc.Number},
		{"Type", c.DocTypeName},
		{"Version", doc.FullVersion()},
		{"Author", doc.Author},
		{"Reviewer", doc.Reviewer},
		{"Approver", doc.Approver},
		{"Effective Date", Placeholders(c)["EFFECTIVE_DATE"]},
	}
	for _, row := range meta {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(45, 6, row[0], "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, row[1], "1", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 10)
	for _, line := range strings.Split(body, "\n") {
		pdf.MultiCell(0, 5, line, "", "L", false)
	}

	if len(c.History) > 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Version History", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 9)
		widths := []float64{20, 30, 35, 35, 50}
		headers := []string{"Version", "Date", "Author", "Status", "Comments"}
		for i, h := range headers {
			pdf.CellFormat(widths[i], 6, h, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 9)
		for _, r := range c.History {
			cells := []string{r.Version, r.Date, r.Author, r.Status, r.Comments}
			for i, cell := range cells {
				pdf.CellFormat(widths[i], 6, cell, "1", 0, "L", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s UTC", c.Now.UTC().Format(datetimeLayout)), "", 1, "L", false, 0, "")
	}

	if sig != nil {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Electronic Signature", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		rows := [][2]string{
			{"Signed by", sig.Signer},
			{"Approved at", sig.ApprovedAt.Format(datetimeLayout) + " UTC"},
			{"Document checksum (SHA-256)", sig.PDFChecksum},
		}
		for _, row := range rows {
			pdf.SetFont("Helvetica", "B", 10)
			pdf.CellFormat(60, 6, row[0], "1", 0, "L", false, 0, "")
			pdf.SetFont("Helvetica", "", 9)
			pdf.CellFormat(0, 6, row[1], "1", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.MultiCell(0, 4,
			"This document was signed electronically in accordance with 21 CFR Part 11. "+
				"The checksum above covers the document content as rendered at signing time.",
			"", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
