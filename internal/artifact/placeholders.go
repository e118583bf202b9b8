// Package artifact produces signed release PDFs for documents becoming
// effective: placeholder substitution, PDF rendering, and the signature
// block.
package artifact

import (
	"fmt"
	"strings"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

// Timestamp layouts. Every rendered timestamp carries an explicit UTC suffix.
const (
	dateLayout     = "01/02/2006"
	timeLayout     = "03:04 PM"
	datetimeLayout = "01/02/2006 03:04 PM"
)

// HistoryEntry is one row of the VERSION_HISTORY table.
type HistoryEntry struct {
	Version  string
	Date     string
	Author   string
	Status   string
	Comments string
}

// Context carries everything placeholder resolution needs.
type Context struct {
	Doc          *types.Document
	DocTypeName  string
	Organization string
	SystemName   string
	Now          time.Time
	History      []HistoryEntry
	// Extra holds installation-configured placeholders; recognized names in
	// the closed set always win over extras.
	Extra map[string]string
}

// BuildHistory converts a family's members into VERSION_HISTORY rows,
// excluding the document being rendered. Members arrive in version order.
func BuildHistory(members []*types.Document, exclude string) []HistoryEntry {
	var rows []HistoryEntry
	for _, m := range members {
		if m.ID == exclude {
			continue
		}
		date := ""
		if m.EffectiveDate != nil {
			date = m.EffectiveDate.UTC().Format(dateLayout) + " UTC"
		}
		rows = append(rows, HistoryEntry{
			Version:  m.FullVersion(),
			Date:     date,
			Author:   m.Author,
			Status:   m.Status.Name(),
			Comments: m.ReasonForChange,
		})
	}
	return rows
}

// Placeholders resolves the closed placeholder set for a context. Timestamps
// are UTC with an explicit suffix.
func Placeholders(c Context) map[string]string {
	now := c.Now.UTC()
	doc := c.Doc

	values := map[string]string{
		"DOCUMENT_NUMBER": doc.Number,
		"DOCUMENT_TITLE":  doc.Title,
		"DOCUMENT_TYPE":   c.DocTypeName,
		"VERSION_MAJOR":   fmt.Sprintf("%02d", doc.VersionMajor),
		"VERSION_MINOR":   fmt.Sprintf("%02d", doc.VersionMinor),
		"FULL_VERSION":    doc.FullVersion(),
		"AUTHOR_NAME":     doc.Author,
		"REVIEWER_NAME":   doc.Reviewer,
		"APPROVER_NAME":   doc.Approver,

		"DOWNLOAD_DATE":         now.Format(dateLayout) + " UTC",
		"DOWNLOAD_TIME":         now.Format(timeLayout) + " UTC",
		"DOWNLOAD_DATETIME":     now.Format(datetimeLayout) + " UTC",
		"DOWNLOAD_DATETIME_ISO": now.Format(time.RFC3339),
		"CURRENT_TIME":          now.Format(timeLayout) + " UTC",
		"CURRENT_DATETIME":      now.Format(datetimeLayout) + " UTC",
		"CURRENT_DATETIME_ISO":  now.Format(time.RFC3339),
		"TIMEZONE":              "UTC",

		"ORGANIZATION_NAME": c.Organization,
		"SYSTEM_NAME":       c.SystemName,

		"VERSION_HISTORY": renderHistoryText(c.History, now),
	}

	if doc.ApprovedAt != nil {
		values["APPROVAL_DATE"] = doc.ApprovedAt.UTC().Format(dateLayout) + " UTC"
	} else {
		values["APPROVAL_DATE"] = ""
	}
	if doc.EffectiveDate != nil {
		values["EFFECTIVE_DATE"] = doc.EffectiveDate.UTC().Format(dateLayout) + " UTC"
	} else {
		values["EFFECTIVE_DATE"] = ""
	}

	for k, v := range c.Extra {
		if _, reserved := values[k]; !reserved {
			values[k] = v
		}
	}
	return values
}

// Substitute replaces {{NAME}} markers for every resolved placeholder.
// Unrecognized markers pass through unchanged.
func Substitute(text string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// renderHistoryText renders VERSION_HISTORY as a plain-text table with the
// generation timestamp.
func renderHistoryText(rows []HistoryEntry, now time.Time) string {
	var b strings.Builder
	b.WriteString("Version History\n")
	b.WriteString(fmt.Sprintf("%-8s  %-14s  %-16s  %-12s  %s\n",
		"Version", "Date", "Author", "Status", "Comments"))
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%-8s  %-14s  %-16s  %-12s  %s\n",
			r.Version, r.Date, r.Author, r.Status, r.Comments))
	}
	b.WriteString(fmt.Sprintf("Generated: %s UTC\n", now.UTC().Format(datetimeLayout)))
	return b.String()
}
