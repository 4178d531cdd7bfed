package legacy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseHTML extracts statements from the legacy renderer's HTML table dump.
// One <table> is one statement: the first header cell is the title column,
// the remaining header cells are period columns, and <tbody> rows are lines.
// Section rows (class "section" or a colspan cell) become header rows.
func ParseHTML(html string) ([]Statement, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse legacy html: %w", err)
	}

	var stmts []Statement
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		stmt := Statement{
			DealID: table.AttrOr("data-deal", ""),
			Type:   table.AttrOr("data-statement", ""),
		}

		headerCells := table.Find("thead tr").First().Find("th")
		if headerCells.Length() < 2 {
			return // not a statement table
		}
		title := strings.TrimSpace(headerCells.First().Text())
		if stmt.Type == "" {
			stmt.Type = inferStatementType(title)
		}

		headerCells.Each(func(i int, cell *goquery.Selection) {
			if i == 0 {
				return
			}
			label := strings.TrimSpace(cell.Text())
			col := Column{Key: columnKey(label, i), Label: label}
			if end, ok := parseDateText(label); ok {
				col.PeriodEnd = end.Format("2006-01-02")
			}
			col.Aggregate = IsAggregate(col)
			stmt.Columns = append(stmt.Columns, col)
		})

		table.Find("tbody tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td")
			if cells.Length() == 0 {
				return
			}
			label := strings.TrimSpace(cells.First().Text())

			_, hasColspan := cells.First().Attr("colspan")
			if tr.HasClass("section") || hasColspan || cells.Length() == 1 {
				stmt.Rows = append(stmt.Rows, Row{Label: label, Header: true})
				return
			}

			row := Row{Label: label, Values: make(map[string]*float64, len(stmt.Columns))}
			cells.Each(func(i int, cell *goquery.Selection) {
				if i == 0 || i-1 >= len(stmt.Columns) {
					return
				}
				row.Values[stmt.Columns[i-1].Key] = parseCellText(cell.Text())
			})
			row.Key = CanonicalRowKey(row)
			stmt.Rows = append(stmt.Rows, row)
		})

		stmts = append(stmts, stmt)
	})

	if len(stmts) == 0 {
		return nil, fmt.Errorf("no statement tables found in legacy html")
	}
	return stmts, nil
}

func inferStatementType(title string) string {
	lower := strings.ToLower(title)
	switch {
	case strings.Contains(lower, "balance"):
		return "BALANCE_SHEET"
	case strings.Contains(lower, "income") || strings.Contains(lower, "profit"):
		return "INCOME_STATEMENT"
	case strings.Contains(lower, "cash"):
		return "CASH_FLOW"
	}
	return "UNKNOWN"
}

var keySlugger = regexp.MustCompile(`[^A-Z0-9]+`)

func columnKey(label string, index int) string {
	if end, ok := parseDateText(label); ok {
		return end.Format("2006-01-02")
	}
	slug := keySlugger.ReplaceAllString(strings.ToUpper(label), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return fmt.Sprintf("COL_%d", index)
	}
	return slug
}

var cellCleaner = regexp.MustCompile(`[^0-9.\-]`)

// parseCellText turns rendered cell text into a value. Parentheses mean
// negative, dashes and N/A mean blank, currency symbols and separators are
// noise.
//
//	"(1,234)"   -> -1234
//	"$1,234.56" -> 1234.56
//	"—"         -> nil
func parseCellText(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "—" || raw == "-" || raw == "–" || raw == "N/A" {
		return nil
	}

	negative := strings.Contains(raw, "(") && strings.Contains(raw, ")")
	cleaned := cellCleaner.ReplaceAllString(raw, "")
	if cleaned == "" || cleaned == "." || cleaned == "-" {
		return nil
	}

	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	if negative && value > 0 {
		value = -value
	}
	return &value
}
