package training

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	pdf "github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// Extractor turns a training record into normalized documents. A record can
// carry free text, an uploaded file and a site reference at the same time;
// each populated field yields its own document. A source that fails to
// extract is logged and skipped, never an error: ingestion treats an empty
// result as a no-op.
type Extractor struct {
	client *http.Client
	logger *zap.Logger
}

func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

func (e *Extractor) Extract(ctx context.Context, record *Record) ([]Document, error) {
	if record == nil {
		return nil, fmt.Errorf("record is nil")
	}

	docs := make([]Document, 0, 3)

	if text := strings.TrimSpace(record.Content); text != "" {
		docs = append(docs, Document{
			Text:   text,
			Source: fmt.Sprintf("training-%s.txt", record.ID),
		})
	}

	if len(record.Document) > 0 {
		text, err := e.extractUpload(record.DocumentName, record.Document)
		if err != nil {
			e.logger.Warn("skipping unreadable upload",
				zap.String("record_id", record.ID.String()),
				zap.String("document", record.DocumentName),
				zap.Error(err))
		} else if text != "" {
			docs = append(docs, Document{Text: text, Source: record.DocumentName})
		}
	}

	if site := strings.TrimSpace(record.Site); site != "" {
		text, err := e.fetchSite(ctx, site)
		if err != nil {
			e.logger.Warn("skipping unreachable site",
				zap.String("record_id", record.ID.String()),
				zap.String("site", site),
				zap.Error(err))
		} else if text != "" {
			docs = append(docs, Document{Text: text, Source: site})
		}
	}

	return docs, nil
}

func (e *Extractor) extractUpload(name string, data []byte) (string, error) {
	switch DetectFormat(name) {
	case FormatPDF:
		return extractPDF(data)
	case FormatCSV:
		return extractCSV(data)
	default:
		return normalizePlainText(string(data)), nil
	}
}

func extractPDF(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	return normalizePlainText(buf.String()), nil
}

func extractCSV(data []byte) (string, error) {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return "", fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return "", nil
	}

	headers := records[0]
	builder := &strings.Builder{}
	for idx, row := range records[1:] {
		if idx > 0 {
			builder.WriteString("\n\n")
		}
		builder.WriteString(formatCSVRow(headers, row, idx))
	}

	return builder.String(), nil
}

func formatCSVRow(headers, row []string, idx int) string {
	builder := &strings.Builder{}
	fmt.Fprintf(builder, "Row %d", idx+1)

	limit := len(headers)
	if len(row) < limit {
		limit = len(row)
	}

	for i := 0; i < limit; i++ {
		header := strings.TrimSpace(headers[i])
		if header == "" {
			header = fmt.Sprintf("Column %d", i+1)
		}
		fmt.Fprintf(builder, "\n%s: %s", header, strings.TrimSpace(row[i]))
	}

	for i := len(headers); i < len(row); i++ {
		fmt.Fprintf(builder, "\nExtra %d: %s", i+1, strings.TrimSpace(row[i]))
	}

	return builder.String()
}

func (e *Extractor) fetchSite(ctx context.Context, site string) (string, error) {
	if !strings.HasPrefix(site, "http://") && !strings.HasPrefix(site, "https://") {
		site = "https://" + site
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site, nil)
	if err != nil {
		return "", fmt.Errorf("create site request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch site: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("site returned status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read site body: %w", err)
	}

	return stripHTML(string(body)), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
)

func stripHTML(content string) string {
	content = scriptRe.ReplaceAllString(content, " ")
	content = tagRe.ReplaceAllString(content, " ")
	content = html.UnescapeString(content)

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	content = strings.Join(lines, "\n")
	content = blankRe.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}

func normalizePlainText(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
