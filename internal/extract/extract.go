// Package extract turns fetched article bodies into plain text.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/metrics"
)

const slowPDFThreshold = 10 * time.Second

// Extractor implements crawler.Extractor.
type Extractor struct {
	logger *zap.Logger
}

// New builds an Extractor. A nil logger discards output.
func New(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// Extract branches on the declared content type. It returns
// crawler.ErrNoContent when nothing usable was found.
func (e *Extractor) Extract(resp crawler.FetchResponse) (crawler.Content, error) {
	if len(resp.Body) == 0 {
		return crawler.Content{}, fmt.Errorf("empty body from %s: %w", resp.FinalURL(), crawler.ErrNoContent)
	}
	if IsPDF(resp) {
		content, err := e.pdf(resp)
		metrics.ObserveExtraction("pdf", err == nil)
		return content, err
	}
	content, err := HTML(crawler.DecodeBody(resp), resp.FinalURL())
	metrics.ObserveExtraction("html", err == nil)
	return content, err
}

// IsPDF reports whether the response declares a PDF body.
func IsPDF(resp crawler.FetchResponse) bool {
	return strings.Contains(resp.ContentType(), "application/pdf")
}

func (e *Extractor) pdf(resp crawler.FetchResponse) (crawler.Content, error) {
	start := time.Now()
	text, err := PDFText(resp.Body)
	if took := time.Since(start); took > slowPDFThreshold {
		e.logger.Info("slow pdf conversion", zap.String("url", resp.FinalURL()), zap.Duration("took", took))
	}
	if err != nil {
		e.logger.Debug("pdf extraction failed", zap.String("url", resp.FinalURL()), zap.Error(err))
		return crawler.Content{}, fmt.Errorf("pdf %s: %w", resp.FinalURL(), crawler.ErrNoContent)
	}
	text = crawler.StripNUL(text)
	if strings.TrimSpace(text) == "" {
		return crawler.Content{}, fmt.Errorf("pdf %s has no text: %w", resp.FinalURL(), crawler.ErrNoContent)
	}
	return crawler.Content{
		Title: pdfTitle(resp.FinalURL()),
		Text:  text,
		HTML:  text,
	}, nil
}

// PDFText returns the plain text of a PDF document. Malformed input that makes
// the parser panic is reported as an error.
func PDFText(body []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return string(out), nil
}

func pdfTitle(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	return path.Base(p)
}

// HTML runs the readability extractor over an already decoded document. The
// returned HTML is the full page markup.
func HTML(document, pageURL string) (crawler.Content, error) {
	if strings.TrimSpace(document) == "" {
		return crawler.Content{}, fmt.Errorf("empty document: %w", crawler.ErrNoContent)
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Content{}, fmt.Errorf("parse page url: %w: %w", crawler.ErrNoContent, err)
	}
	article, err := readability.FromReader(strings.NewReader(document), parsed)
	if err != nil {
		return crawler.Content{}, fmt.Errorf("readability %s: %w: %w", pageURL, crawler.ErrNoContent, err)
	}
	text := crawler.StripNUL(strings.TrimSpace(article.TextContent))
	if text == "" {
		return crawler.Content{}, fmt.Errorf("readability %s found no text: %w", pageURL, crawler.ErrNoContent)
	}
	return crawler.Content{
		Title: crawler.StripNUL(strings.TrimSpace(article.Title)),
		Text:  text,
		HTML:  crawler.StripNUL(document),
	}, nil
}
