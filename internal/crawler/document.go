package crawler

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html/charset"
)

// DecodeBody converts a response body to UTF-8 using the declared or sniffed
// charset and strips NUL bytes, which the database text columns reject.
func DecodeBody(resp FetchResponse) string {
	if len(resp.Body) == 0 {
		return ""
	}
	text := string(resp.Body)
	reader, err := charset.NewReader(bytes.NewReader(resp.Body), resp.ContentType())
	if err == nil {
		if decoded, readErr := io.ReadAll(reader); readErr == nil {
			text = string(decoded)
		}
	}
	return StripNUL(strings.ToValidUTF8(text, "�"))
}

// StripNUL removes NUL bytes.
func StripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// DocumentFrom builds the stored document for an archive or newsletter page.
func DocumentFrom(resp FetchResponse) Document {
	return Document{
		URL:    resp.FinalURL(),
		HTML:   DecodeBody(resp),
		Status: resp.StatusCode,
	}
}
