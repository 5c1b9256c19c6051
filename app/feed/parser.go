package feed

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"mime"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

const (
	rfc822Layout = "Mon, 2 Jan 2006 15:04:05 -0700"
	isoLayout    = "2006-01-02T15:04:05-07:00"
)

// Parser turns raw feed documents into a normalized Document. It holds no
// state between calls and is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Run parses data as RSS 2.0 or Atom. The format is sniffed from the root
// element; contentHint (usually the response Content-Type) is consulted only
// when sniffing fails.
func (p *Parser) Run(data []byte, contentHint string) (*Document, error) {
	format, err := detectFormat(data, contentHint)
	if err != nil {
		return nil, err
	}

	if err := checkWellFormed(data); err != nil {
		return nil, &FormatError{Format: format, Err: err}
	}

	switch format {
	case FormatRSS:
		return parseRSS(data)
	case FormatAtom:
		return parseAtom(data)
	default:
		return nil, &FormatError{Err: fmt.Errorf("unsupported format %q", format)}
	}
}

func detectFormat(data []byte, contentHint string) (Format, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		return FormatRSS, nil
	case gofeed.FeedTypeAtom:
		return FormatAtom, nil
	case gofeed.FeedTypeJSON:
		return "", &FormatError{Err: fmt.Errorf("JSON feeds are not supported")}
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentHint))
	if mt, _, err := mime.ParseMediaType(contentHint); err == nil {
		mediaType = mt
	}
	switch mediaType {
	case "application/rss+xml":
		return FormatRSS, nil
	case "application/atom+xml":
		return FormatAtom, nil
	}

	return "", &FormatError{Err: fmt.Errorf("unrecognized document (content type %q)", contentHint)}
}

// checkWellFormed walks the whole document with a strict decoder. The
// format parsers recover from broken markup by dropping what follows it,
// which would make live items look removed.
func checkWellFormed(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = true
	d.CharsetReader = charset.NewReaderLabel

	for {
		_, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("malformed XML: %w", err)
		}
	}
}

// ItemKey derives the deduplication key of an item from its source URL and
// identifier.
func ItemKey(source, guid string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(guid))
	return hex.EncodeToString(h.Sum(nil))
}

func normalizeIdentifier(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func formatDate(layout, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", value, err)
	}
	return t.Format(isoLayout), nil
}

func parseOptionalInt(field, value string) (*int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return &n, nil
}
