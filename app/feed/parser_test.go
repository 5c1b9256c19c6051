package feed

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <link>https://example.com</link>
    <description>Test Description</description>
    <language>en-us</language>
    <lastBuildDate>Mon, 03 Jul 2023 12:00:00 +0000</lastBuildDate>
    <ttl>60</ttl>
    <skipHours><hour>1</hour><hour>2</hour></skipHours>
    <skipDays><day>Sunday</day></skipDays>
    <cloud domain="rpc.example.com" port="80" path="/RPC2" registerProcedure="pingMe" protocol="soap"/>
    <image>
      <url>https://example.com/icon.png</url>
      <title>Test Feed</title>
      <link>https://example.com</link>
      <width>88</width>
      <height>31</height>
    </image>
    <item>
      <title>Test Item 1</title>
      <link>https://example.com/item1</link>
      <description>Test Item 1 Description</description>
      <guid>item-1</guid>
      <pubDate>Mon, 03 Jul 2023 10:00:00 +0200</pubDate>
      <author>test@example.com (Test Author)</author>
      <category>Technology</category>
      <category>Programming</category>
      <enclosure url="https://example.com/ep1.mp3" length="1024" type="audio/mpeg"/>
      <source url="https://upstream.example.com/rss">Upstream</source>
    </item>
    <item>
      <title>Test Item 2</title>
      <link>https://example.com/item2</link>
      <guid>item-2</guid>
    </item>
  </channel>
</rss>`

func TestParseRSS2(t *testing.T) {
	doc, err := NewParser().Run([]byte(testRSS), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if doc.Format != FormatRSS {
		t.Errorf("Expected format rss, got: %s", doc.Format)
	}

	ch := doc.Channel
	if ch.Title != "Test Feed" {
		t.Errorf("Expected title 'Test Feed', got: %s", ch.Title)
	}
	if ch.Language != "en-us" {
		t.Errorf("Expected language 'en-us', got: %s", ch.Language)
	}
	if ch.LastBuildDate != "2023-07-03T12:00:00+00:00" {
		t.Errorf("Expected normalized lastBuildDate, got: %s", ch.LastBuildDate)
	}
	if ch.TTL == nil || *ch.TTL != 60 {
		t.Errorf("Expected ttl 60, got: %v", ch.TTL)
	}
	if !reflect.DeepEqual(ch.SkipHours, []int{1, 2}) {
		t.Errorf("Expected skipHours [1 2], got: %v", ch.SkipHours)
	}
	if !reflect.DeepEqual(ch.SkipDays, []string{"Sunday"}) {
		t.Errorf("Expected skipDays [Sunday], got: %v", ch.SkipDays)
	}
	if ch.Cloud == nil || ch.Cloud.Domain != "rpc.example.com" || ch.Cloud.RegisterProcedure != "pingMe" {
		t.Errorf("Expected cloud to be mapped, got: %+v", ch.Cloud)
	}
	if ch.Image == nil || ch.Image.URL != "https://example.com/icon.png" {
		t.Fatalf("Expected image to be mapped, got: %+v", ch.Image)
	}
	if ch.Image.Width == nil || *ch.Image.Width != 88 || ch.Image.Height == nil || *ch.Image.Height != 31 {
		t.Errorf("Expected image 88x31, got: %v x %v", ch.Image.Width, ch.Image.Height)
	}

	if len(doc.Items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(doc.Items))
	}

	item1 := doc.Items[0]
	if item1.GUID != "item-1" {
		t.Errorf("Expected GUID 'item-1', got: %s", item1.GUID)
	}
	if item1.PubDate != "2023-07-03T10:00:00+02:00" {
		t.Errorf("Expected normalized pubDate, got: %s", item1.PubDate)
	}
	if !reflect.DeepEqual(item1.Categories, []string{"Technology", "Programming"}) {
		t.Errorf("Expected categories in document order, got: %v", item1.Categories)
	}
	if item1.Enclosure == nil || item1.Enclosure.Length != "1024" || item1.Enclosure.Type != "audio/mpeg" {
		t.Errorf("Expected enclosure to be mapped, got: %+v", item1.Enclosure)
	}
	if item1.Source == nil || item1.Source.URL != "https://upstream.example.com/rss" || item1.Source.Name != "Upstream" {
		t.Errorf("Expected source to be mapped, got: %+v", item1.Source)
	}

	item2 := doc.Items[1]
	if item2.GUID != "item-2" {
		t.Errorf("Expected GUID 'item-2', got: %s", item2.GUID)
	}
	if item2.PubDate != "" {
		t.Errorf("Expected empty pubDate, got: %s", item2.PubDate)
	}
}

func TestParseIsDeterministic(t *testing.T) {
	parser := NewParser()

	first, err := parser.Run([]byte(testRSS), "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := parser.Run([]byte(testRSS), "")
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical documents for identical input")
	}
}

func TestParseRSSMalformedPubDate(t *testing.T) {
	data := `<rss version="2.0"><channel><title>T</title>
<item><guid>a</guid><pubDate>Mon, 03 Jul 2023 10:00:00 +0000</pubDate></item>
<item><guid>b</guid><pubDate>yesterday</pubDate></item>
</channel></rss>`

	doc, err := NewParser().Run([]byte(data), "")
	if err == nil {
		t.Fatalf("Expected error, got document with %d items", len(doc.Items))
	}

	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError, got: %T", err)
	}
	if formatErr.Format != FormatRSS {
		t.Errorf("Expected rss format in error, got: %s", formatErr.Format)
	}
	if !strings.Contains(err.Error(), "item 1") {
		t.Errorf("Expected error to name the offending item, got: %v", err)
	}
}

func TestParseRSSZoneNameRejected(t *testing.T) {
	data := `<rss version="2.0"><channel><title>T</title>
<item><guid>a</guid><pubDate>Mon, 03 Jul 2023 10:00:00 GMT</pubDate></item>
</channel></rss>`

	_, err := NewParser().Run([]byte(data), "")
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError for zone abbreviation, got: %v", err)
	}
}

func TestParseRSSMissingGUID(t *testing.T) {
	data := `<rss version="2.0"><channel><title>T</title>
<item><title>No id</title><link>https://example.com/x</link></item>
<item><guid>  b  </guid></item>
</channel></rss>`

	doc, err := NewParser().Run([]byte(data), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(doc.Items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(doc.Items))
	}
	if doc.Items[0].GUID != "b" {
		t.Errorf("Expected trimmed GUID 'b', got: %q", doc.Items[0].GUID)
	}
	if doc.Skipped != 1 {
		t.Errorf("Expected 1 skipped item, got: %d", doc.Skipped)
	}
}

func TestParseRSSInvalidIntegers(t *testing.T) {
	tests := []struct {
		name    string
		channel string
	}{
		{"ttl", `<ttl>soon</ttl>`},
		{"image width", `<image><url>https://example.com/i.png</url><width>wide</width></image>`},
		{"skip hour", `<skipHours><hour>noon</hour></skipHours>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := `<rss version="2.0"><channel><title>T</title>` + tt.channel + `</channel></rss>`
			_, err := NewParser().Run([]byte(data), "")
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("Expected FormatError, got: %v", err)
			}
		})
	}
}

func TestParseRSSNormalizesIdentifiers(t *testing.T) {
	data := "<rss version=\"2.0\"><channel><title>T</title><item><guid>cafe\u0301</guid></item></channel></rss>"

	doc, err := NewParser().Run([]byte(data), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Items) != 1 {
		t.Fatalf("Expected 1 item, got: %d", len(doc.Items))
	}
	if doc.Items[0].GUID != "caf\u00e9" {
		t.Errorf("Expected NFC identifier, got: %q", doc.Items[0].GUID)
	}
}

func TestParseAtom(t *testing.T) {
	data := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Atom Feed</title>
  <subtitle>Atom Subtitle</subtitle>
  <link href="https://example.com/"/>
  <link rel="self" href="https://example.com/atom.xml"/>
  <link rel="next" href="https://example.com/atom.xml?page=2"/>
  <updated>2023-07-03T12:00:00Z</updated>
  <generator>Hugo</generator>
  <author><name>Jane</name></author>
  <id>urn:uuid:feed</id>
  <entry>
    <title>Entry 1</title>
    <link rel="alternate" href="https://example.com/posts/1"/>
    <id>urn:uuid:1</id>
    <updated>2023-07-03T11:00:00+02:00</updated>
    <summary>Summary 1</summary>
    <category term="go"/>
  </entry>
  <entry>
    <title>Entry 2</title>
    <link href="https://example.com/posts/2"/>
    <id>urn:uuid:2</id>
    <published>2023-07-02T09:30:00Z</published>
    <updated>2023-07-03T09:30:00Z</updated>
  </entry>
</feed>`

	doc, err := NewParser().Run([]byte(data), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if doc.Format != FormatAtom {
		t.Errorf("Expected format atom, got: %s", doc.Format)
	}

	ch := doc.Channel
	if ch.Title != "Atom Feed" {
		t.Errorf("Expected title 'Atom Feed', got: %s", ch.Title)
	}
	if ch.Description != "Atom Subtitle" {
		t.Errorf("Expected description from subtitle, got: %s", ch.Description)
	}
	if ch.Link != "https://example.com/" {
		t.Errorf("Expected alternate link, got: %s", ch.Link)
	}
	if ch.SelfLink != "https://example.com/atom.xml" {
		t.Errorf("Expected self link, got: %s", ch.SelfLink)
	}
	if ch.NextPage != "https://example.com/atom.xml?page=2" {
		t.Errorf("Expected next page link, got: %s", ch.NextPage)
	}
	if ch.Updated != "2023-07-03T12:00:00+00:00" {
		t.Errorf("Expected normalized updated, got: %s", ch.Updated)
	}
	if ch.Generator != "Hugo" {
		t.Errorf("Expected generator 'Hugo', got: %s", ch.Generator)
	}
	if ch.Author != "Jane" {
		t.Errorf("Expected author 'Jane', got: %s", ch.Author)
	}

	if len(doc.Items) != 2 {
		t.Fatalf("Expected 2 items, got: %d", len(doc.Items))
	}

	entry1 := doc.Items[0]
	if entry1.GUID != "https://example.com/posts/1" || entry1.Link != entry1.GUID {
		t.Errorf("Expected identifier from alternate link, got: %s", entry1.GUID)
	}
	if entry1.Description != "Summary 1" {
		t.Errorf("Expected description from summary, got: %s", entry1.Description)
	}
	if entry1.PubDate != "2023-07-03T11:00:00+02:00" {
		t.Errorf("Expected pubDate from updated, got: %s", entry1.PubDate)
	}
	if entry1.Source == nil || entry1.Source.URL != "https://example.com/atom.xml" || entry1.Source.Name != "Atom Feed" {
		t.Errorf("Expected source from self link, got: %+v", entry1.Source)
	}

	if doc.Items[1].PubDate != "2023-07-02T09:30:00+00:00" {
		t.Errorf("Expected pubDate from published, got: %s", doc.Items[1].PubDate)
	}
}

func TestParseAtomWithoutSubtitle(t *testing.T) {
	data := `<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Bare</title>
  <entry><title>E</title><link href="https://example.com/e"/></entry>
</feed>`

	doc, err := NewParser().Run([]byte(data), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if doc.Channel.Description != "" {
		t.Errorf("Expected no description, got: %s", doc.Channel.Description)
	}
	if doc.Items[0].Source != nil {
		t.Errorf("Expected no source without self link, got: %+v", doc.Items[0].Source)
	}
}

func TestParseAtomMalformedDate(t *testing.T) {
	data := `<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Bad</title>
  <entry><link href="https://example.com/e"/><updated>last week</updated></entry>
</feed>`

	_, err := NewParser().Run([]byte(data), "")
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("Expected FormatError, got: %v", err)
	}
	if formatErr.Format != FormatAtom {
		t.Errorf("Expected atom format in error, got: %s", formatErr.Format)
	}
}

func TestParseUnrecognizedDocument(t *testing.T) {
	tests := []struct {
		name string
		data string
		hint string
	}{
		{"plain text", "this is not a feed", ""},
		{"html", "<html><body>hi</body></html>", "text/html; charset=utf-8"},
		{"json feed", `{"version": "https://jsonfeed.org/version/1.1", "items": []}`, "application/feed+json"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser().Run([]byte(tt.data), tt.hint)
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Errorf("Expected FormatError, got: %v", err)
			}
		})
	}
}

func TestParseMalformedXML(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format Format
	}{
		{
			"mismatched close tag",
			`<rss version="2.0"><channel><title>T</title><item><guid>a</guid></item><item><guid>b</guid></itm></channel></rss>`,
			FormatRSS,
		},
		{
			"bare ampersand",
			`<rss version="2.0"><channel><title>Tom & Jerry</title><item><guid>a</guid></item></channel></rss>`,
			FormatRSS,
		},
		{
			"undefined entity",
			`<rss version="2.0"><channel><title>T&nbsp;</title><item><guid>a</guid></item></channel></rss>`,
			FormatRSS,
		},
		{
			"truncated document",
			`<rss version="2.0"><channel><title>T</title><item><guid>a</guid></item>`,
			FormatRSS,
		},
		{
			"atom mismatched close tag",
			`<feed xmlns="http://www.w3.org/2005/Atom"><title>T</title><entry><link href="https://example.com/a"/></entri></feed>`,
			FormatAtom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewParser().Run([]byte(tt.data), "")
			var formatErr *FormatError
			if !errors.As(err, &formatErr) {
				t.Fatalf("Expected FormatError, got: %v (document %+v)", err, doc)
			}
			if formatErr.Format != tt.format {
				t.Errorf("Expected %s format in error, got: %s", tt.format, formatErr.Format)
			}
		})
	}
}

func TestParseAcceptsEncodingAndEscapes(t *testing.T) {
	data := `<?xml version="1.0" encoding="ISO-8859-1"?>` +
		`<rss version="2.0"><channel><title>Tom &amp; Jerry &#233;</title>` +
		`<item><guid>a</guid><description><![CDATA[<p>x & y</p>]]></description></item></channel></rss>`

	doc, err := NewParser().Run([]byte(data), "")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if doc.Channel.Title != "Tom & Jerry \u00e9" {
		t.Errorf("Expected decoded title, got: %q", doc.Channel.Title)
	}
	if len(doc.Items) != 1 || doc.Items[0].Description != "<p>x & y</p>" {
		t.Errorf("Expected CDATA description, got: %+v", doc.Items)
	}
}

func TestDetectFormatFallsBackToContentHint(t *testing.T) {
	format, err := detectFormat([]byte("garbage"), "application/atom+xml; charset=utf-8")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if format != FormatAtom {
		t.Errorf("Expected atom from content hint, got: %s", format)
	}
}

func TestItemKey(t *testing.T) {
	a := ItemKey("https://example.com/rss", "a")
	if a != ItemKey("https://example.com/rss", "a") {
		t.Error("Expected stable key")
	}
	if len(a) != 64 {
		t.Errorf("Expected hex sha256 key, got length %d", len(a))
	}
	if ItemKey("https://example.com/rs", "sa") == a {
		t.Error("Expected separator to disambiguate source and identifier")
	}
}
