package feed

import (
	"bytes"
	"fmt"

	"github.com/mmcdole/gofeed/rss"
)

func parseRSS(data []byte) (*Document, error) {
	src, err := (&rss.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Format: FormatRSS, Err: err}
	}

	channel, err := rssChannel(src)
	if err != nil {
		return nil, &FormatError{Format: FormatRSS, Err: err}
	}

	doc := &Document{
		Format:  FormatRSS,
		Channel: channel,
		Items:   make([]Item, 0, len(src.Items)),
	}

	for i, it := range src.Items {
		if it == nil {
			continue
		}
		item, err := rssItem(it)
		if err != nil {
			return nil, &FormatError{Format: FormatRSS, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		if item.GUID == "" {
			doc.Skipped++
			continue
		}
		doc.Items = append(doc.Items, item)
	}

	return doc, nil
}

func rssChannel(src *rss.Feed) (Channel, error) {
	var err error
	ch := Channel{
		Title:          src.Title,
		Link:           src.Link,
		Description:    src.Description,
		Language:       src.Language,
		Copyright:      src.Copyright,
		ManagingEditor: src.ManagingEditor,
		WebMaster:      src.WebMaster,
		Generator:      src.Generator,
		Docs:           src.Docs,
		Rating:         src.Rating,
		SkipDays:       src.SkipDays,
		Categories:     rssCategories(src.Categories),
	}

	if ch.PubDate, err = formatDate(rfc822Layout, src.PubDate); err != nil {
		return ch, fmt.Errorf("pubDate: %w", err)
	}
	if ch.LastBuildDate, err = formatDate(rfc822Layout, src.LastBuildDate); err != nil {
		return ch, fmt.Errorf("lastBuildDate: %w", err)
	}
	if ch.TTL, err = parseOptionalInt("ttl", src.TTL); err != nil {
		return ch, err
	}

	for _, hour := range src.SkipHours {
		h, err := parseOptionalInt("skipHours hour", hour)
		if err != nil {
			return ch, err
		}
		if h != nil {
			ch.SkipHours = append(ch.SkipHours, *h)
		}
	}

	if src.Image != nil {
		img := &Image{
			URL:         src.Image.URL,
			Title:       src.Image.Title,
			Link:        src.Image.Link,
			Description: src.Image.Description,
		}
		if img.Width, err = parseOptionalInt("image width", src.Image.Width); err != nil {
			return ch, err
		}
		if img.Height, err = parseOptionalInt("image height", src.Image.Height); err != nil {
			return ch, err
		}
		ch.Image = img
	}

	if src.TextInput != nil {
		ch.TextInput = &TextInput{
			Name:        src.TextInput.Name,
			Title:       src.TextInput.Title,
			Link:        src.TextInput.Link,
			Description: src.TextInput.Description,
		}
	}

	if src.Cloud != nil {
		ch.Cloud = &Cloud{
			Domain:            src.Cloud.Domain,
			Port:              src.Cloud.Port,
			Path:              src.Cloud.Path,
			RegisterProcedure: src.Cloud.RegisterProcedure,
			Protocol:          src.Cloud.Protocol,
		}
	}

	return ch, nil
}

func rssItem(src *rss.Item) (Item, error) {
	item := Item{
		Title:       src.Title,
		Link:        src.Link,
		Description: src.Description,
		Author:      src.Author,
		Comments:    src.Comments,
		Categories:  rssCategories(src.Categories),
	}

	if src.GUID != nil {
		item.GUID = normalizeIdentifier(src.GUID.Value)
	}

	pubDate, err := formatDate(rfc822Layout, src.PubDate)
	if err != nil {
		return item, fmt.Errorf("pubDate: %w", err)
	}
	item.PubDate = pubDate

	if src.Enclosure != nil {
		item.Enclosure = &Enclosure{
			URL:    src.Enclosure.URL,
			Length: src.Enclosure.Length,
			Type:   src.Enclosure.Type,
		}
	}

	if src.Source != nil {
		item.Source = &ItemSource{
			URL:  src.Source.URL,
			Name: src.Source.Title,
		}
	}

	return item, nil
}

func rssCategories(categories []*rss.Category) []string {
	var out []string
	for _, c := range categories {
		if c != nil && c.Value != "" {
			out = append(out, c.Value)
		}
	}
	return out
}
