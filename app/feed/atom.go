package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"
)

func parseAtom(data []byte) (*Document, error) {
	src, err := (&atom.Parser{}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Format: FormatAtom, Err: err}
	}

	ch := Channel{
		Title:       src.Title,
		Description: src.Subtitle,
		Language:    src.Language,
	}

	for _, l := range src.Links {
		if l == nil || l.Href == "" {
			continue
		}
		switch strings.ToLower(l.Rel) {
		case "", "alternate":
			if ch.Link == "" {
				ch.Link = l.Href
			}
		case "self":
			ch.SelfLink = l.Href
		case "next":
			ch.NextPage = l.Href
		case "previous", "prev":
			ch.PrevPage = l.Href
		}
	}

	if src.Generator != nil {
		ch.Generator = src.Generator.Value
	}
	if len(src.Authors) > 0 && src.Authors[0] != nil {
		ch.Author = src.Authors[0].Name
	}
	for _, c := range src.Categories {
		if c != nil && c.Term != "" {
			ch.Categories = append(ch.Categories, c.Term)
		}
	}
	if ch.Updated, err = formatDate(time.RFC3339, src.Updated); err != nil {
		return nil, &FormatError{Format: FormatAtom, Err: fmt.Errorf("updated: %w", err)}
	}

	doc := &Document{
		Format:  FormatAtom,
		Channel: ch,
		Items:   make([]Item, 0, len(src.Entries)),
	}

	for i, entry := range src.Entries {
		if entry == nil {
			continue
		}
		item, err := atomItem(entry, ch)
		if err != nil {
			return nil, &FormatError{Format: FormatAtom, Err: fmt.Errorf("entry %d: %w", i, err)}
		}
		if item.GUID == "" {
			doc.Skipped++
			continue
		}
		doc.Items = append(doc.Items, item)
	}

	return doc, nil
}

func atomItem(entry *atom.Entry, ch Channel) (Item, error) {
	link := alternateLink(entry.Links)
	item := Item{
		GUID:        normalizeIdentifier(link),
		Title:       entry.Title,
		Link:        link,
		Description: entry.Summary,
	}

	if len(entry.Authors) > 0 && entry.Authors[0] != nil {
		item.Author = entry.Authors[0].Name
	}
	for _, c := range entry.Categories {
		if c != nil && c.Term != "" {
			item.Categories = append(item.Categories, c.Term)
		}
	}
	if ch.SelfLink != "" {
		item.Source = &ItemSource{URL: ch.SelfLink, Name: ch.Title}
	}

	pubDate, err := formatDate(time.RFC3339, cmp.Or(entry.Published, entry.Updated))
	if err != nil {
		return item, fmt.Errorf("published: %w", err)
	}
	item.PubDate = pubDate

	return item, nil
}

// alternateLink returns the href of the first alternate link. Atom has no
// guid element, so this link is the entry's stable identifier.
func alternateLink(links []*atom.Link) string {
	for _, l := range links {
		if l == nil {
			continue
		}
		rel := strings.ToLower(l.Rel)
		if (rel == "" || rel == "alternate") && l.Href != "" {
			return l.Href
		}
	}
	return ""
}
