package feed

// Format identifies the wire format of a feed document.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatAtom Format = "atom"
)

// Document is the normalized result of parsing one feed document.
type Document struct {
	Format  Format
	Channel Channel
	Items   []Item
	// Skipped counts items dropped because they carry no identifier.
	Skipped int
}

// Channel holds feed-level metadata. It is attached to every item emitted
// from the same fetch and is never persisted.
type Channel struct {
	Title          string     `json:"title,omitempty"`
	Link           string     `json:"link,omitempty"`
	Description    string     `json:"description,omitempty"`
	Language       string     `json:"language,omitempty"`
	Copyright      string     `json:"copyright,omitempty"`
	ManagingEditor string     `json:"managingEditor,omitempty"`
	WebMaster      string     `json:"webMaster,omitempty"`
	PubDate        string     `json:"pubDate,omitempty"`
	LastBuildDate  string     `json:"lastBuildDate,omitempty"`
	Updated        string     `json:"updated,omitempty"`
	Generator      string     `json:"generator,omitempty"`
	Docs           string     `json:"docs,omitempty"`
	Author         string     `json:"author,omitempty"`
	Rating         string     `json:"rating,omitempty"`
	TTL            *int       `json:"ttl,omitempty"`
	Categories     []string   `json:"categories,omitempty"`
	Image          *Image     `json:"image,omitempty"`
	TextInput      *TextInput `json:"textInput,omitempty"`
	Cloud          *Cloud     `json:"cloud,omitempty"`
	SkipHours      []int      `json:"skipHours,omitempty"`
	SkipDays       []string   `json:"skipDays,omitempty"`

	// Atom only
	SelfLink string `json:"self,omitempty"`
	NextPage string `json:"next,omitempty"`
	PrevPage string `json:"previous,omitempty"`
}

type Image struct {
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
	Width       *int   `json:"width,omitempty"`
	Height      *int   `json:"height,omitempty"`
}

type TextInput struct {
	Name        string `json:"name,omitempty"`
	Title       string `json:"title,omitempty"`
	Link        string `json:"link,omitempty"`
	Description string `json:"description,omitempty"`
}

type Cloud struct {
	Domain            string `json:"domain,omitempty"`
	Port              string `json:"port,omitempty"`
	Path              string `json:"path,omitempty"`
	RegisterProcedure string `json:"registerProcedure,omitempty"`
	Protocol          string `json:"protocol,omitempty"`
}

// Item is one entry of a feed, normalized across formats. GUID is the
// identifier used for deduplication together with the source URL.
type Item struct {
	GUID        string      `json:"guid"`
	Title       string      `json:"title,omitempty"`
	Link        string      `json:"link,omitempty"`
	Description string      `json:"description,omitempty"`
	Author      string      `json:"author,omitempty"`
	Comments    string      `json:"comments,omitempty"`
	PubDate     string      `json:"pubDate,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Enclosure   *Enclosure  `json:"enclosure,omitempty"`
	Source      *ItemSource `json:"source,omitempty"`
}

type Enclosure struct {
	URL    string `json:"url,omitempty"`
	Length string `json:"length,omitempty"`
	Type   string `json:"type,omitempty"`
}

type ItemSource struct {
	URL  string `json:"url,omitempty"`
	Name string `json:"name,omitempty"`
}
