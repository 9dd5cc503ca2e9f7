package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/chilahati-archive/archive-api/internal/taxonomy"
)

// ItemStatus controls public visibility of an archive item.
type ItemStatus string

const (
	StatusDraft     ItemStatus = "draft"
	StatusPublished ItemStatus = "published"
)

// Valid reports whether the status is one of the known values.
func (s ItemStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// BlockType tags a body content block.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockImage     BlockType = "image"
	BlockList      BlockType = "list"
	BlockTable     BlockType = "table"
	BlockPDF       BlockType = "pdf"
	BlockVideo     BlockType = "video"
	BlockQuote     BlockType = "quote"
	BlockLink      BlockType = "link"
)

// TextualBlockTypes carry prose and are covered by free-text search.
var TextualBlockTypes = []BlockType{BlockParagraph, BlockHeading, BlockList, BlockQuote}

// Textual reports whether the block payload is searchable prose.
func (t BlockType) Textual() bool {
	for _, bt := range TextualBlockTypes {
		if bt == t {
			return true
		}
	}
	return false
}

// ContentBlock is one ordered unit of an item's rich-text body. Content is a
// string or a structured object depending on Type.
type ContentBlock struct {
	Type    BlockType   `json:"type"`
	Content interface{} `json:"content"`
	Order   int         `json:"order"`
}

// BodyContent is the ordered block list of an item.
type BodyContent []ContentBlock

// Sorted returns a copy ordered by the Order field; equal orders keep
// submission order.
func (b BodyContent) Sorted() BodyContent {
	out := make(BodyContent, len(b))
	copy(out, b)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// ArchiveItem is the common envelope shared by all categories. Details holds
// the category-specific variant payload selected by Category.
type ArchiveItem struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Slug        string      `json:"slug"`
	Category    string      `json:"category"`
	Status      ItemStatus  `json:"status"`
	AuthorID    string      `json:"author"`
	AuthorName  string      `json:"authorName,omitempty"`
	Thumbnail   *string     `json:"thumbnail,omitempty"`
	BodyContent BodyContent `json:"bodyContent"`
	Tags        []string    `json:"tags"`
	Details     Variant     `json:"details,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// SubType returns the first non-blank value among the given sub-type fields.
func (i *ArchiveItem) SubType(fields ...string) string {
	if i == nil || i.Details == nil {
		return ""
	}
	for _, f := range fields {
		if v := strings.TrimSpace(i.Details.SubTypeValue(f)); v != "" {
			return v
		}
	}
	return ""
}

// UnmarshalJSON restores the variant payload using the category's family.
func (i *ArchiveItem) UnmarshalJSON(data []byte) error {
	type envelope ArchiveItem
	aux := struct {
		*envelope
		Details json.RawMessage `json:"details,omitempty"`
	}{envelope: (*envelope)(i)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	i.Details = nil
	if len(aux.Details) == 0 || string(aux.Details) == "null" {
		return nil
	}
	family := taxonomy.Family("")
	if desc, err := taxonomy.Default().Resolve(i.Category); err == nil {
		family = desc.Family
	}
	variant, err := DecodeVariant(family, aux.Details)
	if err != nil {
		return err
	}
	i.Details = variant
	return nil
}

// ArchiveFilter narrows listing queries. CategoryKeys are normalized
// category keys (see taxonomy.Normalize).
type ArchiveFilter struct {
	CategoryKeys  []string
	Status        ItemStatus
	SubType       string
	SubTypeFields []string
	Limit         int
	Offset        int
}
