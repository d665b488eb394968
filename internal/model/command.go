package model

import "time"

type LinkKind int

const (
	LinkNone LinkKind = iota
	LinkSubcategory
	LinkItem
)

// FunnelLink points a command at most at one funnel node. The zero value is
// LinkNone.
type FunnelLink struct {
	kind LinkKind
	id   int64
}

func NoLink() FunnelLink { return FunnelLink{} }

func SubcategoryLink(id int64) FunnelLink { return FunnelLink{kind: LinkSubcategory, id: id} }

func ItemLink(id int64) FunnelLink { return FunnelLink{kind: LinkItem, id: id} }

// NewFunnelLink builds a link from the two nullable ids a client sends.
// Setting both is rejected; setting one leaves the other unrepresentable.
func NewFunnelLink(subcategoryID, itemID *int64) (FunnelLink, error) {
	switch {
	case subcategoryID != nil && itemID != nil:
		return FunnelLink{}, NewValidationError("link", "subcategory and item are mutually exclusive")
	case subcategoryID != nil:
		if *subcategoryID <= 0 {
			return FunnelLink{}, NewValidationError("linkedSubcategoryId", "must be > 0")
		}
		return SubcategoryLink(*subcategoryID), nil
	case itemID != nil:
		if *itemID <= 0 {
			return FunnelLink{}, NewValidationError("linkedItemId", "must be > 0")
		}
		return ItemLink(*itemID), nil
	default:
		return NoLink(), nil
	}
}

func (l FunnelLink) Kind() LinkKind { return l.kind }

func (l FunnelLink) ID() int64 { return l.id }

func (l FunnelLink) SubcategoryID() *int64 {
	if l.kind != LinkSubcategory {
		return nil
	}
	id := l.id
	return &id
}

func (l FunnelLink) ItemID() *int64 {
	if l.kind != LinkItem {
		return nil
	}
	id := l.id
	return &id
}

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Payload  []byte `json:"payload"`
}

type Command struct {
	ID          string
	Triggers    []string
	TextMessage string
	Attachments []Attachment
	IsActive    bool
	Link        FunnelLink
	CreatedAt   time.Time
}

// CloneAttachments deep-copies attachments so no payload is shared between
// commands or handed out by reference.
func CloneAttachments(in []Attachment) []Attachment {
	if len(in) == 0 {
		return nil
	}
	out := make([]Attachment, len(in))
	for i, a := range in {
		out[i] = Attachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			Payload:  append([]byte(nil), a.Payload...),
		}
	}
	return out
}

func (c Command) Clone() Command {
	c.Triggers = append([]string(nil), c.Triggers...)
	c.Attachments = CloneAttachments(c.Attachments)
	return c
}

type ActionKind string

const (
	ActionContent           ActionKind = "content"
	ActionFunnelSubcategory ActionKind = "funnel_subcategory"
	ActionFunnelItem        ActionKind = "funnel_item"
)

// ResolvedAction is what a matched trigger turns into. NodeID is set for the
// funnel kinds; Text and Attachments only for ActionContent.
type ResolvedAction struct {
	Kind        ActionKind   `json:"kind"`
	CommandID   string       `json:"commandId"`
	NodeID      int64        `json:"nodeId,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}
