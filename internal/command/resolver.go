package command

import (
	"context"
	"fmt"

	"github.com/LeventeLantos/bot-dispatch/internal/model"
)

type Resolver struct {
	registry *Registry
}

func NewResolver(r *Registry) *Resolver {
	return &Resolver{registry: r}
}

// Resolve maps inbound chat text to the action of the first active command
// whose trigger equals the text, ignoring case and surrounding whitespace.
// Substrings and prefixes never match. Commands are scanned newest first, so
// when two share a trigger the most recently created one wins.
// A nil action means no command matched.
func (r *Resolver) Resolve(ctx context.Context, input string) (*model.ResolvedAction, error) {
	needle := foldTrigger(input)
	if needle == "" {
		return nil, nil
	}

	cmds, err := r.registry.List(ctx, Filter{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list active commands: %w", err)
	}

	for _, c := range cmds {
		if !c.IsActive {
			continue
		}
		for _, t := range c.Triggers {
			if foldTrigger(t) == needle {
				return actionFor(c), nil
			}
		}
	}
	return nil, nil
}

func actionFor(c model.Command) *model.ResolvedAction {
	switch c.Link.Kind() {
	case model.LinkSubcategory:
		return &model.ResolvedAction{Kind: model.ActionFunnelSubcategory, CommandID: c.ID, NodeID: c.Link.ID()}
	case model.LinkItem:
		return &model.ResolvedAction{Kind: model.ActionFunnelItem, CommandID: c.ID, NodeID: c.Link.ID()}
	default:
		return &model.ResolvedAction{
			Kind:        model.ActionContent,
			CommandID:   c.ID,
			Text:        c.TextMessage,
			Attachments: model.CloneAttachments(c.Attachments),
		}
	}
}
