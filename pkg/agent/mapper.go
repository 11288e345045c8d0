package agent

import "github.com/harun/turnstream/pkg/protocol"

// DefaultItemMapper reports finished assistant messages, reasoning summaries
// and web searches. Other item types produce nothing.
func DefaultItemMapper(item protocol.ResponseItem) []Notification {
	switch item.Type {
	case protocol.ItemTypeMessage:
		if item.Role != "assistant" {
			return nil
		}
		var out []Notification
		for _, c := range item.Content {
			if c.Type == protocol.ContentOutputText && c.Text != "" {
				out = append(out, Notification{Kind: NotifyAgentMessage, Text: c.Text})
			}
		}
		return out

	case protocol.ItemTypeReasoning:
		var out []Notification
		for _, s := range item.Summary {
			if s.Text != "" {
				out = append(out, Notification{Kind: NotifyAgentReasoning, Text: s.Text})
			}
		}
		return out

	case protocol.ItemTypeWebSearchCall:
		n := Notification{Kind: NotifyWebSearchEnd, CallID: webSearchCallID(item)}
		if item.Action != nil {
			n.Query = item.Action.Query
		}
		return []Notification{n}
	}
	return nil
}

func webSearchCallID(item protocol.ResponseItem) string {
	if item.CallID != "" {
		return item.CallID
	}
	return item.ID
}
