package content

import (
	"fmt"
	"strings"
)

// block is one node of the rich-text document tree the notes API returns.
// The tree nests arbitrarily; only the block types listed in flattenBlock
// carry text the pipeline cares about.
type block struct {
	Type    string  `json:"type"`
	Text    string  `json:"text"`
	Attrs   *attrs  `json:"attrs"`
	Content []block `json:"content"`
}

type attrs struct {
	Level int `json:"level"`
}

// flattenPanels converts the API's panels into plain labeled text.
func flattenPanels(panels []panel) string {
	var sections []string
	for _, p := range panels {
		title := p.Title
		if title == "" {
			title = "Notes"
		}
		text := flattenBlock(p.Content)
		if strings.TrimSpace(text) == "" {
			continue
		}
		sections = append(sections, title+":\n"+text)
	}
	return strings.Join(sections, "\n\n")
}

// flattenBlock recursively extracts text from a rich-text block tree,
// rendering headings, bullet lists, ordered lists, and paragraphs.
func flattenBlock(b *block) string {
	if b == nil {
		return ""
	}
	var parts []string
	for _, child := range b.Content {
		child := child
		switch child.Type {
		case "heading":
			text := strings.TrimSpace(inlineText(&child))
			if text != "" {
				level := 3
				if child.Attrs != nil && child.Attrs.Level > 0 {
					level = child.Attrs.Level
				}
				parts = append(parts, strings.Repeat("#", level)+" "+text)
			}
		case "bulletList":
			for _, li := range child.Content {
				li := li
				if text := strings.TrimSpace(inlineText(&li)); text != "" {
					parts = append(parts, "- "+text)
				}
			}
		case "orderedList":
			for i, li := range child.Content {
				li := li
				if text := strings.TrimSpace(inlineText(&li)); text != "" {
					parts = append(parts, fmt.Sprintf("%d. %s", i+1, text))
				}
			}
		case "paragraph":
			if text := strings.TrimSpace(inlineText(&child)); text != "" {
				parts = append(parts, text)
			}
		default:
			if len(child.Content) > 0 {
				if nested := flattenBlock(&child); strings.TrimSpace(nested) != "" {
					parts = append(parts, nested)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

// inlineText concatenates the text leaves under a block.
func inlineText(b *block) string {
	var sb strings.Builder
	for _, item := range b.Content {
		item := item
		if item.Type == "text" {
			sb.WriteString(item.Text)
		} else if len(item.Content) > 0 {
			sb.WriteString(inlineText(&item))
		}
	}
	return sb.String()
}
