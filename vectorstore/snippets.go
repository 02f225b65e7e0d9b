package vectorstore

// ExtractSnippets derives bounded text previews from the top limit hits.
// The display text depends on the payload kind: atoms and pins use their
// raw text, episodes combine title and summary. Hits in the window
// yielding empty text are skipped, not replaced by lower-ranked hits, so
// the result may hold fewer than limit snippets. Each snippet is
// truncated to maxLength characters with an ellipsis marker.
func ExtractSnippets(hits []Hit, limit, maxLength int) []string {
	if limit < 0 {
		limit = 0
	}
	if limit > len(hits) {
		limit = len(hits)
	}
	var snippets []string

	for _, hit := range hits[:limit] {
		text := DisplayText(hit.Payload)
		if text == "" {
			continue
		}

		if runes := []rune(text); len(runes) > maxLength {
			text = string(runes[:maxLength]) + "..."
		}
		snippets = append(snippets, text)
	}

	return snippets
}

// DisplayText derives the preview text for a payload by kind.
func DisplayText(p Payload) string {
	kind, _ := p["kind"].(string)

	switch kind {
	case KindAtom, KindPin:
		text, _ := p["text"].(string)
		return text
	case KindEpisode:
		title, _ := p["title"].(string)
		summary, _ := p["summary"].(string)
		if summary != "" {
			return title + ": " + summary
		}
		return title
	}
	return ""
}
