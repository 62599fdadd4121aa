package generator

import (
	"regexp"
	"sort"
	"strings"
)

// Evidence filtering thresholds.
const (
	// minEvidenceTextLength drops stub paragraphs that cannot anchor a
	// question.
	minEvidenceTextLength = 200

	// tocScanWindow is how far into a paragraph dot leaders are looked
	// for; table-of-contents rows are useless as evidence.
	tocScanWindow = 220

	// maxEvidenceTextLength trims paragraph text for the prompt.
	maxEvidenceTextLength = 1200
)

// Paragraph is one hierarchical paragraph offered to the model as evidence.
type Paragraph struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	PageNumber   *int   `json:"page_number"`
	SectionPath  string `json:"section_path"`
	ChapterPath  string `json:"chapter_path"`
	Text         string `json:"text"`
}

var tocLeaderRe = regexp.MustCompile(`\.{6,}`)

// usableText rejects empty, table-of-contents, and too-short paragraphs.
func usableText(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	window := text
	if len(window) > tocScanWindow {
		window = window[:tocScanWindow]
	}
	if tocLeaderRe.MatchString(window) {
		return false
	}
	return len(trimmed) >= minEvidenceTextLength
}

// sampleEvidence filters paragraphs down to a prompt-sized sample: per
// document, labeled paragraphs first then longest first, capped per
// document and in total, text trimmed to prompt length.
func sampleEvidence(paragraphs []Paragraph, documentIDs []string, maxPerDoc, maxTotal int) []Paragraph {
	grouped := make(map[string][]Paragraph)
	for _, p := range paragraphs {
		if !usableText(p.Text) {
			continue
		}
		grouped[p.DocumentID] = append(grouped[p.DocumentID], p)
	}

	if maxPerDoc < 0 {
		maxPerDoc = 0
	}
	var picked []Paragraph
	for _, docID := range documentIDs {
		group := grouped[docID]
		// Labeled paragraphs make better canonical questions.
		sort.SliceStable(group, func(i, j int) bool {
			li := group[i].SectionPath != "" || group[i].ChapterPath != ""
			lj := group[j].SectionPath != "" || group[j].ChapterPath != ""
			if li != lj {
				return li
			}
			return len(group[i].Text) > len(group[j].Text)
		})
		if len(group) > maxPerDoc {
			group = group[:maxPerDoc]
		}
		picked = append(picked, group...)
	}

	if len(picked) > maxTotal {
		picked = picked[:maxTotal]
	}
	for i := range picked {
		picked[i].Text = trimEvidenceText(picked[i].Text)
	}
	return picked
}

// trimEvidenceText cuts text at a word boundary near the prompt budget.
func trimEvidenceText(text string) string {
	t := strings.TrimSpace(text)
	if len(t) <= maxEvidenceTextLength {
		return t
	}
	cut := t[:maxEvidenceTextLength]
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
