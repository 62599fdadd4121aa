// Package generator builds question sets for a suite by sampling evidence
// paragraphs from the selected documents and asking an LLM to write
// questions whose gold labels reference those paragraphs.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
	"github.com/evalstudio/eval-studio/internal/pkg/logger"
	"github.com/evalstudio/eval-studio/internal/store"
	"github.com/evalstudio/eval-studio/internal/suite"
)

// Generation defaults and bounds.
const (
	DefaultQuestionTotal = 20
	MaxQuestionTotal     = 80

	DefaultMaxParagraphsPerDoc = 35
	DefaultMaxParagraphsTotal  = 160

	// authorityDocLimit bounds how many documents are sampled when the
	// suite is scoped by authority level instead of explicit ids.
	authorityDocLimit = 50
)

// LLM produces a completion for a prompt. Implementations wrap whatever
// model endpoint the deployment uses.
type LLM interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EvidenceSource supplies hierarchical paragraphs for evidence sampling.
type EvidenceSource interface {
	// Paragraphs returns all hierarchical paragraphs for the given
	// documents, in stable (document, page, paragraph) order.
	Paragraphs(ctx context.Context, documentIDs []string) ([]Paragraph, error)

	// DocumentIDsByAuthority returns up to limit distinct document ids
	// published at the given authority level.
	DocumentIDsByAuthority(ctx context.Context, authority string, limit int) ([]string, error)
}

// Request controls one generation. Zero values take defaults.
type Request struct {
	NTotal              int `json:"n_total"`
	NCanonical          int `json:"n_canonical"`
	NOutOfManual        int `json:"n_out_of_manual"`
	MaxParagraphsPerDoc int `json:"max_paragraphs_per_doc"`
	MaxParagraphsTotal  int `json:"max_paragraphs_total"`
}

// bucketCounts is the resolved question mix for one generation.
type bucketCounts struct {
	Total       int
	Canonical   int
	Factual     int
	OutOfManual int
}

// Result is the outcome of a generation: the raw YAML the model produced
// and the import report from loading it into the suite.
type Result struct {
	SuiteID       string              `json:"suite_id"`
	YAML          string              `json:"yaml"`
	Import        *suite.ImportReport `json:"import"`
	EvidenceCount int                 `json:"evidence_count"`
}

// Generator wires the store, evidence source, and LLM together.
type Generator struct {
	store    *store.Service
	evidence EvidenceSource
	llm      LLM
	log      *logger.Logger
}

// New creates a question generator.
func New(st *store.Service, evidence EvidenceSource, llm LLM, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.Default()
	}
	return &Generator{
		store:    st,
		evidence: evidence,
		llm:      llm,
		log:      log,
	}
}

// Generate produces a question set for the suite and imports it. The raw
// model YAML is returned alongside the import report so a caller can
// inspect exactly what was loaded.
func (g *Generator) Generate(ctx context.Context, suiteID string, req Request) (*Result, error) {
	counts, err := resolveCounts(req)
	if err != nil {
		return nil, err
	}

	st, err := g.store.GetSuite(ctx, suiteID)
	if err != nil {
		return nil, err
	}

	docIDs := st.Spec.DocumentIDs
	authority := st.Spec.DocumentAuthorityLevel
	if len(docIDs) == 0 && authority == "" {
		return nil, errors.InvalidRequestError(
			"suite_spec must include document_ids (recommended) or document_authority_level")
	}
	if len(docIDs) == 0 {
		docIDs, err = g.evidence.DocumentIDsByAuthority(ctx, authority, authorityDocLimit)
		if err != nil {
			return nil, errors.GenerationError("failed to resolve documents by authority", err)
		}
	}

	maxPerDoc := req.MaxParagraphsPerDoc
	if maxPerDoc <= 0 {
		maxPerDoc = DefaultMaxParagraphsPerDoc
	}
	maxTotal := req.MaxParagraphsTotal
	if maxTotal <= 0 {
		maxTotal = DefaultMaxParagraphsTotal
	}

	paragraphs, err := g.evidence.Paragraphs(ctx, docIDs)
	if err != nil {
		return nil, errors.GenerationError("failed to load evidence paragraphs", err)
	}
	evidence := sampleEvidence(paragraphs, docIDs, maxPerDoc, maxTotal)
	if len(evidence) == 0 {
		return nil, errors.InvalidRequestError(
			"no hierarchical evidence found for selected documents")
	}

	prompt := buildPrompt(counts, evidence)
	raw, err := g.llm.Complete(ctx, prompt)
	if err != nil {
		return nil, errors.GenerationError("llm call failed", err)
	}

	yamlText := ExtractYAMLBlock(raw)
	if yamlText == "" || !strings.Contains(yamlText, "questions:") {
		return nil, errors.New(errors.CodeGeneration,
			"llm did not return yaml with a questions list")
	}

	questions, rowErrors, err := suite.ParseQuestionBatch(yamlText)
	if err != nil {
		return nil, errors.Wrap(errors.CodeGeneration, "llm yaml failed validation", err)
	}

	report, err := g.store.ImportParsed(ctx, suiteID, questions, rowErrors)
	if err != nil {
		return nil, err
	}

	g.log.WithSuite(suiteID).Info("generated question set",
		"requested", counts.Total,
		"inserted", report.Inserted,
		"updated", report.Updated,
		"evidence_count", len(evidence))

	return &Result{
		SuiteID:       suiteID,
		YAML:          yamlText,
		Import:        report,
		EvidenceCount: len(evidence),
	}, nil
}

// resolveCounts applies the default question mix: a quarter canonical and a
// sixth out-of-manual (two each at minimum), the rest factual.
func resolveCounts(req Request) (bucketCounts, error) {
	total := req.NTotal
	if total == 0 {
		total = DefaultQuestionTotal
	}
	if total < 1 || total > MaxQuestionTotal {
		return bucketCounts{}, errors.InvalidRequestError(
			fmt.Sprintf("n_total must be 1..%d", MaxQuestionTotal))
	}

	canonical := req.NCanonical
	if canonical == 0 {
		canonical = max(2, total/4)
	}
	outOfManual := req.NOutOfManual
	if outOfManual == 0 {
		outOfManual = max(2, total/6)
	}
	if canonical < 0 || outOfManual < 0 {
		return bucketCounts{}, errors.InvalidRequestError("invalid bucket counts")
	}

	factual := max(0, total-canonical-outOfManual)
	return bucketCounts{
		Total:       total,
		Canonical:   canonical,
		Factual:     factual,
		OutOfManual: outOfManual,
	}, nil
}

// buildPrompt renders the generation prompt: task, output contract, gold
// labeling rules, and the evidence paragraphs the model may cite.
func buildPrompt(counts bucketCounts, evidence []Paragraph) string {
	var b strings.Builder

	b.WriteString("You are generating a retrieval evaluation question set for a RAG system.\n")
	b.WriteString("We are evaluating retrieval only (BM25 sentences vs hierarchical vector retrieval).\n")
	b.WriteString("\n## Task\n")
	fmt.Fprintf(&b, "- Generate exactly %d questions.\n", counts.Total)
	fmt.Fprintf(&b, "- Include exactly %d canonical questions (summarization of a section).\n", counts.Canonical)
	fmt.Fprintf(&b, "- Include exactly %d factual questions (single fact answerable from one paragraph).\n", counts.Factual)
	fmt.Fprintf(&b, "- Include exactly %d out-of-manual questions (should abstain).\n", counts.OutOfManual)
	b.WriteString("\n## Output format (YAML only)\n")
	b.WriteString("Return YAML with top-level key `questions:` as a list of objects with keys:\n")
	b.WriteString("Do NOT wrap the YAML in triple backticks or any code fences. Output raw YAML only.\n")
	b.WriteString("- id: Q001, Q002, ... (unique)\n")
	b.WriteString("- intent: canonical|factual\n")
	b.WriteString("- bucket: in_manual|out_of_manual\n")
	b.WriteString("- question: string\n")
	b.WriteString("- gold: object\n")
	b.WriteString("\n## Gold labeling rules\n")
	b.WriteString("- For in_manual questions: gold.parent_metadata_ids MUST be a list with exactly 1 id, chosen from the evidence list below.\n")
	b.WriteString("  Use the evidence paragraph id that contains the answer/crux.\n")
	b.WriteString("- For out_of_manual questions: set gold.expect_in_manual=false and DO NOT include parent_metadata_ids.\n")
	b.WriteString("- Do not invent ids. Only use evidence ids provided below.\n")
	b.WriteString("\n## Evidence paragraphs\n")
	for _, p := range evidence {
		writeEvidenceBlock(&b, p)
	}
	b.WriteString("\nNow produce the YAML.")

	return b.String()
}

// writeEvidenceBlock renders one paragraph as a YAML-style list entry with
// the text as an indented block scalar.
func writeEvidenceBlock(b *strings.Builder, p Paragraph) {
	fmt.Fprintf(b, "- id: %s\n", p.ID)
	fmt.Fprintf(b, "  document_id: %s\n", p.DocumentID)
	fmt.Fprintf(b, "  document_name: %s\n", p.DocumentName)
	if p.PageNumber != nil {
		fmt.Fprintf(b, "  page_number: %d\n", *p.PageNumber)
	} else {
		b.WriteString("  page_number: null\n")
	}
	fmt.Fprintf(b, "  section_path: %s\n", p.SectionPath)
	fmt.Fprintf(b, "  chapter_path: %s\n", p.ChapterPath)
	b.WriteString("  text: |\n")
	b.WriteString("    " + strings.ReplaceAll(p.Text, "\n", "\n    ") + "\n")
}

var (
	fencedYAMLRe = regexp.MustCompile("(?i)```yaml\\s*((?s:.*?))```")
	fencedAnyRe  = regexp.MustCompile("```\\s*((?s:.*?))```")
)

// ExtractYAMLBlock pulls YAML out of a model response. Accepts raw YAML,
// ```yaml fences, anonymous fences that contain a questions list, and
// unclosed fences.
func ExtractYAMLBlock(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}

	if m := fencedYAMLRe.FindStringSubmatch(t); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := fencedAnyRe.FindStringSubmatch(t); m != nil && strings.Contains(m[1], "questions:") {
		return strings.TrimSpace(m[1])
	}

	// Unclosed fence: drop everything through the first fence line and
	// stop at the next one if it exists.
	if strings.Contains(t, "```") {
		lines := strings.Split(t, "\n")
		start := -1
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				start = i
				break
			}
		}
		if start >= 0 {
			body := lines[start+1:]
			for j, line := range body {
				if strings.HasPrefix(strings.TrimSpace(line), "```") {
					body = body[:j]
					break
				}
			}
			if cleaned := strings.TrimSpace(strings.Join(body, "\n")); cleaned != "" {
				return cleaned
			}
		}
	}
	return t
}
