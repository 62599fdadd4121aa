package suite

import (
	"strings"
	"testing"
)

func TestParseQuestionBatch(t *testing.T) {
	yamlText := `
questions:
  - id: Q001
    intent: Factual
    bucket: In_Manual
    question: "What is the prior authorization turnaround time?"
    gold:
      parent_metadata_ids:
        - meta-123
      crux_contains: "14 days"
  - id: Q002
    bucket: out_of_manual
    question: "What is the weather today?"
    gold:
      expect_in_manual: false
`
	questions, rowErrors, err := ParseQuestionBatch(yamlText)
	if err != nil {
		t.Fatalf("ParseQuestionBatch() error: %v", err)
	}
	if len(rowErrors) != 0 {
		t.Fatalf("unexpected row errors: %v", rowErrors)
	}
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}

	q1 := questions[0]
	if q1.QID != "Q001" {
		t.Errorf("expected qid Q001, got %q", q1.QID)
	}
	if q1.Intent != "factual" || q1.Bucket != "in_manual" {
		t.Errorf("expected lowercased intent/bucket, got %q/%q", q1.Intent, q1.Bucket)
	}
	if len(q1.Gold.ParentMetadataIDs) != 1 || q1.Gold.ParentMetadataIDs[0] != "meta-123" {
		t.Errorf("unexpected parent ids: %v", q1.Gold.ParentMetadataIDs)
	}
	// crux_contains given as a scalar is accepted as a one-element list
	if len(q1.Gold.CruxContains) != 1 || q1.Gold.CruxContains[0] != "14 days" {
		t.Errorf("unexpected crux: %v", q1.Gold.CruxContains)
	}

	q2 := questions[1]
	if q2.ExpectInManual() {
		t.Error("expected out_of_manual question to not expect an answer")
	}
	if q2.HasGold() {
		t.Error("expected question without criteria to have no gold")
	}
}

func TestParseQuestionBatch_AnswerContainsAlias(t *testing.T) {
	yamlText := `
questions:
  - id: Q001
    question: "How are claims appealed?"
    gold:
      crux_contains: ["60 days"]
      answer_contains: "written notice"
`
	questions, _, err := ParseQuestionBatch(yamlText)
	if err != nil {
		t.Fatalf("ParseQuestionBatch() error: %v", err)
	}
	got := questions[0].Gold.CruxContains
	if len(got) != 2 || got[0] != "60 days" || got[1] != "written notice" {
		t.Errorf("expected merged crux list, got %v", got)
	}
}

func TestParseQuestionBatch_DefaultsQID(t *testing.T) {
	yamlText := `
questions:
  - question: "First question?"
  - question: "Second question?"
`
	questions, _, err := ParseQuestionBatch(yamlText)
	if err != nil {
		t.Fatalf("ParseQuestionBatch() error: %v", err)
	}
	if questions[0].QID != "Q001" || questions[1].QID != "Q002" {
		t.Errorf("expected positional qids, got %q, %q", questions[0].QID, questions[1].QID)
	}
}

func TestParseQuestionBatch_RowErrors(t *testing.T) {
	yamlText := `
questions:
  - id: Q001
    question: ""
  - id: Q002
    question: "Valid question?"
`
	questions, rowErrors, err := ParseQuestionBatch(yamlText)
	if err != nil {
		t.Fatalf("ParseQuestionBatch() error: %v", err)
	}
	if len(questions) != 1 || questions[0].QID != "Q002" {
		t.Errorf("expected the valid row to survive, got %v", questions)
	}
	if len(rowErrors) != 1 {
		t.Fatalf("expected 1 row error, got %d", len(rowErrors))
	}
	if rowErrors[0].QID != "Q001" {
		t.Errorf("expected error attributed to Q001, got %q", rowErrors[0].QID)
	}
	if !strings.Contains(rowErrors[0].Message, "question text") {
		t.Errorf("unexpected error message: %q", rowErrors[0].Message)
	}
}

func TestParseQuestionBatch_DocumentErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty input", "   "},
		{"malformed yaml", "questions: [unclosed"},
		{"missing questions key", "suites: []"},
		{"empty questions list", "questions: []"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseQuestionBatch(tt.yaml); err == nil {
				t.Error("expected a document-level error")
			}
		})
	}
}
