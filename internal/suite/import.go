package suite

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evalstudio/eval-studio/internal/pkg/errors"
)

// ImportError describes one question row that failed validation. A bad row
// never aborts the rest of the batch.
type ImportError struct {
	QID     string `json:"qid"`
	Message string `json:"error"`
}

// ImportReport summarizes an idempotent question import.
type ImportReport struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Total    int           `json:"total"`
	Errors   []ImportError `json:"errors"`
}

// stringList accepts either a YAML scalar or a sequence of scalars.
// Gold fields are hand-written in suite YAML, so both forms show up.
type stringList []string

func (s *stringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var v string
		if err := value.Decode(&v); err != nil {
			return err
		}
		if strings.TrimSpace(v) == "" {
			*s = nil
			return nil
		}
		*s = stringList{v}
		return nil
	case yaml.SequenceNode:
		var vs []string
		if err := value.Decode(&vs); err != nil {
			return err
		}
		*s = stringList(cleanStrings(vs))
		return nil
	default:
		return fmt.Errorf("expected string or list, got yaml node kind %d", value.Kind)
	}
}

// importGold mirrors Gold but tolerates hand-written YAML: scalar-or-list
// fields and the answer_contains alias for crux substrings.
type importGold struct {
	ExpectInManual    *bool      `yaml:"expect_in_manual"`
	ParentMetadataIDs stringList `yaml:"parent_metadata_ids"`
	CruxContains      stringList `yaml:"crux_contains"`
	AnswerContains    stringList `yaml:"answer_contains"`
}

type importQuestion struct {
	ID       string     `yaml:"id"`
	Intent   string     `yaml:"intent"`
	Bucket   string     `yaml:"bucket"`
	Question string     `yaml:"question"`
	Gold     importGold `yaml:"gold"`
}

type importBatch struct {
	Questions []importQuestion `yaml:"questions"`
}

// ParseQuestionBatch parses a YAML question batch into questions plus
// per-row validation errors. The returned error is non-nil only for
// document-level failures (empty input, malformed YAML, missing
// `questions:` list); row-level problems land in the error list.
func ParseQuestionBatch(yamlText string) ([]Question, []ImportError, error) {
	text := strings.TrimSpace(yamlText)
	if text == "" {
		return nil, nil, errors.InvalidRequestError("yaml is required")
	}

	var batch importBatch
	if err := yaml.Unmarshal([]byte(text), &batch); err != nil {
		return nil, nil, errors.InvalidRequestError(fmt.Sprintf("invalid yaml: %v", err))
	}
	if len(batch.Questions) == 0 {
		return nil, nil, errors.InvalidRequestError("yaml must contain top-level 'questions: [...]'")
	}

	questions := make([]Question, 0, len(batch.Questions))
	var rowErrors []ImportError
	for i, row := range batch.Questions {
		qid := strings.TrimSpace(row.ID)
		if qid == "" {
			qid = fmt.Sprintf("Q%03d", i+1)
		}

		text := strings.TrimSpace(row.Question)
		if text == "" {
			rowErrors = append(rowErrors, ImportError{
				QID:     qid,
				Message: "question text is required",
			})
			continue
		}

		crux := append([]string{}, row.Gold.CruxContains...)
		crux = append(crux, row.Gold.AnswerContains...)

		questions = append(questions, Question{
			QID:    qid,
			Intent: strings.ToLower(strings.TrimSpace(row.Intent)),
			Bucket: strings.ToLower(strings.TrimSpace(row.Bucket)),
			Text:   text,
			Gold: Gold{
				ExpectInManual:    row.Gold.ExpectInManual,
				ParentMetadataIDs: cleanStrings(row.Gold.ParentMetadataIDs),
				CruxContains:      cleanStrings(crux),
			},
		})
	}

	return questions, rowErrors, nil
}
