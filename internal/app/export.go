package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"quizwhiz/internal/domain"
)

// ExportFormat selects the encoding used by Export.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportYAML ExportFormat = "yaml"
)

// ParseExportFormat accepts "json", "yaml" or "yml", case-insensitively.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return ExportJSON, nil
	case "yaml", "yml":
		return ExportYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// Export encodes the questions acquired so far in the shape accepted by
// LoadBatch.
func (s *Session) Export(format ExportFormat) ([]byte, error) {
	return EncodeQuestions(s.Questions(), format)
}

// EncodeQuestions renders questions as an indented JSON array or a YAML list.
func EncodeQuestions(questions []domain.Question, format ExportFormat) ([]byte, error) {
	if questions == nil {
		questions = []domain.Question{}
	}
	switch format {
	case ExportYAML:
		return yaml.Marshal(questions)
	case ExportJSON, "":
		return json.MarshalIndent(questions, "", "    ")
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// DecodeQuestions parses a batch file produced by EncodeQuestions. YAML is a
// superset of JSON, so the yaml format accepts both.
func DecodeQuestions(data []byte, format ExportFormat) ([]domain.Question, error) {
	var out []domain.Question
	var err error
	switch format {
	case ExportYAML:
		err = yaml.Unmarshal(data, &out)
	default:
		err = json.Unmarshal(data, &out)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedQuestion, err)
	}
	return out, nil
}
