package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/dvloznov/smart-budget/internal/domain"
)

// Convention names the input shape a model artifact was exported for.
type Convention string

const (
	ConventionRecords Convention = "records"
	ConventionTable   Convention = "table"
	ConventionVector  Convention = "vector"
)

// ArtifactModel is a classifier exported by the offline training job as JSON.
// A "records" or "table" artifact carries its own text preprocessing; a
// "vector" artifact is a bare decision tree over the numeric features.
type ArtifactModel struct {
	Name         string     `json:"name"`
	Input        Convention `json:"input"`
	Labels       []string   `json:"labels"`
	DefaultLabel string     `json:"default_label"`

	// TokenWeights maps label -> lower-cased token -> weight.
	TokenWeights map[string]map[string]float64 `json:"token_weights,omitempty"`
	// PaymentWeights maps label -> payment method -> weight.
	PaymentWeights map[string]map[string]float64 `json:"payment_weights,omitempty"`

	Tree *TreeNode `json:"tree,omitempty"`
}

// TreeNode is a binary split on one element of the numeric vector. Leaves
// carry a Label.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *TreeNode `json:"left,omitempty"` // value <= threshold
	Right     *TreeNode `json:"right,omitempty"`
	Label     string    `json:"label,omitempty"`
}

// ParseArtifact decodes and validates a JSON model artifact.
func ParseArtifact(data []byte) (*ArtifactModel, error) {
	var m ArtifactModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ParseArtifact: unmarshal: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("ParseArtifact: %w", err)
	}
	return &m, nil
}

func (m *ArtifactModel) validate() error {
	switch m.Input {
	case ConventionRecords, ConventionTable:
		if len(m.TokenWeights) == 0 && m.Tree == nil {
			return errors.New("text artifact needs token_weights or a tree")
		}
	case ConventionVector:
		if m.Tree == nil {
			return errors.New("vector artifact needs a tree")
		}
	default:
		return fmt.Errorf("unknown input convention %q", m.Input)
	}
	if len(m.Labels) == 0 {
		return errors.New("artifact has no labels")
	}
	if m.Tree != nil {
		if err := m.Tree.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (n *TreeNode) validate() error {
	if n.Left == nil && n.Right == nil {
		if n.Label == "" {
			return errors.New("tree leaf without label")
		}
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return errors.New("tree split needs both branches")
	}
	if n.Feature < 0 || n.Feature > 3 {
		return fmt.Errorf("tree split on unknown feature %d", n.Feature)
	}
	if err := n.Left.validate(); err != nil {
		return err
	}
	return n.Right.validate()
}

// Predict implements Model. Only the artifact's own convention is accepted.
func (m *ArtifactModel) Predict(ctx context.Context, input any) ([]any, error) {
	switch in := input.(type) {
	case Records:
		if m.Input != ConventionRecords {
			return nil, m.unsupported(input)
		}
		out := make([]any, 0, len(in))
		for _, row := range in {
			label, err := m.predictRow(row)
			if err != nil {
				return nil, err
			}
			out = append(out, label)
		}
		return out, nil

	case Table:
		if m.Input != ConventionTable {
			return nil, m.unsupported(input)
		}
		n, err := in.Rows()
		if err != nil {
			return nil, fmt.Errorf("ArtifactModel: %w", err)
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			label, err := m.predictRow(in.Row(i))
			if err != nil {
				return nil, err
			}
			out = append(out, label)
		}
		return out, nil

	case Vectors:
		if m.Input != ConventionVector {
			return nil, m.unsupported(input)
		}
		out := make([]any, 0, len(in))
		for _, row := range in {
			if len(row) != 4 {
				return nil, fmt.Errorf("ArtifactModel: expected 4 features, got %d", len(row))
			}
			out = append(out, m.Tree.walk(row))
		}
		return out, nil
	}

	return nil, m.unsupported(input)
}

func (m *ArtifactModel) unsupported(input any) error {
	return fmt.Errorf("ArtifactModel %s: %w: expects %s input, got %T", m.Name, ErrUnsupportedInput, m.Input, input)
}

// predictRow scores a named-field row. Text tokens and payment method vote
// per label; without a positive score the tree (if any) decides, then the
// default label.
func (m *ArtifactModel) predictRow(row map[string]any) (string, error) {
	if _, ok := row[domain.FieldText]; !ok {
		return "", fmt.Errorf("ArtifactModel: missing %s column", domain.FieldText)
	}

	scores := make(map[string]float64, len(m.Labels))
	for _, tok := range tokenize(stringField(row, domain.FieldText)) {
		for label, weights := range m.TokenWeights {
			scores[label] += weights[tok]
		}
	}
	pm := stringField(row, domain.FieldPaymentMethod)
	for label, weights := range m.PaymentWeights {
		scores[label] += weights[pm]
	}

	best, bestScore := "", 0.0
	for _, label := range m.Labels {
		if s := scores[label]; s > bestScore {
			best, bestScore = label, s
		}
	}
	if best != "" {
		return best, nil
	}

	if m.Tree != nil {
		vec, err := NumericVector(row)
		if err != nil {
			return "", fmt.Errorf("ArtifactModel: %w", err)
		}
		return m.Tree.walk(vec), nil
	}
	if m.DefaultLabel != "" {
		return m.DefaultLabel, nil
	}
	return "", errors.New("ArtifactModel: no label scored and no default_label")
}

func (n *TreeNode) walk(vec []float64) string {
	for n.Left != nil && n.Right != nil {
		if vec[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Label
}

// tokenize lower-cases s and splits it on anything that is not a letter,
// digit or apostrophe.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
