package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const recordsArtifact = `{
  "name": "pipeline-v1",
  "input": "records",
  "labels": ["Food", "Travel", "Other"],
  "default_label": "Other",
  "token_weights": {
    "Food": {"coffee": 1.5, "lunch": 1.0},
    "Travel": {"flight": 2.0, "hotel": 1.0}
  },
  "payment_weights": {
    "Travel": {"Corporate": 0.5}
  }
}`

func TestParseArtifact(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr bool
	}{
		{"records artifact", recordsArtifact, false},
		{"vector artifact", `{"input":"vector","labels":["A","B"],"tree":{"feature":0,"threshold":10,"left":{"label":"A"},"right":{"label":"B"}}}`, false},
		{"vector without tree", `{"input":"vector","labels":["A"]}`, true},
		{"unknown convention", `{"input":"tensor","labels":["A"],"token_weights":{"A":{"x":1}}}`, true},
		{"no labels", `{"input":"records","token_weights":{"A":{"x":1}}}`, true},
		{"half split", `{"input":"vector","labels":["A"],"tree":{"feature":0,"left":{"label":"A"}}}`, true},
		{"bad feature index", `{"input":"vector","labels":["A"],"tree":{"feature":7,"left":{"label":"A"},"right":{"label":"A"}}}`, true},
		{"not json", `{`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArtifact([]byte(tt.json))
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseArtifact() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArtifactModel_RecordsPrediction(t *testing.T) {
	m, err := ParseArtifact([]byte(recordsArtifact))
	if err != nil {
		t.Fatalf("ParseArtifact failed: %v", err)
	}

	tests := []struct {
		name string
		row  map[string]any
		want string
	}{
		{"coffee", map[string]any{"text": "Morning COFFEE", "payment_method": "Card"}, "Food"},
		{"flight", map[string]any{"text": "Flight to Oslo", "payment_method": "Card"}, "Travel"},
		{"text outweighs payment method", map[string]any{"text": "lunch", "payment_method": "Corporate"}, "Food"},
		{"payment method alone", map[string]any{"text": "misc", "payment_method": "Corporate"}, "Travel"},
		{"nothing scores", map[string]any{"text": "misc", "payment_method": "Cash"}, "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds, err := m.Predict(context.Background(), Records{tt.row})
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if preds[0] != tt.want {
				t.Errorf("Predict = %v, want %s", preds[0], tt.want)
			}
		})
	}
}

func TestArtifactModel_RejectsOtherConventions(t *testing.T) {
	m, err := ParseArtifact([]byte(recordsArtifact))
	if err != nil {
		t.Fatalf("ParseArtifact failed: %v", err)
	}

	for _, input := range []any{
		Table{"text": {"coffee"}},
		Vectors{{1, 1, 1, 0}},
		[]string{"coffee"},
	} {
		if _, err := m.Predict(context.Background(), input); !errors.Is(err, ErrUnsupportedInput) {
			t.Errorf("Predict(%T) error = %v, want ErrUnsupportedInput", input, err)
		}
	}
}

func TestArtifactModel_Table(t *testing.T) {
	m, err := ParseArtifact([]byte(recordsArtifact))
	if err != nil {
		t.Fatalf("ParseArtifact failed: %v", err)
	}
	m.Input = ConventionTable

	preds, err := m.Predict(context.Background(), Table{
		"text":           {"coffee", "hotel stay"},
		"payment_method": {"Card", "Card"},
	})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(preds) != 2 || preds[0] != "Food" || preds[1] != "Travel" {
		t.Errorf("Predict = %v", preds)
	}

	if _, err := m.Predict(context.Background(), Table{"text": {"a", "b"}, "payment_method": {"Card"}}); err == nil {
		t.Error("expected error for mismatched column lengths")
	}
	if _, err := m.Predict(context.Background(), Table{"payment_method": {"Card"}}); err == nil {
		t.Error("expected error for missing text column")
	}
}

func TestArtifactModel_TreeFallbackForText(t *testing.T) {
	m := &ArtifactModel{
		Input:        ConventionRecords,
		Labels:       []string{"Weekday", "Weekend"},
		TokenWeights: map[string]map[string]float64{"Weekday": {"office": 1}},
		Tree: &TreeNode{
			Feature: 3, Threshold: 0.5,
			Left:  &TreeNode{Label: "Weekday"},
			Right: &TreeNode{Label: "Weekend"},
		},
	}

	preds, err := m.Predict(context.Background(), Records{{"text": "brunch", "is_weekend": 1}})
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if preds[0] != "Weekend" {
		t.Errorf("Predict = %v, want Weekend", preds[0])
	}
}

func TestTokenize(t *testing.T) {
	got := tokenize("McDonald's #42, Grill-House")
	want := []string{"mcdonald's", "42", "grill", "house"}
	if len(got) != len(want) {
		t.Fatalf("tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLoadArtifact_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(recordsArtifact), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	m, err := LoadArtifact(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadArtifact failed: %v", err)
	}
	if m.Name != "pipeline-v1" {
		t.Errorf("Name = %q", m.Name)
	}

	if _, err := LoadArtifact(context.Background(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSplitGCSURI(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{"gs://models/prod/model.json", "models", "prod/model.json", false},
		{"gs://models", "", "", true},
		{"gs:///model.json", "", "", true},
		{"s3://models/model.json", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, object, err := SplitGCSURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitGCSURI() error = %v, wantErr %v", err, tt.wantErr)
			}
			if bucket != tt.wantBucket || object != tt.wantObject {
				t.Errorf("SplitGCSURI() = %q, %q", bucket, object)
			}
		})
	}
}

func TestLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(recordsArtifact), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	tests := []struct {
		name    string
		opts    LoadOptions
		wantErr bool
	}{
		{"default backend reads artifact", LoadOptions{ModelURI: path}, false},
		{"explicit artifact backend", LoadOptions{Backend: "ARTIFACT", ModelURI: path}, false},
		{"gemini without labels", LoadOptions{Backend: "gemini", GeminiModel: "gemini-2.0-flash"}, true},
		{"unknown backend", LoadOptions{Backend: "onnx", ModelURI: path}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := LoadModel(context.Background(), tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("LoadModel() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && m == nil {
				t.Error("LoadModel() returned nil model")
			}
		})
	}
}
