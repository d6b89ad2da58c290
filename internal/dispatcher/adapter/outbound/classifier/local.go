package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// ErrArtifactsMissing indicates an incomplete model directory. It is a
// normal, detectable condition: the trust engine degrades to uniform
// weights instead of failing startup.
var ErrArtifactsMissing = errors.New("classifier artifacts missing")

const (
	modelFile   = "model.json"
	scalerFile  = "scaler.json"
	encoderFile = "label_encoder.json"
)

type modelArtifact struct {
	Weights    [][]float64 `json:"weights"` // one row of per-feature weights per class
	Intercepts []float64   `json:"intercepts"`
}

type scalerArtifact struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
}

type encoderArtifact struct {
	Classes []string `json:"classes"`
}

// Local is an artifact-backed fault classifier. A model directory carries
// a linear model, a feature scaler and a label encoder; prediction scales
// the features, scores each class and applies softmax. The trust engine
// only sees the port.Classifier interface and the class:probability output.
type Local struct {
	model   modelArtifact
	scaler  scalerArtifact
	classes []string
}

// NewLocal loads the three artifacts from dir. Any absent artifact yields
// ErrArtifactsMissing.
func NewLocal(dir string) (*Local, error) {
	l := &Local{}

	if err := loadArtifact(dir, modelFile, &l.model); err != nil {
		return nil, err
	}
	if err := loadArtifact(dir, scalerFile, &l.scaler); err != nil {
		return nil, err
	}
	var enc encoderArtifact
	if err := loadArtifact(dir, encoderFile, &enc); err != nil {
		return nil, err
	}
	l.classes = enc.Classes

	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("inconsistent classifier artifacts in %s: %w", dir, err)
	}

	return l, nil
}

func loadArtifact(dir, name string, dest interface{}) error {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrArtifactsMissing, name)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (l *Local) validate() error {
	n := len(l.classes)
	if n == 0 {
		return errors.New("no class labels")
	}
	if len(l.model.Weights) != n {
		return fmt.Errorf("weights for %d classes, %d labels", len(l.model.Weights), n)
	}
	if len(l.model.Intercepts) != n {
		return fmt.Errorf("intercepts for %d classes, %d labels", len(l.model.Intercepts), n)
	}

	features := len(l.scaler.Center)
	if features == 0 || len(l.scaler.Scale) != features {
		return errors.New("scaler center/scale length mismatch")
	}
	for i, row := range l.model.Weights {
		if len(row) != features {
			return fmt.Errorf("class %d weight row has %d features, scaler expects %d", i, len(row), features)
		}
	}
	return nil
}

// Features returns the expected feature-vector arity.
func (l *Local) Features() int {
	return len(l.scaler.Center)
}

// Predict returns a probability per class label for one feature vector.
func (l *Local) Predict(ctx context.Context, features []float64) (map[string]float64, error) {
	if len(features) != l.Features() {
		return nil, fmt.Errorf("expected %d features, got %d", l.Features(), len(features))
	}

	scaled := make([]float64, len(features))
	for i, x := range features {
		s := l.scaler.Scale[i]
		if s == 0 {
			s = 1
		}
		scaled[i] = (x - l.scaler.Center[i]) / s
	}

	scores := make([]float64, len(l.classes))
	maxScore := math.Inf(-1)
	for i, row := range l.model.Weights {
		score := l.model.Intercepts[i]
		for j, w := range row {
			score += w * scaled[j]
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	// Softmax with max subtraction for numeric stability.
	total := 0.0
	for i, score := range scores {
		scores[i] = math.Exp(score - maxScore)
		total += scores[i]
	}

	probs := make(map[string]float64, len(l.classes))
	for i, class := range l.classes {
		probs[class] = scores[i] / total
	}
	return probs, nil
}
