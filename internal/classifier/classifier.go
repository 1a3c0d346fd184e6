package classifier

import (
	"context"
	"errors"
)

var (
	ErrStatus   = errors.New("unexpected status")
	ErrTooLarge = errors.New("image too large")
)

// Prediction is the confidence for one output class of the model.
type Prediction struct {
	ClassName   string  `json:"class_name"`
	Probability float64 `json:"probability"`
}

type Predictions []Prediction

// Sum adds up the probabilities of the named classes.
func (p Predictions) Sum(classes map[string]struct{}) float64 {
	var total float64
	for _, pred := range p {
		if _, ok := classes[pred.ClassName]; ok {
			total += pred.Probability
		}
	}
	return total
}

// Classifier scores the image found at url. Implementations must be safe for
// concurrent use.
type Classifier interface {
	Classify(ctx context.Context, url string) (Predictions, error)
}
