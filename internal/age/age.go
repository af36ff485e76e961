// Package age estimates a customer's age from a camera frame and decides
// whether the kiosk should switch to its senior-friendly flow.
package age

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// DefaultThreshold is the youngest age treated as elderly.
const DefaultThreshold = 60

var (
	// ErrNoImage means neither an uploaded image nor a camera was available.
	ErrNoImage = errors.New("age: no image")

	// ErrNoFace is returned by estimators that require a face and found
	// none. [Service.Analyze] reports it as Detected=false instead.
	ErrNoFace = errors.New("age: no face detected")
)

// Estimate is the outcome of one estimation.
type Estimate struct {
	Age        int
	Detected   bool
	Confidence float64
}

// Estimator estimates the age of the most prominent face in an encoded
// image (JPEG or PNG).
type Estimator interface {
	EstimateAge(ctx context.Context, image []byte) (Estimate, error)
}

// Camera grabs one encoded frame.
type Camera interface {
	Snapshot(ctx context.Context) ([]byte, error)
}

// IsElderly reports whether age is at or above threshold.
func IsElderly(age, threshold int) bool { return age >= threshold }

// Result is what the face-recognition endpoint returns.
type Result struct {
	Age       int     `json:"age"`
	IsElderly bool    `json:"is_elderly"`
	Detected  bool    `json:"detected"`
	Score     float64 `json:"confidence"`
}

// Service combines an estimator, an optional camera and the age threshold.
type Service struct {
	Estimator Estimator
	Camera    Camera
	Threshold int
}

// Analyze estimates the age in img, or in a fresh camera frame when img is
// empty. A frame without a face yields Detected=false and a nil error.
func (s *Service) Analyze(ctx context.Context, img []byte) (Result, error) {
	if len(img) == 0 {
		if s.Camera == nil {
			return Result{}, ErrNoImage
		}
		frame, err := s.Camera.Snapshot(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("age: snapshot: %w", err)
		}
		img = frame
	}
	est, err := s.Estimator.EstimateAge(ctx, img)
	if errors.Is(err, ErrNoFace) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("age: estimate: %w", err)
	}
	if !est.Detected {
		return Result{}, nil
	}
	return Result{
		Age:       est.Age,
		IsElderly: IsElderly(est.Age, s.Threshold),
		Detected:  true,
		Score:     est.Confidence,
	}, nil
}

// Bucket is one class of a bucketed age classifier.
type Bucket struct {
	Low, High int
}

// Mid returns the bucket midpoint.
func (b Bucket) Mid() float64 { return float64(b.Low+b.High) / 2 }

// AdienceBuckets are the eight classes of the Adience age network.
var AdienceBuckets = []Bucket{
	{0, 2}, {4, 6}, {8, 12}, {15, 20}, {25, 32}, {38, 43}, {48, 53}, {60, 100},
}

// FromScores turns classifier scores into an age: the probability-weighted
// mean of the bucket midpoints, rounded. The confidence is the top
// probability. Scores are normalized; negative scores count as zero.
func FromScores(buckets []Bucket, scores []float32) (age int, confidence float64, err error) {
	if len(scores) != len(buckets) {
		return 0, 0, fmt.Errorf("age: %d scores for %d buckets", len(scores), len(buckets))
	}
	var sum, best float64
	for _, s := range scores {
		if s > 0 {
			sum += float64(s)
		}
	}
	if sum == 0 {
		return 0, 0, errors.New("age: all scores are zero")
	}
	var mean float64
	for i, s := range scores {
		if s <= 0 {
			continue
		}
		p := float64(s) / sum
		mean += p * buckets[i].Mid()
		best = max(best, p)
	}
	return int(math.Round(mean)), best, nil
}
