package age_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/kioskvoice/internal/age"
	"github.com/MrWong99/kioskvoice/internal/age/mock"
)

func TestIsElderly(t *testing.T) {
	t.Parallel()
	tests := []struct {
		age  int
		want bool
	}{
		{59, false},
		{60, true},
		{61, true},
		{0, false},
	}
	for _, tt := range tests {
		if got := age.IsElderly(tt.age, age.DefaultThreshold); got != tt.want {
			t.Errorf("IsElderly(%d) = %v, want %v", tt.age, got, tt.want)
		}
	}
}

func TestFromScores(t *testing.T) {
	t.Parallel()
	scores := make([]float32, len(age.AdienceBuckets))
	scores[7] = 1
	got, conf, err := age.FromScores(age.AdienceBuckets, scores)
	if err != nil {
		t.Fatalf("FromScores: %v", err)
	}
	if got != 80 || conf != 1 {
		t.Errorf("FromScores = %d, %v, want 80, 1", got, conf)
	}

	scores = make([]float32, len(age.AdienceBuckets))
	scores[4], scores[5] = 0.5, 0.5 // midpoints 28.5 and 40.5
	if got, _, _ := age.FromScores(age.AdienceBuckets, scores); got != 35 {
		t.Errorf("FromScores mixed = %d, want 35", got)
	}

	if _, _, err := age.FromScores(age.AdienceBuckets, []float32{1}); err == nil {
		t.Error("FromScores with wrong length succeeded")
	}
	if _, _, err := age.FromScores(age.AdienceBuckets, make([]float32, 8)); err == nil {
		t.Error("FromScores with zero scores succeeded")
	}
}

func TestService_Analyze(t *testing.T) {
	t.Parallel()
	est := &mock.Estimator{Result: age.Estimate{Age: 67, Detected: true, Confidence: 0.8}}
	cam := &mock.Camera{Frame: []byte("frame")}
	svc := &age.Service{Estimator: est, Camera: cam, Threshold: age.DefaultThreshold}

	got, err := svc.Analyze(context.Background(), nil)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !got.Detected || !got.IsElderly || got.Age != 67 {
		t.Errorf("Analyze = %+v", got)
	}
	if cam.Shots != 1 || string(est.Images[0]) != "frame" {
		t.Errorf("camera shots = %d, image = %q", cam.Shots, est.Images[0])
	}

	if _, err := svc.Analyze(context.Background(), []byte("upload")); err != nil {
		t.Fatalf("Analyze upload: %v", err)
	}
	if cam.Shots != 1 || string(est.Images[1]) != "upload" {
		t.Error("uploaded image was not used")
	}
}

func TestService_NoFace(t *testing.T) {
	t.Parallel()
	svc := &age.Service{Estimator: &mock.Estimator{Err: age.ErrNoFace}, Threshold: 60}
	got, err := svc.Analyze(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got.Detected || got.IsElderly {
		t.Errorf("Analyze = %+v, want not detected", got)
	}
}

func TestService_Errors(t *testing.T) {
	t.Parallel()
	svc := &age.Service{Estimator: &mock.Estimator{}, Threshold: 60}
	if _, err := svc.Analyze(context.Background(), nil); !errors.Is(err, age.ErrNoImage) {
		t.Errorf("err = %v, want ErrNoImage", err)
	}
	svc.Camera = &mock.Camera{Err: errors.New("busy")}
	if _, err := svc.Analyze(context.Background(), nil); err == nil {
		t.Error("camera failure not reported")
	}
}
