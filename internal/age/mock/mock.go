// Package mock provides test doubles for age.Estimator and age.Camera.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/kioskvoice/internal/age"
)

var (
	_ age.Estimator = (*Estimator)(nil)
	_ age.Camera    = (*Camera)(nil)
)

// Estimator returns a fixed estimate and records the images it was given.
type Estimator struct {
	mu sync.Mutex

	Result age.Estimate
	Err    error

	Images [][]byte
}

// EstimateAge implements age.Estimator.
func (e *Estimator) EstimateAge(_ context.Context, img []byte) (age.Estimate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Images = append(e.Images, img)
	return e.Result, e.Err
}

// Calls returns the number of EstimateAge calls.
func (e *Estimator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Images)
}

// Camera returns Frame from every Snapshot.
type Camera struct {
	mu sync.Mutex

	Frame []byte
	Err   error
	Shots int
}

// Snapshot implements age.Camera.
func (c *Camera) Snapshot(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Shots++
	return c.Frame, c.Err
}
