package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlateauHalvesAfterPatience(t *testing.T) {
	p := NewPlateau(0.5, 2, 0.0001)
	lr := 0.001
	for _, loss := range []float64{0.5, 0.49} {
		lr = p.Step(loss, lr)
		assert.Equal(t, 0.001, lr)
	}
	// Two stalled observations in a row trigger the decay on the second one.
	lr = p.Step(0.49, lr)
	assert.Equal(t, 0.001, lr)
	lr = p.Step(0.49, lr)
	assert.Equal(t, 0.0005, lr)
}

func TestPlateauImprovementResetsWait(t *testing.T) {
	p := NewPlateau(0.5, 2, 0.0001)
	lr := 0.001
	lr = p.Step(0.5, lr)
	lr = p.Step(0.5, lr) // wait=1
	lr = p.Step(0.4, lr) // improvement, wait back to 0
	lr = p.Step(0.4, lr) // wait=1
	assert.Equal(t, 0.001, lr)
	lr = p.Step(0.4, lr) // wait=2, decay
	assert.Equal(t, 0.0005, lr)
}

func TestPlateauRespectsFloor(t *testing.T) {
	p := NewPlateau(0.5, 1, 0.0001)
	lr := 0.00015
	lr = p.Step(0.5, lr)
	lr = p.Step(0.5, lr)
	assert.Equal(t, 0.0001, lr)
	lr = p.Step(0.5, lr)
	assert.Equal(t, 0.0001, lr, "learning rate never goes below the floor")
}
