package debounce_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enftaurus/vidyamitra/internal/debounce"
	"github.com/enftaurus/vidyamitra/pkg/model"
)

func sample(c model.Classification) model.Sample {
	return model.Sample{Classification: c}
}

func TestClassify_SingleNeverConfirms(t *testing.T) {
	d := debounce.New(0, 0)
	for i := 0; i < 50; i++ {
		assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassSingle)))
		multi, none := d.Streaks()
		assert.Zero(t, multi)
		assert.Zero(t, none)
	}
}

func TestClassify_MultiStreakConfirmsOnce(t *testing.T) {
	d := debounce.New(2, 3)

	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassMultiple)))
	assert.Equal(t, model.VerdictConfirmedMulti, d.Classify(sample(model.ClassMultiple)))

	multi, none := d.Streaks()
	assert.Zero(t, multi, "streak resets after confirmation")
	assert.Zero(t, none)

	// The next multiple starts a fresh streak.
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassMultiple)))
}

func TestClassify_NoneStreakInterruptedBySingle(t *testing.T) {
	d := debounce.New(2, 3)

	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassNone)))
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassNone)))
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassSingle)))
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassNone)))
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassNone)))

	_, none := d.Streaks()
	assert.Equal(t, 2, none)
}

func TestClassify_NoneStreakConfirms(t *testing.T) {
	d := debounce.New(2, 3)

	d.Classify(sample(model.ClassNone))
	d.Classify(sample(model.ClassNone))
	assert.Equal(t, model.VerdictConfirmedNone, d.Classify(sample(model.ClassNone)))

	_, none := d.Streaks()
	assert.Zero(t, none)
}

func TestClassify_OppositeAnomalyResetsStreak(t *testing.T) {
	d := debounce.New(2, 3)

	d.Classify(sample(model.ClassNone))
	d.Classify(sample(model.ClassNone))
	// Multiple resets the no-face streak.
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassMultiple)))
	multi, none := d.Streaks()
	assert.Equal(t, 1, multi)
	assert.Zero(t, none)

	// None resets the multi-face streak.
	assert.Equal(t, model.VerdictNone, d.Classify(sample(model.ClassNone)))
	multi, none = d.Streaks()
	assert.Zero(t, multi)
	assert.Equal(t, 1, none)
}

func TestClassify_AlternatingNeverConfirms(t *testing.T) {
	d := debounce.New(2, 2)
	for i := 0; i < 20; i++ {
		c := model.ClassMultiple
		if i%2 == 1 {
			c = model.ClassNone
		}
		assert.Equal(t, model.VerdictNone, d.Classify(sample(c)))
	}
}

func TestClassify_ThresholdOne(t *testing.T) {
	d := debounce.New(1, 1)
	assert.Equal(t, model.VerdictConfirmedMulti, d.Classify(sample(model.ClassMultiple)))
	assert.Equal(t, model.VerdictConfirmedNone, d.Classify(sample(model.ClassNone)))
}

func TestReset(t *testing.T) {
	d := debounce.New(5, 5)
	d.Classify(sample(model.ClassNone))
	d.Reset()
	multi, none := d.Streaks()
	assert.Zero(t, multi)
	assert.Zero(t, none)
}
