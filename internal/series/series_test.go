package series

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-12)

func TestCombineAdd_DetectorMerge(t *testing.T) {
	t.Parallel()

	a := New(Sample{0, 1.0, 0.1})
	b := New(Sample{0, 2.0, 0.2})

	got, err := CombineAdd(a, b, 1, 1)
	require.NoError(t, err)

	want := New(Sample{0, 3.0, math.Sqrt(0.1*0.1 + 0.2*0.2)})
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("CombineAdd mismatch (-want +got):\n%s", diff)
	}
}

func TestCombineAdd_Coefficients(t *testing.T) {
	t.Parallel()

	a := New(Sample{10, 4, 0.4}, Sample{10.5, 6, 0.6})
	b := New(Sample{10, 1, 0.3}, Sample{10.5, 2, 0.1})

	got, err := CombineAdd(a, b, 0.5, 2)
	require.NoError(t, err)

	want := New(
		Sample{10, 0.5*4 + 2*1, math.Sqrt(0.2*0.2 + 0.6*0.6)},
		Sample{10.5, 0.5*6 + 2*2, math.Sqrt(0.3*0.3 + 0.2*0.2)},
	)
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("CombineAdd mismatch (-want +got):\n%s", diff)
	}
}

func TestCombineSubtract(t *testing.T) {
	t.Parallel()

	src := New(Sample{0, 5.0, 0.2})
	bkg := New(Sample{0, 1.0, 0.1})

	got, err := CombineSubtract(src, bkg, 0.5)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.InDelta(t, 4.5, got.Samples[0].Rate, 1e-12)
	assert.InDelta(t, math.Sqrt(0.2*0.2+(0.5*0.1)*(0.5*0.1)), got.Samples[0].Error, 1e-12)
	assert.InDelta(t, 0.206, got.Samples[0].Error, 1e-3)
}

func TestCombine_Misaligned(t *testing.T) {
	t.Parallel()

	two := New(Sample{0, 1, 0.1}, Sample{1, 1, 0.1})
	one := New(Sample{0, 1, 0.1})
	shifted := New(Sample{0, 1, 0.1}, Sample{1.001, 1, 0.1})
	jitter := New(Sample{0, 1, 0.1}, Sample{1 + TimeTolerance/2, 1, 0.1})

	_, err := CombineAdd(two, one, 1, 1)
	assert.True(t, errors.Is(err, ErrMisalignedSeries))
	_, err = CombineSubtract(one, two, 0.5)
	assert.True(t, errors.Is(err, ErrMisalignedSeries))
	_, err = CombineAdd(two, shifted, 1, 1)
	assert.True(t, errors.Is(err, ErrMisalignedSeries))

	got, err := CombineAdd(two, jitter, 1, 1)
	require.NoError(t, err, "differences inside the tolerance are aligned")
	assert.Equal(t, 1.0, got.Samples[1].Time, "times come from the first input")
}

func TestCombine_DoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	a := New(Sample{0, 1, 0.1}, Sample{1, 2, 0.2})
	b := New(Sample{0, 3, 0.3}, Sample{1, 4, 0.4})
	aCopy, bCopy := New(a.Samples...), New(b.Samples...)

	sum, err := CombineAdd(a, b, 1, 1)
	require.NoError(t, err)
	diff, err := CombineSubtract(a, b, 0.25)
	require.NoError(t, err)

	sum.Samples[0].Rate = 99
	diff.Samples[1].Rate = -99

	assert.Equal(t, aCopy, a)
	assert.Equal(t, bCopy, b)
}

func TestCombine_Empty(t *testing.T) {
	t.Parallel()

	got, err := CombineAdd(New(), New(), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	var nilSeries *RateSeries
	_, err = CombineSubtract(nilSeries, New(), 1)
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, New(Sample{Time: 0}, Sample{Time: 0.1}).Validate())
	assert.ErrorIs(t, New(Sample{Time: 1}, Sample{Time: 1}).Validate(), ErrUnordered)
	assert.ErrorIs(t, New(Sample{Time: 2}, Sample{Time: 1}).Validate(), ErrUnordered)
}

func TestCombine_EmptyBinPropagates(t *testing.T) {
	t.Parallel()

	a := New(Sample{0, 1, 0.1}, Sample{0.1, math.NaN(), math.NaN()}, Sample{0.2, 1, 0.1})
	b := New(Sample{0, 2, 0.2}, Sample{0.1, 2, 0.2}, Sample{0.2, 2, 0.2})

	sum, err := CombineAdd(a, b, 1, 1)
	require.NoError(t, err, "an empty bin is not a misalignment")
	require.Equal(t, 3, sum.Len())
	assert.Equal(t, 3.0, sum.Samples[0].Rate)
	assert.True(t, math.IsNaN(sum.Samples[1].Rate))
	assert.True(t, math.IsNaN(sum.Samples[1].Error))
	assert.Equal(t, 0.1, sum.Samples[1].Time)

	final, err := CombineSubtract(sum, b, 0.5)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(final.Samples[1].Rate))
	assert.InDelta(t, 2.0, final.Samples[2].Rate, 1e-12)
}
