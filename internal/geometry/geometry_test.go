package geometry

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScaleFactor_HandComputed(t *testing.T) {
	t.Parallel()

	got, err := ScaleFactor(15, 50, 80, 12.3)
	require.NoError(t, err)

	src := (15 / 12.3) * (15 / 12.3)
	bkg := (80/12.3)*(80/12.3) - (50/12.3)*(50/12.3)
	want := src / bkg
	assert.InEpsilon(t, want, got, 1e-6)
	// 225 / 3900 independent of pixel scale
	assert.InEpsilon(t, 0.0576923, got, 1e-6)
}

func TestAreas(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, math.Pi, CircleArea(12.3, 12.3), 1e-12)
	assert.InDelta(t, 3*math.Pi, AnnulusArea(12.3, 24.6, 12.3), 1e-12)
	assert.InDelta(t, math.Pi*4, AnnulusArea(0, 24.6, 12.3), 1e-12)
}

func TestScaleFactor_Invalid(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		src, in, out, ps float64
	}{
		{"zero source", 0, 50, 80, PixelScale},
		{"negative source", -5, 50, 80, PixelScale},
		{"outer equals inner", 15, 50, 50, PixelScale},
		{"outer below inner", 15, 80, 50, PixelScale},
		{"negative inner", 15, -1, 80, PixelScale},
		{"nan radius", math.NaN(), 50, 80, PixelScale},
		{"zero pixel scale", 15, 50, 80, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ScaleFactor(tc.src, tc.in, tc.out, tc.ps)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidGeometry))
		})
	}
}

func TestScaleFactor_ZeroInnerRadius(t *testing.T) {
	t.Parallel()

	got, err := ScaleFactor(20, 0, 40, PixelScale)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, got, 1e-12)
}

func TestKey_Canonical(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  Key
		want string
	}{
		{Key{15, 50, 80, 0.005}, "src015_bkg050-080_bin0.005"},
		{Key{15, 50, 80, 0.1}, "src015_bkg050-080_bin0.1"},
		{Key{120, 150, 300, 1}, "src120_bkg150-300_bin1"},
		{Key{5, 0, 999, 100.5}, "src005_bkg000-999_bin100.5"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.key.Canonical())
		assert.Equal(t, tt.want, tt.key.String())
	}
	assert.Equal(t, "src15_bkg50-80", Key{15, 50, 80, 0.1}.Region())
}

func TestParseKey_RoundTrip(t *testing.T) {
	t.Parallel()

	radii := []int{1, 9, 10, 15, 99, 100, 500, 999}
	bins := []float64{0.001, 0.005, 0.01, 0.1, 0.5, 1, 2.5, 10, 100}

	seen := make(map[string]Key)
	for _, src := range radii {
		for _, in := range append([]int{0}, radii...) {
			for _, out := range radii {
				if out <= in {
					continue
				}
				for _, bin := range bins {
					k, err := NewKey(src, in, out, bin)
					require.NoError(t, err)
					s := k.Canonical()
					if prev, dup := seen[s]; dup {
						t.Fatalf("canonical collision: %v and %v both map to %q", prev, k, s)
					}
					seen[s] = k

					back, err := ParseKey(s)
					require.NoError(t, err, s)
					require.Equal(t, k, back)
				}
			}
		}
	}
}

func TestParseKey_Rejects(t *testing.T) {
	t.Parallel()

	bad := []string{
		"",
		"src15_bkg050-080_bin0.1",    // unpadded radius
		"src015_bkg050-080_bin0.10",  // non-canonical bin
		"src015_bkg080-050_bin0.1",   // inverted annulus
		"src000_bkg050-080_bin0.1",   // zero source
		"src015_bkg050_080_bin0.1",   // bad separator
		"src015_bkg050-080_bin0",     // zero bin
		"src015_bkg050-080_binabc",   // non-numeric bin
		"A_src015_bkg050-080_bin0.1", // detector prefix belongs to pairing
		"src01x_bkg050-080_bin0.1",   // non-numeric radius
		"src015_bkg050-080",          // no bin
		"src1000_bkg050-080_bin0.1",  // four digits
		"src015_bkg050-080_bin-0.1",  // negative bin
		"src015_bkg050-080_bin+0.1",  // sign
		"src015_bkg050-080_bin1e-3",  // exponent
		"src015_bkg050-080_binNaN",   // nan
		"src015_bkg050-080_bin0.1_x", // trailing junk
	}
	for _, s := range bad {
		_, err := ParseKey(s)
		assert.Truef(t, errors.Is(err, ErrInvalidGeometry), "ParseKey(%q) err=%v", s, err)
	}
}

func TestNewKey_Ranges(t *testing.T) {
	t.Parallel()

	_, err := NewKey(1000, 50, 80, 0.1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewKey(15, 50, 1000, 0.1)
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = NewKey(15, 50, 80, math.Inf(1))
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	k, err := NewKey(15, 50, 80, 0.1)
	require.NoError(t, err)
	sf, err := k.ScaleFactor(PixelScale)
	require.NoError(t, err)
	assert.InEpsilon(t, 225.0/3900.0, sf, 1e-12)
}
