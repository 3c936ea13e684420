package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/plugdex/pkg/errutils"
)

func TestParsePlugin(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		elements []string
		wantErr  bool
	}{
		{name: "dotted", input: "1.2.3", elements: []string{"1", "2", "3"}},
		{name: "version prefix", input: "Version 2.0", elements: []string{"2", "0"}},
		{name: "v prefix", input: "v2.0.1", elements: []string{"2", "0", "1"}},
		{name: "v dot prefix", input: "V.3", elements: []string{"3"}},
		{name: "rev prefix", input: "rev12", elements: []string{"12"}},
		{name: "letters split digits", input: "2.0beta1", elements: []string{"2", "0", "BETA", "1"}},
		{name: "mixed delimiters", input: "1-2_3 4", elements: []string{"1", "2", "3", "4"}},
		{name: "surrounding whitespace", input: "\t 1.0 \n", elements: []string{"1", "0"}},
		{name: "empty", input: "", wantErr: true},
		{name: "only delimiters", input: "..-", wantErr: true},
		{name: "only prefix", input: "version", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParsePlugin(tt.input, false)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errutils.ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.elements, v.Elements())
			assert.Equal(t, tt.input, v.Original())
		})
	}
}

func TestCompareRules(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0", "1.0.0", -1},
		{"1.0", "1.0.1", -1},
		{"2.0beta", "2.0", -1},
		{"2.0", "2.0-z", -1},
		{"1.0-alpha", "1.0", -1},
		{"1.09", "1.9", -1},
		{"V2.0", "2.0", 0},
		{"V2.0.1", "2.0.1", 0},
		{"1.10", "1.9", 1},
		{"1.0rc1", "1.0beta2", 1},
		{"3.0", "2.99", 1},
		{"1.0.0", "1-0-0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.a+" vs "+tt.b, func(t *testing.T) {
			a := MustParsePlugin(tt.a)
			b := MustParsePlugin(tt.b)
			got, err := a.Compare(b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			reverse, err := b.Compare(a)
			require.NoError(t, err)
			assert.Equal(t, -tt.want, reverse)
		})
	}
}

func TestCompareExperimentalConflict(t *testing.T) {
	stable, err := ParsePlugin("1.0", false)
	require.NoError(t, err)
	experimental, err := ParsePlugin("1.0", true)
	require.NoError(t, err)

	_, err = stable.Compare(experimental)
	assert.ErrorIs(t, err, errutils.ErrInvalidValue)

	// Ordering for sorts ignores the flag.
	assert.Equal(t, 0, Cmp(stable, experimental))
}

func TestOrderingIsStrictWeak(t *testing.T) {
	inputs := []string{
		"0.1", "0.9", "1.0alpha", "1.0beta", "1.0rc1", "1.0", "1.0.0", "1.0.1",
		"1.09", "1.9", "1.10", "2.0trunk", "2.0", "2.0.1", "5", "10.0",
		"18446744073709551615", "300000000000000000000", "300000000000000000000.1",
	}
	versions := make([]Version, 0, len(inputs))
	for _, s := range inputs {
		versions = append(versions, MustParsePlugin(s))
	}

	for i, a := range versions {
		for j, b := range versions {
			relations := 0
			if a.Less(b) {
				relations++
			}
			if a.Equal(b) {
				relations++
			}
			if a.Greater(b) {
				relations++
			}
			assert.Equal(t, 1, relations, "%s vs %s", inputs[i], inputs[j])
		}
	}

	for _, a := range versions {
		for _, b := range versions {
			for _, c := range versions {
				if a.Less(b) && b.Less(c) {
					assert.True(t, a.Less(c), "%s < %s < %s", a.Original(), b.Original(), c.Original())
				}
			}
		}
	}

	// The list above is already ascending.
	for i := 1; i < len(versions); i++ {
		assert.True(t, versions[i-1].Less(versions[i]), "%s < %s", inputs[i-1], inputs[i])
	}
}

func TestParseHost(t *testing.T) {
	fixed, err := ParseHost("3.99.0", true)
	require.NoError(t, err)
	plain, err := ParseHost("4.0.0", false)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(plain))
	assert.Equal(t, "3.99.0", fixed.Original())

	unfixed, err := ParseHost("3.99.0", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "99", "0"}, unfixed.Elements())

	withSuffix, err := ParseHost("3.34.2-Prizren", false)
	require.NoError(t, err)
	assert.Equal(t, "3.34.2", withSuffix.String())

	short, err := ParseHost("3.16", false)
	require.NoError(t, err)
	assert.Equal(t, "3.16.0", short.String())

	shortFixed, err := ParseHost("3.99", true)
	require.NoError(t, err)
	assert.Equal(t, "4.0.0", shortFixed.String())

	_, err = ParseHost("x", false)
	assert.ErrorIs(t, err, errutils.ErrInvalidValue)
}

func TestStable(t *testing.T) {
	assert.True(t, MustParsePlugin("1.2.3").Stable())
	assert.False(t, MustParsePlugin("1.2.3-rc1").Stable())
	assert.False(t, MustParsePlugin("2.0 preview").Stable())
}

func TestOriginalFallbackIsDeterministic(t *testing.T) {
	// Structurally equal versions compare equal regardless of delimiters;
	// the raw-text fallback is only reached for unequal segment lists.
	a := New([]string{"1"}, "1", false)
	b := New([]string{"1"}, "1.", false)
	assert.Equal(t, 0, Cmp(a, b))
	assert.False(t, greaterThan(a, b))
	assert.True(t, greaterThan(b, a))
}
