package scope

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sriram-PR/web2text/pkg/utils"
)

func TestNew_ResolvesRules(t *testing.T) {
	tests := []struct {
		name string
		seed string
		rule string
		want string
	}{
		{"root-relative on directory seed", "https://h/x/", "/a", "https://h/a"},
		{"root-relative on file seed", "https://host/x", "/a/b", "https://host/a/b"},
		{"path-relative on directory seed", "https://h/docs/", "api", "https://h/docs/api"},
		{"path-relative on file seed", "https://h/docs/intro", "api", "https://h/docs/api"},
		{"parent-relative", "https://h/docs/guide/", "../blog", "https://h/docs/blog"},
		{"absolute other host", "https://h/", "https://other/a", "https://other/a"},
		{"already under seed kept verbatim", "https://h/docs/", "https://h/docs/old", "https://h/docs/old"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.seed, []string{tt.rule}, []string{tt.rule})
			require.NoError(t, err)
			assert.Equal(t, []string{tt.want}, f.AvoidRules())
			assert.Equal(t, []string{tt.want}, f.FocusRules())

			// Matches direct resolution with net/url
			base, _ := url.Parse(tt.seed)
			ref, _ := url.Parse(tt.rule)
			assert.Equal(t, base.ResolveReference(ref).String(), f.AvoidRules()[0])
		})
	}
}

func TestNew_Errors(t *testing.T) {
	_, err := New("https://h/", []string{"http://[::1"}, nil)
	assert.ErrorIs(t, err, utils.ErrConfig)

	_, err = New("https://h/", nil, []string{"%zz"})
	assert.ErrorIs(t, err, utils.ErrConfig)

	_, err = New("/relative/seed", nil, nil)
	assert.ErrorIs(t, err, utils.ErrConfig)

	_, err = New("://bad", nil, nil)
	assert.ErrorIs(t, err, utils.ErrConfig)
}

func TestSkip_PrefixSemantics(t *testing.T) {
	f, err := New("https://h/", []string{"/a", "https://h/private/"}, nil)
	require.NoError(t, err)

	assert.True(t, f.Skip("https://h/a"))
	assert.True(t, f.Skip("https://h/ab"), "prefix match is not path-segment aware")
	assert.True(t, f.Skip("https://h/a/b/c"))
	assert.True(t, f.Skip("https://h/private/x"))
	assert.False(t, f.Skip("https://h/private"), "trailing separator gives path-boundary precision")
	assert.False(t, f.Skip("https://h/b"))
	assert.False(t, f.Skip("https://other/a"))
}

func TestSkip_NoRules(t *testing.T) {
	f, err := New("https://h/", nil, nil)
	require.NoError(t, err)
	assert.False(t, f.Skip("https://h/anything"))
}

func TestFocus(t *testing.T) {
	t.Run("empty focus list passes everything", func(t *testing.T) {
		f, err := New("https://h/", []string{"/a"}, nil)
		require.NoError(t, err)
		for _, u := range []string{"https://h/", "https://h/a", "https://x/y"} {
			assert.True(t, f.Focus(u), u)
		}
	})

	t.Run("non-empty focus list", func(t *testing.T) {
		f, err := New("https://h/", nil, []string{"/docs/", "/api"})
		require.NoError(t, err)
		assert.True(t, f.Focus("https://h/docs/intro"))
		assert.True(t, f.Focus("https://h/apiv2"))
		assert.False(t, f.Focus("https://h/docs"))
		assert.False(t, f.Focus("https://h/blog/post"))
	})

	t.Run("independent of skip", func(t *testing.T) {
		f, err := New("https://h/", []string{"/docs/old"}, []string{"/docs/"})
		require.NoError(t, err)
		assert.True(t, f.Skip("https://h/docs/old/page"))
		assert.True(t, f.Focus("https://h/docs/old/page"))
	})
}

func TestFilter_PreservesOrder(t *testing.T) {
	f, err := New("https://h/", []string{"/a"}, nil)
	require.NoError(t, err)

	in := []string{"https://h/z", "https://h/ab", "https://h/c", "https://h/a/1", "https://h/b"}
	out := f.Filter(in)
	assert.Equal(t, []string{"https://h/z", "https://h/c", "https://h/b"}, out)

	for _, u := range in {
		assert.Equal(t, !f.Skip(u), contains(out, u), u)
	}
	assert.Empty(t, f.Filter(nil))
}

func TestAccessorsReturnCopies(t *testing.T) {
	f, err := New("https://h/", []string{"/a"}, []string{"/b"})
	require.NoError(t, err)

	avoid := f.AvoidRules()
	avoid[0] = "mutated"
	assert.Equal(t, []string{"https://h/a"}, f.AvoidRules())
	assert.Equal(t, "https://h/", f.Seed())
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
