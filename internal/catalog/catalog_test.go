package catalog

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"models/mobilenetv2-10.onnx": {Data: []byte("a")},
		"models/mobilenetv2-12.onnx": {Data: []byte("b")},
		"models/readme.txt":          {Data: []byte("c")},
		"models/nested/x.onnx":       {Data: []byte("d")},
		"images/husky.jpg":           {Data: []byte("e")},
		"images/landrover.jpg":       {Data: []byte("f")},
		"images/bigmac.png":          {Data: []byte("g")},
	}
}

func TestScanBijection(t *testing.T) {
	set, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)

	assert.Equal(t, 2, set.Models.Len())
	assert.Equal(t, 3, set.Images.Len())

	seen := map[Handle]bool{}
	for _, name := range set.Images.Names() {
		h, err := set.Images.Resolve(name)
		require.NoError(t, err)
		assert.False(t, seen[h], "duplicate handle %d", h)
		seen[h] = true

		back, err := set.Images.Reverse(h)
		require.NoError(t, err)
		assert.Equal(t, name, back)
	}
}

func TestScanAssignsHandlesFromOne(t *testing.T) {
	set, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)

	h, err := set.Models.Resolve("models/mobilenetv2-10.onnx")
	require.NoError(t, err)
	assert.Equal(t, Handle(1), h)

	h, err = set.Models.Resolve("models/mobilenetv2-12.onnx")
	require.NoError(t, err)
	assert.Equal(t, Handle(2), h)

	_, err = set.Models.Reverse(0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveMiss(t *testing.T) {
	set, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)

	_, err = set.Models.Resolve("nonexistent.onnx")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = set.Models.Reverse(99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNormalizesNames(t *testing.T) {
	set, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)

	want, err := set.Images.Resolve("images/husky.jpg")
	require.NoError(t, err)

	for _, name := range []string{"./images/husky.jpg", "husky.jpg", "images//husky.jpg", "/images/husky.jpg"} {
		got, err := set.Images.Resolve(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}
}

func TestScanEmptyRoot(t *testing.T) {
	c, err := Scan(fstest.MapFS{}, ModelsRoot, "*.onnx")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestScanInvalidPattern(t *testing.T) {
	_, err := Scan(testFS(), ModelsRoot, "[")
	assert.Error(t, err)
}

func TestScanIsStable(t *testing.T) {
	first, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)
	second, err := Load(testFS(), DefaultPatterns())
	require.NoError(t, err)

	assert.Equal(t, first.Images.Names(), second.Images.Names())
}

func TestAddIsIdempotent(t *testing.T) {
	c := New(ImagesRoot)
	a := c.Add("images/a.png")
	b := c.Add("a.png")

	assert.Equal(t, a, b)
	assert.Equal(t, 1, c.Len())
}
