package media

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testImage builds a PNG of the given dimensions.
func testImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x += 10 {
		for y := 0; y < height; y += 10 {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	data, err := EncodePNG(img)
	require.NoError(t, err)
	return data
}

func TestProbe(t *testing.T) {
	data := testImage(t, 320, 200)

	info, err := Probe(data)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, MIMETypePNG, info.MIMEType)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 200, info.Height)
	assert.Equal(t, "320x200", info.Resolution())
}

func TestProbeEmpty(t *testing.T) {
	_, err := Probe(nil)
	assert.Error(t, err)
}

func TestProbeGarbage(t *testing.T) {
	_, err := Probe([]byte("not an image"))
	assert.Error(t, err)
}

func TestScaleForQualityDownscales(t *testing.T) {
	data := testImage(t, 2560, 1440)

	scaled, err := ScaleForQuality(data, "low")
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(scaled))
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 360, cfg.Height)
}

func TestScaleForQualitySkipsSmallImages(t *testing.T) {
	data := testImage(t, 320, 200)

	scaled, err := ScaleForQuality(data, "high")
	require.NoError(t, err)
	assert.Equal(t, data, scaled)
}

func TestScaleForQualityUnknownProfileUsesMedium(t *testing.T) {
	data := testImage(t, 2560, 1440)

	scaled, err := ScaleForQuality(data, "ultra")
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(scaled))
	require.NoError(t, err)
	assert.Equal(t, 1280, cfg.Width)
}
