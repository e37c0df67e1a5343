package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast-server/modules/common/model"
)

func TestSizeRatio(t *testing.T) {
	tests := []struct {
		size model.AvatarSize
		want float64
	}{
		{model.SizeSmall, 0.25},
		{model.SizeMedium, 0.50},
		{model.SizeLarge, 0.75},
	}

	for _, tt := range tests {
		t.Run(string(tt.size), func(t *testing.T) {
			got, err := SizeRatio(tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := SizeRatio(model.AvatarSize("huge"))
	assert.Error(t, err)
}

func TestOverlayHeight(t *testing.T) {
	tests := []struct {
		size    model.AvatarSize
		canvasH int
		want    int
	}{
		{model.SizeSmall, 1080, 270},
		{model.SizeMedium, 1080, 540},
		{model.SizeLarge, 1080, 810},
	}

	for _, tt := range tests {
		got, err := OverlayHeight(tt.size, tt.canvasH)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
		assert.Zero(t, got%2, "overlay height must be even")
	}

	// 홀수가 나오는 캔버스에서는 내림 처리
	odd, err := OverlayHeight(model.SizeSmall, 1078) // 269.5 → 269 → 268
	require.NoError(t, err)
	assert.Equal(t, 268, odd)
}

func TestOverlayPosition(t *testing.T) {
	tests := []struct {
		position model.AvatarPosition
		wantX    string
		wantY    string
	}{
		{model.PositionLeft, "W*0.02", "H-h-H*0.02"},
		{model.PositionCenter, "(W-w)/2", "H-h-H*0.02"},
		{model.PositionRight, "W-w-W*0.02", "H-h-H*0.02"},
		{model.PositionUpperLeft, "W*0.02", "H*0.02"},
		{model.PositionUpperCenter, "(W-w)/2", "H*0.02"},
		{model.PositionUpperRight, "W-w-W*0.02", "H*0.02"},
	}

	for _, tt := range tests {
		t.Run(string(tt.position), func(t *testing.T) {
			x, y, err := OverlayPosition(tt.position)
			require.NoError(t, err)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wantY, y)
		})
	}

	_, _, err := OverlayPosition(model.AvatarPosition("middle"))
	assert.Error(t, err)
}
