package composite

import (
	"fmt"

	"slidecast-server/modules/common/model"
)

// 캔버스 대비 아바타 높이 비율
var sizeRatios = map[model.AvatarSize]float64{
	model.SizeSmall:  0.25,
	model.SizeMedium: 0.50,
	model.SizeLarge:  0.75,
}

// 캔버스 가장자리 여백 비율 (가로는 W 기준, 세로는 H 기준)
const marginRatio = 0.02

// SizeRatio returns the avatar height as a fraction of canvas height.
func SizeRatio(size model.AvatarSize) (float64, error) {
	ratio, ok := sizeRatios[size]
	if !ok {
		return 0, fmt.Errorf("unknown avatar size: %s", size)
	}
	return ratio, nil
}

// OverlayHeight returns the avatar height in pixels for the given canvas.
func OverlayHeight(size model.AvatarSize, canvasHeight int) (int, error) {
	ratio, err := SizeRatio(size)
	if err != nil {
		return 0, err
	}
	h := int(float64(canvasHeight) * ratio)
	// libx264는 홀수 크기를 거부한다
	if h%2 != 0 {
		h--
	}
	return h, nil
}

// OverlayPosition returns ffmpeg overlay filter x/y expressions for the
// given anchor. The expressions use W/H (canvas) and w/h (avatar) so the
// same string works for every avatar size.
func OverlayPosition(position model.AvatarPosition) (x, y string, err error) {
	switch position {
	case model.PositionLeft, model.PositionUpperLeft:
		x = fmt.Sprintf("W*%.2f", marginRatio)
	case model.PositionCenter, model.PositionUpperCenter:
		x = "(W-w)/2"
	case model.PositionRight, model.PositionUpperRight:
		x = fmt.Sprintf("W-w-W*%.2f", marginRatio)
	default:
		return "", "", fmt.Errorf("unknown avatar position: %s", position)
	}

	switch position {
	case model.PositionLeft, model.PositionCenter, model.PositionRight:
		y = fmt.Sprintf("H-h-H*%.2f", marginRatio)
	default:
		y = fmt.Sprintf("H*%.2f", marginRatio)
	}

	return x, y, nil
}
