package composite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast-server/modules/common/model"
)

func filterGraph(t *testing.T, args []string) string {
	t.Helper()
	for i, a := range args {
		if a == "-filter_complex" {
			require.Less(t, i+1, len(args))
			return args[i+1]
		}
	}
	t.Fatal("no -filter_complex in args")
	return ""
}

func argValue(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildCompositeArgsWithAvatar(t *testing.T) {
	cfg := model.AvatarConfig{
		ShowAvatar:         true,
		Persona:            model.PersonaEmma,
		Position:           model.PositionRight,
		Size:               model.SizeMedium,
		PauseBeforeSeconds: 1,
		PauseAfterSeconds:  2,
	}

	args, err := BuildCompositeArgs("slide.png", "clip.mp4", "out.mp4", cfg, 10.5)
	require.NoError(t, err)

	graph := filterGraph(t, args)
	assert.Contains(t, graph, "scale=1920:1080", "slide must be fitted to the canvas")
	assert.Contains(t, graph, "scale=-2:540", "medium avatar is half the canvas height")
	assert.Contains(t, graph, "overlay=x=W-w-W*0.02:y=H-h-H*0.02")
	assert.Contains(t, graph, "between(t,1.000,11.500)", "avatar visible only during narration")
	assert.Contains(t, graph, "adelay=1000|1000", "narration delayed by pause_before")
	assert.Contains(t, graph, "apad=pad_dur=2.000", "silence padded for pause_after")

	assert.Equal(t, "13.500", argValue(args, "-t"), "total = pause_before + clip + pause_after")
	assert.Equal(t, "[vout]", argValue(args, "-map"))
	assert.Equal(t, "out.mp4", args[len(args)-1])
}

func TestBuildCompositeArgsWithoutAvatar(t *testing.T) {
	cfg := model.AvatarConfig{ShowAvatar: false}

	args, err := BuildCompositeArgs("slide.png", "clip.mp4", "out.mp4", cfg, 8)
	require.NoError(t, err)

	graph := filterGraph(t, args)
	assert.NotContains(t, graph, "overlay", "hidden avatar must not be overlaid")
	assert.Contains(t, graph, "adelay=0|0")

	// 오디오는 여전히 나레이션 클립에서 온다
	assert.Equal(t, "[bg]", argValue(args, "-map"))
	assert.Equal(t, "8.000", argValue(args, "-t"))
}

func TestBuildCompositeArgsRejectsUnknownEnums(t *testing.T) {
	cfg := model.AvatarConfig{
		ShowAvatar: true,
		Position:   model.AvatarPosition("floating"),
		Size:       model.SizeSmall,
	}
	_, err := BuildCompositeArgs("slide.png", "clip.mp4", "out.mp4", cfg, 5)
	assert.Error(t, err)

	cfg = model.AvatarConfig{
		ShowAvatar: true,
		Position:   model.PositionLeft,
		Size:       model.AvatarSize("giant"),
	}
	_, err = BuildCompositeArgs("slide.png", "clip.mp4", "out.mp4", cfg, 5)
	assert.Error(t, err)
}
