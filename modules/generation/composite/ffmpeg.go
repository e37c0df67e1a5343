package composite

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"slidecast-server/modules/common/config"
	"slidecast-server/modules/common/model"
)

// 최종 비디오 캔버스 (16:9 고정)
const (
	canvasWidth  = 1920
	canvasHeight = 1080
)

// Compositor runs ffmpeg to turn a slide image plus an avatar clip
// into one narrated slide segment, and to concatenate segments.
type Compositor struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
}

func NewCompositor() *Compositor {
	cfg := config.GetConfig()
	return &Compositor{
		ffmpegPath:  cfg.FFmpegPath,
		ffprobePath: cfg.FFprobePath,
		workDir:     cfg.WorkDir,
	}
}

// WorkDir returns the scratch directory for intermediate files.
func (c *Compositor) WorkDir() string {
	return c.workDir
}

// BuildCompositeArgs builds the ffmpeg argument list for one slide
// segment. Kept separate from execution so the filter graph can be
// unit tested.
//
// Timeline: pause_before seconds of still slide, then the narration
// clip, then pause_after seconds of still slide. With show_avatar the
// clip video is overlaid during narration; without it only the clip
// audio is used.
func BuildCompositeArgs(slideImagePath, clipPath, outputPath string, avatarCfg model.AvatarConfig, clipDuration float64) ([]string, error) {
	pauseBefore := float64(avatarCfg.PauseBeforeSeconds)
	pauseAfter := float64(avatarCfg.PauseAfterSeconds)
	total := pauseBefore + clipDuration + pauseAfter

	filters := []string{
		fmt.Sprintf("[0:v]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=white[bg]",
			canvasWidth, canvasHeight, canvasWidth, canvasHeight),
	}

	videoOut := "[bg]"
	if avatarCfg.ShowAvatar {
		overlayHeight, err := OverlayHeight(avatarCfg.Size, canvasHeight)
		if err != nil {
			return nil, err
		}
		x, y, err := OverlayPosition(avatarCfg.Position)
		if err != nil {
			return nil, err
		}
		filters = append(filters,
			fmt.Sprintf("[1:v]scale=-2:%d[av]", overlayHeight),
			fmt.Sprintf("[bg][av]overlay=x=%s:y=%s:enable='between(t,%s,%s)'[vout]",
				x, y, formatSeconds(pauseBefore), formatSeconds(pauseBefore+clipDuration)),
		)
		videoOut = "[vout]"
	}

	// 나레이션 오디오: pause_before 만큼 지연, pause_after 만큼 무음 패딩
	delayMs := int(pauseBefore * 1000)
	filters = append(filters,
		fmt.Sprintf("[1:a]adelay=%d|%d,apad=pad_dur=%s[aout]", delayMs, delayMs, formatSeconds(pauseAfter)),
	)

	args := []string{
		"-y",
		"-loop", "1", "-framerate", "30", "-i", slideImagePath,
		"-i", clipPath,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", videoOut,
		"-map", "[aout]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-t", formatSeconds(total),
		outputPath,
	}
	return args, nil
}

// Composite renders one slide segment to outputPath.
func (c *Compositor) Composite(ctx context.Context, slideImagePath, clipPath, outputPath string, avatarCfg model.AvatarConfig, clipDuration float64) error {
	args, err := BuildCompositeArgs(slideImagePath, clipPath, outputPath, avatarCfg, clipDuration)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Printf("❌ ffmpeg composite failed: %v", err)
		return fmt.Errorf("ffmpeg composite failed: %w (%s)", err, tail(output))
	}
	return nil
}

// Concat joins rendered segments in slide order using the concat
// demuxer. Inputs must already be in final slide order.
func (c *Compositor) Concat(ctx context.Context, segmentPaths []string, outputPath string) error {
	if len(segmentPaths) == 0 {
		return fmt.Errorf("no segments to concatenate")
	}

	listFile, err := os.CreateTemp(c.workDir, "concat-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}
	defer os.Remove(listFile.Name())

	for _, p := range segmentPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			listFile.Close()
			return fmt.Errorf("failed to resolve segment path: %w", err)
		}
		fmt.Fprintf(listFile, "file '%s'\n", abs)
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat", "-safe", "0",
		"-i", listFile.Name(),
		"-c", "copy",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		log.Printf("❌ ffmpeg concat failed: %v", err)
		return fmt.Errorf("ffmpeg concat failed: %w (%s)", err, tail(output))
	}
	return nil
}

// ProbeDuration returns the duration of a media file in seconds.
func (c *Compositor) ProbeDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output %q: %w", strings.TrimSpace(string(output)), err)
	}
	return duration, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// ffmpeg는 실패 시 로그를 수백 줄 쏟아낸다
func tail(output []byte) string {
	const keep = 400
	s := strings.TrimSpace(string(output))
	if len(s) <= keep {
		return s
	}
	return "..." + s[len(s)-keep:]
}
