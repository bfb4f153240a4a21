package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	oggPageDuration  = 20 * time.Millisecond
	opusClockRate    = 48000
	defaultFrameRate = 30
)

// FileSource plays an IVF (VP8) file as video and an Ogg (Opus) file as audio.
// An empty path yields an idle track that never carries samples.
type FileSource struct {
	VideoPath string
	AudioPath string

	log *slog.Logger
}

func NewFileSource(videoPath, audioPath string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{VideoPath: videoPath, AudioPath: audioPath, log: logger}
}

func (s *FileSource) logger() *slog.Logger {
	if s.log == nil {
		return slog.Default()
	}
	return s.log
}

// Acquire opens the capture files, validates their headers and starts pacing
// samples into the tracks until the stream is released.
func (s *FileSource) Acquire(ctx context.Context, c Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "peercall-" + uuid.NewString()
	var (
		tracks  []*Track
		players []func(context.Context)
		files   []*os.File
	)
	closeFiles := func() {
		for _, f := range files {
			f.Close()
		}
	}

	if c.Audio != nil {
		track, err := NewTrack(KindAudio, streamID)
		if err != nil {
			closeFiles()
			return nil, err
		}
		if s.AudioPath != "" {
			f, err := openCapture(s.AudioPath)
			if err != nil {
				closeFiles()
				return nil, err
			}
			files = append(files, f)
			if _, _, err := oggreader.NewWith(f); err != nil {
				closeFiles()
				return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.AudioPath, err)
			}
			players = append(players, func(ctx context.Context) { s.playOgg(ctx, f, track) })
		}
		tracks = append(tracks, track)
	}

	if c.Video != nil {
		track, err := NewTrack(KindVideo, streamID)
		if err != nil {
			closeFiles()
			return nil, err
		}
		if s.VideoPath != "" {
			f, err := openCapture(s.VideoPath)
			if err != nil {
				closeFiles()
				return nil, err
			}
			files = append(files, f)
			if _, _, err := ivfreader.NewWith(f); err != nil {
				closeFiles()
				return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, s.VideoPath, err)
			}
			maxRate := c.Video.FrameRate.Max
			players = append(players, func(ctx context.Context) { s.playIVF(ctx, f, track, maxRate) })
		}
		tracks = append(tracks, track)
	}

	playCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for _, play := range players {
		wg.Add(1)
		go func(play func(context.Context)) {
			defer wg.Done()
			play(playCtx)
		}(play)
	}

	s.logger().Debug("Media acquired", "stream", streamID, "tracks", len(tracks))

	return NewStream(streamID, tracks, func() {
		cancel()
		wg.Wait()
		closeFiles()
	}), nil
}

func (s *FileSource) TracksOf(st *Stream, kind Kind) []*Track {
	if st == nil {
		return nil
	}
	return st.TracksOf(kind)
}

func (s *FileSource) SetEnabled(t *Track, enabled bool) {
	if t != nil {
		t.SetEnabled(enabled)
	}
}

func (s *FileSource) Release(st *Stream) {
	if st != nil {
		st.Stop()
	}
}

func openCapture(path string) (*os.File, error) {
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	default:
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
}

// playIVF writes one frame per tick, rewinding at end of file.
func (s *FileSource) playIVF(ctx context.Context, f *os.File, track *Track, maxRate int) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.logger().Error("Failed to rewind video file", "error", err)
		return
	}
	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		s.logger().Error("Failed to read video header", "error", err)
		return
	}

	interval := frameInterval(header.TimebaseNumerator, header.TimebaseDenominator, maxRate)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return
			}
			if reader, _, err = ivfreader.NewWith(f); err != nil {
				return
			}
			continue
		}
		if err != nil {
			s.logger().Error("Failed to read video frame", "error", err)
			return
		}

		if !track.Enabled() {
			continue
		}
		if err := track.Local().WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
			s.logger().Debug("Failed to write video sample", "error", err)
		}
	}
}

// playOgg writes one Opus page per tick, rewinding at end of file.
func (s *FileSource) playOgg(ctx context.Context, f *os.File, track *Track) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.logger().Error("Failed to rewind audio file", "error", err)
		return
	}
	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		s.logger().Error("Failed to read audio header", "error", err)
		return
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return
			}
			if reader, _, err = oggreader.NewWith(f); err != nil {
				return
			}
			lastGranule = 0
			continue
		}
		if err != nil {
			s.logger().Error("Failed to read audio page", "error", err)
			return
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples) / opusClockRate * float64(time.Second))

		if !track.Enabled() {
			continue
		}
		if err := track.Local().WriteSample(pionmedia.Sample{Data: page, Duration: duration}); err != nil {
			s.logger().Debug("Failed to write audio sample", "error", err)
		}
	}
}

// frameInterval derives the per-frame delay from the IVF timebase, capped so
// playback never exceeds maxRate frames per second.
func frameInterval(num, den uint32, maxRate int) time.Duration {
	interval := time.Second / defaultFrameRate
	if num > 0 && den > 0 {
		interval = time.Duration(float64(num) / float64(den) * float64(time.Second))
	}
	if maxRate > 0 {
		if floor := time.Second / time.Duration(maxRate); interval < floor {
			interval = floor
		}
	}
	return interval
}
