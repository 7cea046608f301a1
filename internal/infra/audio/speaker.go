package audio

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/mediad/internal/app/playback"
	"github.com/osa030/mediad/internal/domain/track"
)

// ErrUnsupportedSource is returned for sources the speaker cannot decode.
var ErrUnsupportedSource = errors.New("unsupported source")

// SpeakerConfig holds speaker backend configuration.
type SpeakerConfig struct {
	SampleRate int           // Output sample rate
	Buffer     time.Duration // Speaker buffer length
}

// Speaker renders local audio files through the default output device.
type Speaker struct {
	mu         sync.Mutex
	config     SpeakerConfig
	sampleRate beep.SampleRate
	listener   playback.BackendListener

	initOnce sync.Once
	initErr  error

	current  track.Track
	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	gen      uint64
}

// NewSpeaker creates a speaker backend. The output device is opened on the
// first Play.
func NewSpeaker(config SpeakerConfig) *Speaker {
	if config.SampleRate <= 0 {
		config.SampleRate = 44100
	}
	if config.Buffer <= 0 {
		config.Buffer = 100 * time.Millisecond
	}
	return &Speaker{
		config:     config,
		sampleRate: beep.SampleRate(config.SampleRate),
	}
}

// SetListener implements playback.Backend.
func (s *Speaker) SetListener(l playback.BackendListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

// Play decodes t and starts rendering at position. Resuming the loaded track
// only seeks and unpauses.
func (s *Speaker) Play(t track.Track, position time.Duration, done func(error)) {
	if err := checkPlayable(t); err != nil {
		done(err)
		return
	}

	go func() {
		done(s.play(t, position))
	}()
}

func (s *Speaker) play(t track.Track, position time.Duration) error {
	if err := s.init(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctrl != nil && s.current.ID == t.ID {
		speaker.Lock()
		err := s.streamer.Seek(s.format.SampleRate.N(position))
		s.ctrl.Paused = false
		speaker.Unlock()
		return errors.Wrap(err, "failed to seek")
	}

	s.unloadLocked()

	f, streamer, format, err := decode(t.Source)
	if err != nil {
		return err
	}
	if position > 0 {
		if err := streamer.Seek(format.SampleRate.N(position)); err != nil {
			_ = streamer.Close()
			_ = f.Close()
			return errors.Wrap(err, "failed to seek")
		}
	}

	s.gen++
	gen := s.gen
	s.current = t
	s.file = f
	s.streamer = streamer
	s.format = format
	s.ctrl = &beep.Ctrl{Streamer: streamer}

	var out beep.Streamer = s.ctrl
	if format.SampleRate != s.sampleRate {
		out = beep.Resample(4, format.SampleRate, s.sampleRate, s.ctrl)
	}

	zlog.Debug().Msgf("speaker: playing: id=%s source=%s rate=%d", t.ID, t.Source, format.SampleRate)
	speaker.Play(beep.Seq(out, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker lock held.
		go s.onFinished(gen)
	})))
	return nil
}

func (s *Speaker) init() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(s.sampleRate, s.sampleRate.N(s.config.Buffer))
		if s.initErr != nil {
			s.initErr = errors.Wrap(s.initErr, "failed to open audio output")
		}
	})
	return s.initErr
}

// Pause pauses rendering.
func (s *Speaker) Pause(done func(error)) {
	s.mu.Lock()
	if s.ctrl != nil {
		speaker.Lock()
		s.ctrl.Paused = true
		speaker.Unlock()
	}
	s.mu.Unlock()
	done(nil)
}

// Stop clears the output and closes the loaded file.
func (s *Speaker) Stop(done func(error)) {
	s.mu.Lock()
	s.unloadLocked()
	s.mu.Unlock()
	done(nil)
}

// Seek moves the position of the loaded track.
func (s *Speaker) Seek(position time.Duration, done func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.streamer == nil {
		done(errors.New("no track loaded"))
		return
	}
	speaker.Lock()
	n := min(s.format.SampleRate.N(position), s.streamer.Len())
	err := s.streamer.Seek(max(n, 0))
	speaker.Unlock()
	done(errors.Wrap(err, "failed to seek"))
}

// IsPlaying implements playback.Backend.
func (s *Speaker) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctrl == nil {
		return false
	}
	speaker.Lock()
	defer speaker.Unlock()
	return !s.ctrl.Paused
}

// Position implements playback.Backend.
func (s *Speaker) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamer == nil {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return s.format.SampleRate.D(s.streamer.Position())
}

func (s *Speaker) onFinished(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.ctrl == nil {
		s.mu.Unlock()
		return
	}
	ended := s.current
	listener := s.listener
	s.unloadLocked()
	s.mu.Unlock()

	if err := listenerErr(ended); err != nil && listener != nil {
		listener.OnError(err)
		return
	}
	if listener != nil {
		listener.OnCompletion(ended)
	}
}

func (s *Speaker) unloadLocked() {
	if s.ctrl == nil && s.streamer == nil {
		return
	}
	speaker.Clear()
	s.gen++
	if s.streamer != nil {
		if err := s.streamer.Err(); err != nil {
			zlog.Warn().Msgf("speaker: stream error: id=%s error=%v", s.current.ID, err)
		}
		_ = s.streamer.Close()
		s.streamer = nil
	}
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
	s.ctrl = nil
	s.current = track.Track{}
}

// listenerErr reports tracks that ended because their file disappeared.
func listenerErr(t track.Track) error {
	if _, err := os.Stat(t.Source); err != nil {
		return errors.Wrapf(err, "source of %s vanished during playback", t.ID)
	}
	return nil
}

// decode opens a local audio file and picks the decoder by extension.
func decode(source string) (*os.File, beep.StreamSeekCloser, beep.Format, error) {
	if strings.Contains(source, "://") {
		return nil, nil, beep.Format{}, errors.Wrapf(ErrUnsupportedSource, "%s is not a local file", source)
	}

	ext := strings.ToLower(filepath.Ext(source))
	switch ext {
	case ".mp3", ".flac", ".wav":
	default:
		return nil, nil, beep.Format{}, errors.Wrapf(ErrUnsupportedSource, "format %q", ext)
	}

	f, err := os.Open(source)
	if err != nil {
		return nil, nil, beep.Format{}, errors.Wrap(err, "failed to open source")
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".flac":
		streamer, format, err = flac.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	}
	if err != nil {
		_ = f.Close()
		return nil, nil, beep.Format{}, errors.Wrapf(err, "failed to decode %s", source)
	}
	return f, streamer, format, nil
}
