package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"image/png"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/cellux/multiverse"
	"github.com/dh1tw/gosamplerate"
	"github.com/ebitengine/oto/v3"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	mp3 "github.com/hajimehoshi/go-mp3"
	homedir "github.com/mitchellh/go-homedir"
)

// frameHop is how far the ring window advances per rendered frame:
// 48000 / 800 = 60 frames per second of audio.
const frameHop = 800

func main() {
	var (
		inPath     = flag.String("in", "", "input audio file (.wav or .mp3)")
		outDir     = flag.String("out", "frames", "output directory for rendered PNG frames")
		frames     = flag.Int("frames", 0, "number of frames to render, 0 means all")
		width      = flag.Int("width", 960, "frame width in pixels")
		height     = flag.Int("height", 540, "frame height in pixels")
		blend      = flag.Float64("blend", 0, "blend position, 0..1")
		brightness = flag.Float64("brightness", 2.5, "output brightness, 0..4")
		baseHue    = flag.Float64("base-hue", 0, "base hue rotation, 0..1")
		scheme     = flag.Float64("color-scheme", 0, "color scheme position, 0..1")
		forceCPU   = flag.Bool("cpu", false, "skip the GPU backend")
		play       = flag.Bool("play", false, "play the audio while rendering")
		logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()
	if err := multiverse.InitLogger(*logLevel); err != nil {
		log.Fatalf("%v\n", err)
	}

	if *inPath == "" {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(*inPath, *outDir, *frames, *width, *height,
		float32(*blend), float32(*brightness), float32(*baseHue), float32(*scheme),
		*forceCPU, *play); err != nil {
		log.Fatalf("%v\n", err)
	}
}

func run(inPath, outDir string, frames, width, height int,
	blend, brightness, baseHue, scheme float32, forceCPU, play bool) error {
	inPath, err := homedir.Expand(inPath)
	if err != nil {
		return err
	}
	outDir, err = homedir.Expand(outDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	samples, err := loadAudio(inPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", inPath, err)
	}
	slog.Info("audio loaded", "path", inPath,
		"seconds", float64(len(samples))/multiverse.RingRate)

	r, err := multiverse.New(multiverse.Config{
		Width:       width,
		Height:      height,
		ForceCPU:    forceCPU,
		BlendMode:   blend,
		Brightness:  brightness,
		BaseHue:     baseHue,
		ColorScheme: scheme,
	})
	if err != nil {
		return err
	}
	defer r.Close()
	slog.Info("renderer ready", "backend", r.Backend())

	if play {
		if err := startPlayback(samples); err != nil {
			slog.Warn("audio playback unavailable", "error", err)
		}
	}

	total := (len(samples) - multiverse.RingSamples) / frameHop
	if total < 1 {
		total = 1
	}
	if frames > 0 && frames < total {
		total = frames
	}

	for i := 0; i < total; i++ {
		in := buildInput(samples, i, width, height)
		frame, err := r.RenderSync(in)
		if err != nil {
			return err
		}
		if err := writePNG(frame, filepath.Join(outDir, fmt.Sprintf("frame_%05d.png", i))); err != nil {
			return err
		}
	}
	slog.Info("done", "frames", total, "dir", outDir)
	return nil
}

// buildInput windows the sample stream into one ring per channel. The
// four channels share the signal but differ in geometry, which is enough
// to exercise every blend law visually.
func buildInput(samples []float32, frame, width, height int) multiverse.RenderInput {
	in := multiverse.RenderInput{
		Channels: make([]multiverse.Channel, multiverse.MaxChannels),
	}
	angles := [multiverse.MaxChannels]float32{0, 45, 90, 135}
	ratios := [multiverse.MaxChannels]float32{1, 2, 3, 5}
	for ch := 0; ch < multiverse.MaxChannels; ch++ {
		// Stagger each channel a quarter ring into the past.
		start := frame*frameHop - ch*multiverse.RingSamples/4
		ring := ringAt(samples, start)
		in.Channels[ch] = multiverse.Channel{
			Audio:     ring,
			Intensity: 1,
			Curve:     float32(ch) * 0.25,
			Angle:     angles[ch],
			Ratio:     ratios[ch],
			Enabled:   true,
		}
	}
	in.Overlay = buildOverlay(in.Channels[0].Audio, frame, width, height)
	return in
}

func ringAt(samples []float32, start int) []float32 {
	ring := make([]float32, multiverse.RingSamples)
	for i := range ring {
		j := start + i
		if j >= 0 && j < len(samples) {
			ring[i] = samples[j]
		}
	}
	return ring
}

// buildOverlay traces channel 0's waveform as a contour across the frame
// and sweeps a marker along it.
func buildOverlay(ring []float32, frame, width, height int) *multiverse.Overlay {
	if len(ring) == 0 {
		return nil
	}
	ov := &multiverse.Overlay{}
	step := width / 64
	if step < 1 {
		step = 1
	}
	for x := 0; x < width; x += step {
		i := x * len(ring) / width
		y := height/2 + int(float64(ring[i])*0.04*float64(height))
		ov.Contour = append(ov.Contour, multiverse.Point{X: x, Y: y})
	}
	mi := (frame * 7) % len(ov.Contour)
	m := ov.Contour[mi]
	ov.Marker = &m
	return ov
}

// loadAudio decodes a WAV or MP3 file to mono float32 at the ring rate,
// scaled to the ±10 range the renderer expects.
func loadAudio(path string) ([]float32, error) {
	var mono []float32
	var rate int
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		mono, rate, err = loadWAV(path)
	case ".mp3":
		mono, rate, err = loadMP3(path)
	default:
		return nil, fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	if rate != multiverse.RingRate {
		mono, err = resample(mono, rate, multiverse.RingRate)
		if err != nil {
			return nil, err
		}
	}
	for i := range mono {
		mono[i] *= 10
	}
	return mono, nil
}

func loadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf.Format == nil {
		return nil, 0, fmt.Errorf("missing format chunk")
	}
	return mixDown(buf), buf.Format.SampleRate, nil
}

// mixDown averages the channels of an integer PCM buffer into mono
// floats in -1..1.
func mixDown(buf *audio.IntBuffer) []float32 {
	nch := buf.Format.NumChannels
	if nch < 1 {
		nch = 1
	}
	bits := buf.SourceBitDepth
	if bits == 0 {
		bits = 16
	}
	scale := 1.0 / float64(int(1)<<(bits-1))
	n := len(buf.Data) / nch
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		var sum float64
		for c := 0; c < nch; c++ {
			sum += float64(buf.Data[i*nch+c])
		}
		mono[i] = float32(sum / float64(nch) * scale)
	}
	return mono
}

func loadMP3(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, err
	}
	// go-mp3 always emits 16-bit LE stereo.
	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, 0, err
	}
	n := len(data) / 4
	mono := make([]float32, n)
	for i := 0; i < n; i++ {
		l := int16(binary.LittleEndian.Uint16(data[i*4:]))
		r := int16(binary.LittleEndian.Uint16(data[i*4+2:]))
		mono[i] = float32(int(l)+int(r)) / 2 / (1 << 15)
	}
	return mono, dec.SampleRate(), nil
}

func resample(in []float32, from, to int) ([]float32, error) {
	ratio := float64(to) / float64(from)
	if !gosamplerate.IsValidRatio(ratio) {
		return nil, fmt.Errorf("invalid resample ratio %v", ratio)
	}
	return gosamplerate.Simple(in, ratio, 1, gosamplerate.SRC_SINC_FASTEST)
}

// startPlayback streams the mono signal to the default audio device in
// the background. Failure here never stops rendering.
func startPlayback(samples []float32) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   multiverse.RingRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return err
	}
	<-ready
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s*0.1))
	}
	player := ctx.NewPlayer(&byteStream{data: buf})
	player.Play()
	return nil
}

type byteStream struct {
	data []byte
	pos  int
}

func (s *byteStream) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}

func writePNG(frame *multiverse.Frame, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, frame.ToImage())
}
