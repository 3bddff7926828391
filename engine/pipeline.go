package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"meetcap/audio"
	"meetcap/mixer"
	"meetcap/sink"
)

// sourceFactory builds the live audio sources a recording pipeline
// needs. Production wiring uses audio.NewMicSource/audio.NewSystemSource;
// tests substitute fakes so the engine's state machine can be exercised
// without real hardware.
type sourceFactory interface {
	NewMicrophone(deviceID string) (audio.Source, error)
	NewSystem() (audio.Source, error)
}

type defaultSourceFactory struct{}

func (defaultSourceFactory) NewMicrophone(deviceID string) (audio.Source, error) {
	return audio.NewMicSource(deviceID)
}

func (defaultSourceFactory) NewSystem() (audio.Source, error) {
	return audio.NewSystemSource()
}

// recordingPipeline owns the live source(s), the mixer (Mixed mode
// only), and the sink for one recording session. It presents a single
// start/stop surface to the engine regardless of which audio_source
// kind is configured (spec.md §4.1-§4.3).
type recordingPipeline struct {
	kind audio.AudioSourceKind
	sink *sink.WAVSink

	mic       audio.Source
	system    audio.Source
	mix       *mixer.Mixer
	mixerDone chan struct{}

	disconnectOnce sync.Once
	onDisconnect   func(error)

	onLevel   func(micLevel, sysLevel float64)
	levelMu   sync.Mutex
	micLevel  float64
	sysLevel  float64
	levelStop chan struct{}
	levelDone chan struct{}
}

// newRecordingPipeline opens the sink file and instantiates (but does
// not yet start) the sources the given kind requires. onLevel, if
// non-nil, is invoked roughly every 100ms with the most recent
// per-channel RMS level (spec.md §11's VU-meter hook), grounded on the
// teacher's AudioLevelCallback/processAudio level ticker.
func newRecordingPipeline(factory sourceFactory, kind audio.AudioSourceKind, micDevice, sinkPath string, onDisconnect func(error), onLevel func(micLevel, sysLevel float64)) (*recordingPipeline, error) {
	s, err := sink.New(sinkPath)
	if err != nil {
		return nil, fmt.Errorf("engine: create sink: %w", err)
	}

	p := &recordingPipeline{kind: kind, sink: s, onDisconnect: onDisconnect, onLevel: onLevel}

	switch kind {
	case audio.MicrophoneOnly:
		mic, err := factory.NewMicrophone(micDevice)
		if err != nil {
			return nil, fmt.Errorf("engine: open microphone: %w", err)
		}
		p.mic = mic
	case audio.SystemOnly:
		sys, err := factory.NewSystem()
		if errors.Is(err, audio.ErrPlatformUnsupported) {
			return nil, fmt.Errorf("engine: open system audio: %w: %w", ErrPlatformUnsupported, err)
		}
		if err != nil {
			return nil, fmt.Errorf("engine: open system audio: %w", err)
		}
		p.system = sys
	case audio.Mixed:
		mic, err := factory.NewMicrophone(micDevice)
		if err != nil {
			return nil, fmt.Errorf("engine: open microphone: %w", err)
		}
		sys, err := factory.NewSystem()
		if errors.Is(err, audio.ErrPlatformUnsupported) {
			return nil, fmt.Errorf("engine: open system audio: %w: %w", ErrPlatformUnsupported, err)
		}
		if err != nil {
			return nil, fmt.Errorf("engine: open system audio: %w", err)
		}
		p.mic = mic
		p.system = sys
		p.mix = mixer.New()
	default:
		return nil, fmt.Errorf("engine: unknown audio source kind %q", kind)
	}

	return p, nil
}

// start wires sources into the sink (through the mixer in Mixed mode)
// and starts capture. Any failure stops whatever already started.
func (p *recordingPipeline) start() error {
	fireDisconnect := func(err error) {
		p.disconnectOnce.Do(func() {
			if p.onDisconnect != nil {
				p.onDisconnect(err)
			}
		})
	}

	if p.mix != nil {
		go p.mix.Run()
		p.mixerDone = make(chan struct{})
		go func() {
			defer close(p.mixerDone)
			for chunk := range p.mix.Output() {
				_ = p.sink.Write(chunk)
			}
		}()
	}

	writeToSink := func(samples []float32) { _ = p.sink.Write(samples) }

	var onMicData, onSysData audio.DataFunc
	switch {
	case p.mix != nil:
		onMicData = p.mix.WriteMic
		onSysData = p.mix.WriteSystem
	default:
		onMicData = writeToSink
		onSysData = writeToSink
	}

	if p.onLevel != nil {
		onMicData = p.trackLevel(onMicData, true)
		onSysData = p.trackLevel(onSysData, false)
		p.startLevelTicker()
	}

	if p.mic != nil {
		if err := p.mic.Start(onMicData, fireDisconnect); err != nil {
			p.stopStarted()
			return fmt.Errorf("engine: start microphone: %w", err)
		}
	}
	if p.system != nil {
		if err := p.system.Start(onSysData, fireDisconnect); err != nil {
			p.stopStarted()
			return fmt.Errorf("engine: start system audio: %w", err)
		}
	}
	return nil
}

// trackLevel wraps next so every delivered chunk also updates the
// rolling per-channel RMS level the ticker in startLevelTicker reports.
func (p *recordingPipeline) trackLevel(next audio.DataFunc, isMic bool) audio.DataFunc {
	return func(samples []float32) {
		level := audio.CalculateRMS(samples)
		p.levelMu.Lock()
		if isMic {
			p.micLevel = level
		} else {
			p.sysLevel = level
		}
		p.levelMu.Unlock()
		next(samples)
	}
}

// startLevelTicker reports the current mic/system levels to onLevel
// every 100ms until stopLevelTicker is called.
func (p *recordingPipeline) startLevelTicker() {
	p.levelStop = make(chan struct{})
	p.levelDone = make(chan struct{})
	go func() {
		defer close(p.levelDone)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-p.levelStop:
				return
			case <-ticker.C:
				p.levelMu.Lock()
				mic, sys := p.micLevel, p.sysLevel
				p.levelMu.Unlock()
				p.onLevel(mic, sys)
			}
		}
	}()
}

func (p *recordingPipeline) stopLevelTicker() {
	if p.levelStop == nil {
		return
	}
	close(p.levelStop)
	<-p.levelDone
}

// stopStarted stops whichever sources are already running, used to
// unwind a partially-started pipeline.
func (p *recordingPipeline) stopStarted() {
	if p.mic != nil {
		_ = p.mic.Stop()
	}
	if p.system != nil {
		_ = p.system.Stop()
	}
}

// stop quiesces capture and finalizes the sink, returning the number
// of samples written and any finalize error (a timeout is not fatal:
// the partial file on disk remains valid).
func (p *recordingPipeline) stop(finalizeTimeout time.Duration) (int64, error) {
	p.stopStarted()
	p.stopLevelTicker()
	if p.mix != nil {
		p.mix.Stop()
		if p.mixerDone != nil {
			<-p.mixerDone
		}
	}
	err := p.sink.Finalize(finalizeTimeout)
	return p.sink.SamplesWritten(), err
}
