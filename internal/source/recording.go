// SPDX-License-Identifier: MIT
package source

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	applog "vizbridge/internal/log"
)

// recorder is an optional WAV tap on the raw captured stream. The stream
// callback calls write on every buffer; start/stop manage the encoder from
// the control path.
type recorder struct {
	active int32 // atomic flag, checked on the stream callback path

	mu        sync.Mutex
	file      *os.File
	encoder   *wav.Encoder
	sampleBuf *audio.IntBuffer
}

func (r *recorder) start(filename string, cfg CaptureConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if atomic.LoadInt32(&r.active) == 1 {
		return fmt.Errorf("already recording")
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	r.file = file
	r.encoder = wav.NewEncoder(file, int(cfg.SampleRate), 32, cfg.Channels, 1)
	r.sampleBuf = &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: cfg.Channels,
			SampleRate:  int(cfg.SampleRate),
		},
		Data: make([]int, cfg.FFTSize*cfg.Channels),
	}

	atomic.StoreInt32(&r.active, 1)
	applog.Infof("Source: Recording to %s", filename)
	return nil
}

func (r *recorder) stop() error {
	if atomic.LoadInt32(&r.active) == 0 {
		return nil
	}
	atomic.StoreInt32(&r.active, 0)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.encoder != nil {
		if err := r.encoder.Close(); err != nil {
			return err
		}
		r.encoder = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return err
		}
		r.file = nil
	}
	return nil
}

func (r *recorder) write(in []int32) {
	if atomic.LoadInt32(&r.active) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}

	if len(in) > cap(r.sampleBuf.Data) {
		r.sampleBuf.Data = make([]int, len(in))
	}
	r.sampleBuf.Data = r.sampleBuf.Data[:len(in)]
	for i, sample := range in {
		r.sampleBuf.Data[i] = int(sample)
	}

	if err := r.encoder.Write(r.sampleBuf); err != nil {
		applog.Errorf("Source: Error writing to WAV file: %v", err)
	}
}
