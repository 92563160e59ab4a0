package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/impedance/logging"
)

const recorderBuffer = 1024

// Recorder writes samples as JSON lines on its own goroutine. Samples that arrive while the buffer
// is full are dropped and counted.
type Recorder struct {
	logger  logging.Logger
	samples chan Sample
	dropped atomic.Uint64
	written atomic.Uint64

	out     *bufio.Writer
	closer  io.Closer
	workers *utils.StoppableWorkers
	err     error
}

// NewFileRecorder creates (or truncates) path and records into it.
func NewFileRecorder(logger logging.Logger, path string) (*Recorder, error) {
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating telemetry recording")
	}
	return NewRecorder(logger, f), nil
}

// NewRecorder records into w. If w is an io.Closer it is closed by Close.
func NewRecorder(logger logging.Logger, w io.Writer) *Recorder {
	r := &Recorder{
		logger:  logger,
		samples: make(chan Sample, recorderBuffer),
		out:     bufio.NewWriter(w),
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	enc := json.NewEncoder(r.out)
	r.workers = utils.NewBackgroundStoppableWorkers(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				r.drain(enc)
				return
			case s := <-r.samples:
				r.write(enc, s)
			}
		}
	})
	return r
}

func (r *Recorder) drain(enc *json.Encoder) {
	for {
		select {
		case s := <-r.samples:
			r.write(enc, s)
		default:
			return
		}
	}
}

func (r *Recorder) write(enc *json.Encoder, s Sample) {
	if r.err != nil {
		return
	}
	if err := enc.Encode(s); err != nil {
		r.err = err
		r.logger.Errorw("telemetry recording failed, no further samples will be written", "error", err)
		return
	}
	r.written.Inc()
}

// Publish implements Publisher.
func (r *Recorder) Publish(s Sample) {
	select {
	case r.samples <- s:
	default:
		r.dropped.Inc()
	}
}

// Dropped returns how many samples were discarded because the writer fell behind.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns how many samples reached the writer.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Close stops the writer goroutine after flushing queued samples.
func (r *Recorder) Close() error {
	r.workers.Stop()
	err := multierr.Combine(r.err, r.out.Flush())
	if r.closer != nil {
		err = multierr.Combine(err, r.closer.Close())
	}
	return err
}

// ReadRecording decodes every sample of a JSON lines recording.
func ReadRecording(rd io.Reader) ([]Sample, error) {
	dec := json.NewDecoder(rd)
	var out []Sample
	for {
		var s Sample
		if err := dec.Decode(&s); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, errors.Wrapf(err, "sample %d", len(out))
		}
		out = append(out, s)
	}
}
