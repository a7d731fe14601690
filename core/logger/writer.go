package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter decouples log emission from sink IO: records are queued
// and a single goroutine fans them out to every sink. The first write
// error is kept and returned on subsequent calls.
type asyncWriter struct {
	entries chan []byte
	flushes chan chan error
	drained chan struct{}
	once    sync.Once

	mu    sync.Mutex
	sinks []*bufio.Writer
	fail  error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]*bufio.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, bufio.NewWriterSize(w, bufSize))
		}
	}
	aw := &asyncWriter{
		entries: make(chan []byte, 256),
		flushes: make(chan chan error),
		drained: make(chan struct{}),
		sinks:   sinks,
	}
	go aw.run()
	return aw
}

func (w *asyncWriter) run() {
	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				w.flushSinks()
				close(w.drained)
				return
			}
			if len(entry) == 0 {
				continue
			}
			if err := w.fanOut(entry); err != nil {
				w.storeErr(err)
			}
		case ack := <-w.flushes:
			ack <- w.flushSinks()
		}
	}
}

// Write queues one record. Blocks when the queue is full rather than
// dropping the record.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.err(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	entry := make([]byte, len(p))
	copy(entry, p)
	w.entries <- entry
	return nil
}

// Flush blocks until everything queued so far has reached the sinks.
func (w *asyncWriter) Flush() error {
	if err := w.err(); err != nil {
		return err
	}
	ack := make(chan error, 1)
	w.flushes <- ack
	return <-ack
}

// Close drains the queue, flushes the sinks, and reports the first
// write error seen over the writer's lifetime.
func (w *asyncWriter) Close() error {
	w.once.Do(func() {
		close(w.entries)
	})
	<-w.drained
	return w.err()
}

func (w *asyncWriter) fanOut(p []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sink := range w.sinks {
		if _, err := sink.Write(p); err != nil {
			return err
		}
		if err := sink.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (w *asyncWriter) flushSinks() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fail
}

func (w *asyncWriter) storeErr(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail == nil {
		w.fail = err
	}
}
