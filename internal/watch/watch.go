// Package watch feeds clipboard changes into history and reloads config
// when its file changes.
package watch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hpungsan/whispr/internal/item"
)

// Clip is one clipboard payload. Image is set for image payloads, Text otherwise.
type Clip struct {
	Text      string
	Image     []byte
	FilePath  string
	SourceApp string
}

// Reader is a clipboard that can report changes cheaply before a full read.
type Reader interface {
	// Changed reports whether the clipboard changed since the last Read.
	Changed() (bool, error)
	Read() (Clip, error)
}

// Sink receives observed clipboard payloads.
type Sink interface {
	Observe(raw, sourceApp string) (*item.Item, bool)
	ObserveImage(data []byte, filePath, sourceApp string) (*item.Item, bool)
}

// DefaultInterval is used when the poller is given a non-positive interval.
const DefaultInterval = 500 * time.Millisecond

// Poller checks a Reader on a fixed interval and forwards changes to a Sink.
type Poller struct {
	reader   Reader
	sink     Sink
	interval time.Duration
	logger   *zap.Logger

	// OnInsert, when set, is called for every payload the sink accepted.
	OnInsert func(*item.Item)

	failing bool
}

// NewPoller creates a poller.
func NewPoller(reader Reader, sink Sink, interval time.Duration, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{reader: reader, sink: sink, interval: interval, logger: logger}
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.Poll()
		}
	}
}

// Poll performs one check. The read path runs only when the reader reports
// a change.
func (p *Poller) Poll() (*item.Item, bool) {
	changed, err := p.reader.Changed()
	if err != nil {
		p.fail("clipboard change check failed", err)
		return nil, false
	}
	if !changed {
		p.failing = false
		return nil, false
	}
	clip, err := p.reader.Read()
	if err != nil {
		p.fail("clipboard read failed", err)
		return nil, false
	}
	p.failing = false

	var (
		it *item.Item
		ok bool
	)
	if len(clip.Image) > 0 {
		it, ok = p.sink.ObserveImage(clip.Image, clip.FilePath, clip.SourceApp)
	} else {
		it, ok = p.sink.Observe(clip.Text, clip.SourceApp)
	}
	if ok {
		p.logger.Debug("clipboard item observed",
			zap.String("id", it.ID),
			zap.String("type", string(it.Type)))
		if p.OnInsert != nil {
			p.OnInsert(it)
		}
	}
	return it, ok
}

// fail logs the first error of a streak only.
func (p *Poller) fail(msg string, err error) {
	if p.failing {
		return
	}
	p.failing = true
	p.logger.Warn(msg, zap.Error(err))
}
