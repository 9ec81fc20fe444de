package watch

import (
	"crypto/sha256"
	"sync"

	"github.com/atotto/clipboard"
)

// SystemClipboard reads and writes the OS clipboard. Change detection
// compares a digest of the current text with the last text seen, including
// text this process wrote itself.
type SystemClipboard struct {
	mu      sync.Mutex
	last    [sha256.Size]byte
	seen    bool
	pending *string

	// SourceApp is reported with every read. The OS clipboard does not
	// expose the owning application portably.
	SourceApp string

	readAll  func() (string, error)
	writeAll func(string) error
}

// NewSystemClipboard returns a clipboard backed by atotto/clipboard.
func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{readAll: clipboard.ReadAll, writeAll: clipboard.WriteAll}
}

// Available reports whether a clipboard utility was found.
func (c *SystemClipboard) Available() bool {
	return !clipboard.Unsupported
}

// Changed implements Reader. The text read here is kept for the next Read.
func (c *SystemClipboard) Changed() (bool, error) {
	text, err := c.readAll()
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256([]byte(text))

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen && sum == c.last {
		return false, nil
	}
	c.last = sum
	c.seen = true
	c.pending = &text
	return true, nil
}

// Read implements Reader.
func (c *SystemClipboard) Read() (Clip, error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	if pending != nil {
		return Clip{Text: *pending, SourceApp: c.SourceApp}, nil
	}
	text, err := c.readAll()
	if err != nil {
		return Clip{}, err
	}
	return Clip{Text: text, SourceApp: c.SourceApp}, nil
}

// Write puts text on the clipboard and marks it seen so the poller does not
// report it as a change.
func (c *SystemClipboard) Write(text string) error {
	if err := c.writeAll(text); err != nil {
		return err
	}
	c.mu.Lock()
	c.last = sha256.Sum256([]byte(text))
	c.seen = true
	c.pending = nil
	c.mu.Unlock()
	return nil
}

// Prime marks the current clipboard content as seen so text present at
// startup is not ingested.
func (c *SystemClipboard) Prime() error {
	if _, err := c.Changed(); err != nil {
		return err
	}
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return nil
}
