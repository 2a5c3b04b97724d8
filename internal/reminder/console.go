package reminder

import (
	"fmt"
	"io"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Console prints notifications to a writer. The CLI uses it in place of a system tray.
// Other output to the same writer should go through Console.Write so lines never interleave.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console { return &Console{w: w} }

func (c *Console) Notify(n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.w, "[%s] %s\n%s\n", n.DueAt.Format("15:04"), n.Title, n.Body); err != nil {
		return err
	}
	for i, a := range n.Actions {
		if _, err := fmt.Fprintf(c.w, "  %d) %s\n", i+1, a.Label); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(c.w, "  key: %s\n", n.Key)
	return err
}

func (c *Console) Cancel(key uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.w, "dismissed %s\n", key)
	return err
}

// Write writes p under the same lock as notifications.
func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w.Write(p)
}
