package recording

// chunks is an append-only sequence of fixed-capacity byte slices. The
// container writers stream into it and Bytes joins them once at the end.
type chunks struct {
	size int
	list [][]byte
	n    int
}

func newChunks(size int) *chunks {
	if size <= 0 {
		size = 64 * 1024
	}
	return &chunks{size: size}
}

func (c *chunks) Write(p []byte) (int, error) {
	written := len(p)
	for len(p) > 0 {
		last := len(c.list) - 1
		if last < 0 || len(c.list[last]) == c.size {
			c.list = append(c.list, make([]byte, 0, c.size))
			last++
		}
		room := c.size - len(c.list[last])
		take := min(room, len(p))
		c.list[last] = append(c.list[last], p[:take]...)
		p = p[take:]
	}
	c.n += written
	return written, nil
}

func (c *chunks) Len() int   { return c.n }
func (c *chunks) Count() int { return len(c.list) }

func (c *chunks) Bytes() []byte {
	out := make([]byte, 0, c.n)
	for _, b := range c.list {
		out = append(out, b...)
	}
	return out
}
