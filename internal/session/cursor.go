package session

// Cursor is the optional position in the suggestion list. It records the
// intended move only; the graph generator clamps it against the real list.
type Cursor struct {
	index *int
}

// SelectNext moves by offset. An unset cursor selects 0 whatever the offset.
func (c *Cursor) SelectNext(offset int) {
	if c.index == nil {
		i := 0
		c.index = &i
		return
	}
	i := *c.index + offset
	c.index = &i
}

// Reset clears the selection.
func (c *Cursor) Reset() {
	c.index = nil
}

// Index returns a copy of the current index, nil when unset.
func (c *Cursor) Index() *int {
	if c.index == nil {
		return nil
	}
	i := *c.index
	return &i
}

// Set replaces the index, typically with the clamped value.
func (c *Cursor) Set(index *int) {
	if index == nil {
		c.index = nil
		return
	}
	i := *index
	c.index = &i
}
