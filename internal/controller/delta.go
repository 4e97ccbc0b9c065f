package controller

import "context"

// GetLastOutput captures current scrollback and returns the portion
// appended since the previous snapshot (taken at dispatch time or by
// a prior call), using a longest-common-line-prefix diff so that
// unrelated redraws of unchanged lines don't get treated as new text.
func (c *Controller) GetLastOutput(ctx context.Context, maxLines int) (string, error) {
	full, err := c.Backend.CaptureScrollback(ctx, c.Name, maxLines)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	prev := c.lastSnapshot
	hasPrev := c.hasSnapshot
	c.lastSnapshot = full
	c.hasSnapshot = true
	c.mu.Unlock()

	if !hasPrev {
		return full, nil
	}
	return deltaSince(prev, full), nil
}

// ResetOutputCache clears the remembered snapshot, so the next
// GetLastOutput call returns the entire captured buffer.
func (c *Controller) ResetOutputCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSnapshot = ""
	c.hasSnapshot = false
}

// deltaSince returns the suffix of next after the longest common line
// prefix it shares with prev.
func deltaSince(prev, next string) string {
	prevLines := splitLines(prev)
	nextLines := splitLines(next)

	common := 0
	for common < len(prevLines) && common < len(nextLines) && prevLines[common] == nextLines[common] {
		common++
	}
	if common >= len(nextLines) {
		return ""
	}

	offset := 0
	for i := 0; i < common; i++ {
		offset += len(prevLines[i]) + 1
	}
	if offset > len(next) {
		return next
	}
	return next[offset:]
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := []string{}
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
