package executor

import "sync"

// lineTail keeps the most recent n lines.
type lineTail struct {
	mu    sync.Mutex
	lines []string
	start int
	size  int
}

func newLineTail(n int) *lineTail {
	return &lineTail{lines: make([]string, n)}
}

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	capacity := len(t.lines)
	if t.size < capacity {
		t.lines[(t.start+t.size)%capacity] = line
		t.size++
		return
	}
	t.lines[t.start] = line
	t.start = (t.start + 1) % capacity
}

// snapshot returns retained lines, oldest first.
func (t *lineTail) snapshot() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.lines[(t.start+i)%len(t.lines)])
	}
	return out
}
