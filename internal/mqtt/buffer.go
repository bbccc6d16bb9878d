package mqtt

import "github.com/golang/glog"

// bufferedMsg is a serialized message held for replay after a reconnect.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog keeps the newest messages published while the broker is
// unreachable. When full, the oldest message is overwritten. The caller
// serializes access.
type backlog struct {
	slots   []bufferedMsg
	oldest  int
	n       int
	dropped int
	warned  bool // reset by take
}

func newBacklog(size int) *backlog {
	if size < 1 {
		size = 1
	}
	return &backlog{slots: make([]bufferedMsg, size)}
}

func (b *backlog) add(m bufferedMsg) {
	size := len(b.slots)
	if b.n < size {
		b.slots[(b.oldest+b.n)%size] = m
		b.n++
		return
	}
	if !b.warned {
		glog.Warningf("mqtt: backlog full (%d messages), overwriting oldest", size)
		b.warned = true
	}
	b.slots[b.oldest] = m
	b.oldest = (b.oldest + 1) % size
	b.dropped++
}

// take empties the backlog and returns its messages oldest first.
func (b *backlog) take() []bufferedMsg {
	if b.n == 0 {
		return nil
	}
	size := len(b.slots)
	out := make([]bufferedMsg, 0, b.n)
	for i := 0; i < b.n; i++ {
		j := (b.oldest + i) % size
		out = append(out, b.slots[j])
		b.slots[j] = bufferedMsg{}
	}
	b.oldest, b.n, b.warned = 0, 0, false
	return out
}

func (b *backlog) len() int { return b.n }
