package transport

import (
	"errors"
	"sync"
	"time"
)

type readResult struct {
	data string
	err  error
}

type fakePort struct {
	mu     sync.Mutex
	reads  []readResult
	closed bool
}

func newFakePort(reads ...readResult) *fakePort {
	return &fakePort{reads: reads}
}

func (p *fakePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, errors.New("read on closed port")
	}
	if len(p.reads) == 0 {
		p.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		return 0, nil
	}
	r := p.reads[0]
	p.reads = p.reads[1:]
	p.mu.Unlock()
	return copy(b, r.data), r.err
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeOpener hands out ports in order, then fresh idle ports.
type fakeOpener struct {
	mu     sync.Mutex
	ports  []*fakePort
	opened []*fakePort
	paths  []string
	err    error
}

func (o *fakeOpener) Open(path string) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	var p *fakePort
	if len(o.ports) > 0 {
		p = o.ports[0]
		o.ports = o.ports[1:]
	} else {
		p = newFakePort()
	}
	o.opened = append(o.opened, p)
	o.paths = append(o.paths, path)
	return p, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func (o *fakeOpener) setErr(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.err = err
}
