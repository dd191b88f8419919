package transport

import "sync"

// Pipe returns two connected in-memory endpoints. A frame sent from one side
// is delivered asynchronously to the other side's handler, mimicking the
// process boundary without a socket. The peer names are fixed: each side
// sees the other as the given name.
func Pipe(uiPeer, backendPeer string) (ui, backend Transport) {
	a := &pipeEnd{localName: uiPeer}
	b := &pipeEnd{localName: backendPeer}
	a.remote = b
	b.remote = a
	return a, b
}

type pipeEnd struct {
	mu           sync.Mutex
	localName    string
	remote       *pipeEnd
	handler      Handler
	onDisconnect func(peer string)
	closed       bool
}

func (p *pipeEnd) Send(peer string, frame []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	remote := p.remote
	p.mu.Unlock()

	remote.mu.Lock()
	closed := remote.closed
	h := remote.handler
	remote.mu.Unlock()

	if closed || h == nil {
		return ErrPeerUnreachable
	}

	// Copy before handing off; callers may reuse the buffer.
	dup := make([]byte, len(frame))
	copy(dup, frame)
	from := p.localName
	go h(from, dup)
	return nil
}

func (p *pipeEnd) Handle(h Handler) {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
}

func (p *pipeEnd) HandleDisconnect(fn func(peer string)) {
	p.mu.Lock()
	p.onDisconnect = fn
	p.mu.Unlock()
}

func (p *pipeEnd) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	remote := p.remote
	p.mu.Unlock()

	// Tell the other side its peer is gone.
	remote.mu.Lock()
	fn := remote.onDisconnect
	name := p.localName
	alreadyClosed := remote.closed
	remote.mu.Unlock()
	if fn != nil && !alreadyClosed {
		go fn(name)
	}
	return nil
}
