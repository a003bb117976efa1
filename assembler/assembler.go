// Package assembler turns a raw, arbitrarily-chunked NMEA 0183 byte stream
// into framed, checksum-verified sentences and groups sentences that share
// a navigation epoch (the same decoded time field) into a single block.
package assembler

import (
	"sync"
	"sync/atomic"
	"time"
)

const (
	// maxSentenceSize is the largest sentence body (between '$' and CR) that
	// is kept; longer sentences are dropped.
	maxSentenceSize = 253
	// maxBlockSize is the largest block payload, including the trailing NUL.
	maxBlockSize = 4084
	// numBuffers bounds how many block buffers may be in flight at once.
	numBuffers = 16
	// idleReset is how long the assembler may go without a byte before its
	// in-progress sentence and block are discarded.
	idleReset = 2 * time.Second
	// emitterPopTimeout is how long the emitter goroutine blocks waiting for
	// a queued block before re-checking for shutdown.
	emitterPopTimeout = 100 * time.Millisecond
)

// Listener receives events from an Assembler.
type Listener interface {
	// OnBlock is invoked once per emitted block, in submission order, on the
	// Assembler's dedicated emitter goroutine.
	OnBlock(Block)
	// OnIOError is invoked synchronously, on whatever goroutine called
	// IOError, the instant a transport reports a read failure. Unlike
	// OnBlock it is not queued: the supervisor needs to observe it without
	// waiting behind buffered blocks.
	OnIOError()
}

// Block is one or more complete, CRLF-terminated NMEA sentences sharing a
// single acquisition time, concatenated and NUL-terminated.
//
// Time is captured from the timestamp passed to Submit for the byte that
// began the block's first sentence ('$'). Because it is ultimately derived
// from time.Now() (or an injected equivalent) at the transport layer, its
// monotonic reading is preserved by the time.Time value itself, which is
// what satisfies the "monotonic microseconds" requirement without needing a
// separate integer clock type.
type Block struct {
	Time    time.Time
	Payload []byte // sentences, each CRLF-terminated, plus one trailing 0x00
}

// Assembler implements the byte-level NMEA 0183 framing and time-grouping
// state machine described for this driver. A single Assembler instance must
// only ever be driven (Submit/Flush) from one goroutine at a time, exactly
// as the UART and UDP transports do, each owning one Assembler from their
// single reader goroutine. SetSkipBroken and Close are safe to call from any
// goroutine.
type Assembler struct {
	listener Listener
	now      func() time.Time

	skipBroken int32 // atomic bool

	pool  *bufferPool
	queue chan Block

	terminate int32 // atomic bool
	done      chan struct{}
	wg        sync.WaitGroup

	// --- fields below are owned by the Submit/Flush caller goroutine ---

	lastActivity time.Time
	haveActivity bool

	sentence     [maxSentenceSize + 3]byte // + CR + LF slack while accumulating
	sentenceSize int

	block           []byte // reused scratch backing the in-progress block
	blockStartTime  time.Time
	blockNMEATimeMs int // last decoded HHMMSS(.fff) in ms-of-day, 0 if none this block
	sentenceStart   time.Time
}

// Option configures an Assembler at construction time.
type Option func(*Assembler)

// WithNowFunc overrides the clock used for idle-timeout bookkeeping, so
// tests can drive Flush deterministically.
func WithNowFunc(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithQueueSize overrides the block event queue's capacity (default
// numBuffers, matching the free-list size).
func WithQueueSize(n int) Option {
	return func(a *Assembler) { a.queue = make(chan Block, n) }
}

// New creates an Assembler that delivers blocks to listener on a dedicated
// emitter goroutine, and starts that goroutine immediately.
func New(listener Listener, opts ...Option) *Assembler {
	a := &Assembler{
		listener: listener,
		now:      time.Now,
		pool:     newBufferPool(numBuffers, maxBlockSize),
		queue:    make(chan Block, numBuffers),
		done:     make(chan struct{}),
		block:    make([]byte, 0, maxBlockSize),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.wg.Add(1)
	go a.emit()
	return a
}

// SetSkipBroken controls whether sentences failing checksum verification are
// discarded (true) or kept without contributing to time extraction (false).
func (a *Assembler) SetSkipBroken(skip bool) {
	v := int32(0)
	if skip {
		v = 1
	}
	atomic.StoreInt32(&a.skipBroken, v)
}

func (a *Assembler) skipBrokenEnabled() bool {
	return atomic.LoadInt32(&a.skipBroken) != 0
}

// IOError reports a transport-level read failure to the listener. The
// transport's reader goroutine calls this directly; it is not routed through
// the block queue or the free-list, so a stalled consumer cannot delay it.
func (a *Assembler) IOError() {
	defer func() { _ = recover() }()
	a.listener.OnIOError()
}

// Close stops the emitter goroutine and waits for it to exit. It must
// return within 500ms of being called by a well-behaved caller.
func (a *Assembler) Close() {
	if !atomic.CompareAndSwapInt32(&a.terminate, 0, 1) {
		return
	}
	close(a.done)
	a.wg.Wait()
}

// Submit feeds a chunk of bytes read at time t. It returns true if at least
// one complete sentence was accepted during this call; with skip-broken
// enabled only checksum-verified sentences are ever accepted, so in that
// configuration a true return proves the line speed is right. Must only be
// called from the transport's single reader goroutine.
func (a *Assembler) Submit(t time.Time, data []byte) bool {
	if a.haveActivity && t.Sub(a.lastActivity) > idleReset {
		a.resetSentence()
		a.resetBlock()
	}
	a.lastActivity = t
	a.haveActivity = true

	goodNMEA := false
	for _, b := range data {
		if b == '$' {
			a.sentenceStart = t
		}

		if a.sentenceSize == 0 && b != '$' {
			continue
		}

		if b != '\r' {
			if a.sentenceSize >= maxSentenceSize {
				a.sentenceSize = 0
				continue
			}
			a.sentence[a.sentenceSize] = b
			a.sentenceSize++
			continue
		}

		// CR reached: the sentence is complete.
		if a.sentenceSize < 10 {
			a.sentenceSize = 0
			continue
		}

		body := a.sentence[:a.sentenceSize]
		badCRC := !verifyChecksum(body)

		if a.skipBrokenEnabled() && badCRC {
			a.sentenceSize = 0
			continue
		}

		goodNMEA = true
		sendBlock := false

		if !badCRC && isTimedSentenceType(body) {
			ms := parseSentenceTimeMs(body)
			if a.blockNMEATimeMs != 0 && a.blockNMEATimeMs != ms {
				sendBlock = true
			}
			a.blockNMEATimeMs = ms
		}

		if len(a.block)+a.sentenceSize+3 > maxBlockSize {
			sendBlock = true
		}

		if a.blockNMEATimeMs == 0 {
			// No time known for this block yet: emit this single sentence
			// standalone so it is never stranded behind a future block.
			standalone := make([]byte, 0, a.sentenceSize+3)
			standalone = append(standalone, body...)
			standalone = append(standalone, '\r', '\n', 0)
			a.emitRaw(a.sentenceStart, standalone)

			a.resetBlock()
			a.sentenceSize = 0
			continue
		}

		if sendBlock && len(a.block) > 0 {
			a.emitBlock()
		}

		if len(a.block) == 0 {
			a.blockStartTime = a.sentenceStart
		}
		a.block = append(a.block, body...)
		a.block = append(a.block, '\r', '\n')

		a.sentenceSize = 0
	}

	return goodNMEA
}

// Flush emits the in-progress block if no bytes have arrived within the
// last idle duration and a non-empty block is pending.
func (a *Assembler) Flush(idle time.Duration) {
	if !a.haveActivity {
		return
	}
	if a.now().Sub(a.lastActivity) > idle && len(a.block) > 0 {
		a.emitBlock()
	}
}

func (a *Assembler) resetSentence() {
	a.sentenceSize = 0
}

func (a *Assembler) resetBlock() {
	a.block = a.block[:0]
	a.blockNMEATimeMs = 0
}

// emitBlock enqueues the in-progress block (plus trailing NUL) and resets
// block-accumulation state. Caller must ensure len(a.block) > 0.
func (a *Assembler) emitBlock() {
	payload := make([]byte, len(a.block)+1)
	copy(payload, a.block)
	payload[len(a.block)] = 0
	a.emitRaw(a.blockStartTime, payload)
	a.resetBlock()
}

func (a *Assembler) emitRaw(t time.Time, payload []byte) {
	buf, ok := a.pool.get(len(payload))
	if !ok {
		// Free-list exhausted: drop this block. Not surfaced to the host;
		// the next successful emission resumes normal flow.
		return
	}
	n := copy(buf, payload)
	select {
	case a.queue <- Block{Time: t, Payload: buf[:n]}:
	default:
		// Queue full (consumer stalled): drop rather than block the reader.
		a.pool.put(buf)
	}
}

func (a *Assembler) emit() {
	defer a.wg.Done()
	for {
		select {
		case blk := <-a.queue:
			a.dispatch(blk)
		case <-time.After(emitterPopTimeout):
		case <-a.done:
			// Drain whatever is already queued before exiting so a Close
			// immediately after Submit does not silently drop data.
			for {
				select {
				case blk := <-a.queue:
					a.dispatch(blk)
					continue
				default:
				}
				return
			}
		}
	}
}

func (a *Assembler) dispatch(blk Block) {
	defer func() {
		// User callbacks must never raise into the emitter goroutine.
		_ = recover()
		a.pool.put(blk.Payload)
	}()
	a.listener.OnBlock(blk)
}

// bufferPool is a bounded, mutex-guarded free-list of reusable byte slices.
// sync.Pool fits neither requirement here: it does not bound its size and
// does not keep entries across a GC cycle, while this pool must hold exactly
// numBuffers buffers at rest.
type bufferPool struct {
	mu   sync.Mutex
	free [][]byte
	size int
}

func newBufferPool(n, size int) *bufferPool {
	p := &bufferPool{size: size}
	for i := 0; i < n; i++ {
		p.free = append(p.free, make([]byte, size))
	}
	return p
}

func (p *bufferPool) get(need int) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.free)
	if n == 0 {
		return nil, false
	}
	buf := p.free[n-1]
	p.free = p.free[:n-1]
	if cap(buf) < need {
		buf = make([]byte, need)
	}
	return buf[:need], true
}

func (p *bufferPool) put(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= numBuffers {
		return
	}
	p.free = append(p.free, buf[:cap(buf)])
}
