package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/srg/crafty/internal/device"
)

// OpKind is the kind of a recorded peripheral operation.
type OpKind string

const (
	OpRead        OpKind = "read"
	OpWrite       OpKind = "write"
	OpSubscribe   OpKind = "subscribe"
	OpUnsubscribe OpKind = "unsubscribe"
)

// Op is one recorded characteristic operation.
type Op struct {
	Kind OpKind
	UUID string
	Data []byte
}

// Peripheral is an in-memory GATT peripheral. It implements device.Central and
// records every characteristic operation for later assertions.
type Peripheral struct {
	name        string
	address     string
	discoverErr error
	dialErr     error
	neighbours  []device.Advertisement

	services []*fakeService
	chars    map[string]*fakeCharacteristic

	mu          sync.Mutex
	conn        *fakeConnection
	ops         []Op
	dials       int
	disconnects int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

var (
	_ device.Central = (*Peripheral)(nil)
	_ device.Scanner = (*Peripheral)(nil)
)

// Discover returns the peripheral's advertisement when opts accept it. Otherwise it
// blocks until ctx is done, like a scan that never sees a match.
func (p *Peripheral) Discover(ctx context.Context, opts device.DiscoverOptions) (device.Advertisement, error) {
	if p.discoverErr != nil {
		return device.Advertisement{}, p.discoverErr
	}

	adv := p.advertisement()
	if !opts.Matches(adv.Name, adv.Services) {
		<-ctx.Done()
		return device.Advertisement{}, ctx.Err()
	}
	return adv, nil
}

// Scan reports the peripheral's own advertisement and its neighbours, then blocks
// until ctx is done. The discover error, if set, fails the scan.
func (p *Peripheral) Scan(ctx context.Context, fn func(device.Advertisement)) error {
	if p.discoverErr != nil {
		return p.discoverErr
	}
	fn(p.advertisement())
	for _, adv := range p.neighbours {
		fn(adv)
	}
	<-ctx.Done()
	return nil
}

func (p *Peripheral) advertisement() device.Advertisement {
	services := make([]string, 0, len(p.services))
	for _, s := range p.services {
		services = append(services, s.uuid)
	}
	return device.Advertisement{Name: p.name, Address: p.address, RSSI: -42, Services: services}
}

// Dial opens a new fake connection.
func (p *Peripheral) Dial(ctx context.Context, address string) (device.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.dialErr != nil {
		return nil, p.dialErr
	}
	if address != p.address {
		return nil, fmt.Errorf("no peripheral at %s", address)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.isClosed() {
		return nil, device.ErrAlreadyConnected
	}
	p.dials++
	p.conn = &fakeConnection{p: p, closed: make(chan struct{})}
	return p.conn, nil
}

// Drop simulates an unsolicited link loss.
func (p *Peripheral) Drop() {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn != nil {
		conn.close()
	}
}

// Connected reports whether a connection is open.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.isClosed()
}

// Dials returns how many connections were opened.
func (p *Peripheral) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// Disconnects returns how many times Disconnect was called on a connection.
func (p *Peripheral) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

// Notify delivers data to every subscriber of the characteristic, synchronously
// on the calling goroutine. It returns the number of callbacks invoked.
func (p *Peripheral) Notify(uuid string, data []byte) int {
	c := p.char(uuid)
	c.mu.Lock()
	fns := make([]func([]byte), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		buf := append([]byte(nil), data...)
		fn(buf)
		// the transport reuses its buffer once the callback returns
		for i := range buf {
			buf[i] = 0xff
		}
	}
	return len(fns)
}

// Subscribed reports whether the characteristic has an active subscription.
func (p *Peripheral) Subscribed(uuid string) bool {
	c := p.char(uuid)
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs) > 0
}

// SetValue replaces the stored value of a characteristic.
func (p *Peripheral) SetValue(uuid string, value []byte) {
	c := p.char(uuid)
	c.mu.Lock()
	c.value = append([]byte(nil), value...)
	c.mu.Unlock()
}

// Value returns a copy of the stored value of a characteristic.
func (p *Peripheral) Value(uuid string) []byte {
	c := p.char(uuid)
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...)
}

// Ops returns every recorded operation in order.
func (p *Peripheral) Ops() []Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Op(nil), p.ops...)
}

// OpsOf returns the recorded operations of the given kind.
func (p *Peripheral) OpsOf(kind OpKind) []Op {
	var out []Op
	for _, op := range p.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Writes returns every payload written to the characteristic.
func (p *Peripheral) Writes(uuid string) [][]byte {
	key := device.NormalizeUUID(uuid)
	var out [][]byte
	for _, op := range p.OpsOf(OpWrite) {
		if op.UUID == key {
			out = append(out, op.Data)
		}
	}
	return out
}

// MaxConcurrentIO returns the highest number of reads and writes observed in flight at once.
func (p *Peripheral) MaxConcurrentIO() int {
	return int(p.maxInFlight.Load())
}

func (p *Peripheral) char(uuid string) *fakeCharacteristic {
	c, ok := p.chars[device.NormalizeUUID(uuid)]
	if !ok {
		panic(fmt.Sprintf("characteristic %s is not configured", uuid))
	}
	return c
}

func (p *Peripheral) record(kind OpKind, uuid string, data []byte) {
	p.mu.Lock()
	p.ops = append(p.ops, Op{Kind: kind, UUID: uuid, Data: append([]byte(nil), data...)})
	p.mu.Unlock()
}

func (p *Peripheral) beginIO() {
	n := p.inFlight.Add(1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			return
		}
	}
}

func (p *Peripheral) endIO() {
	p.inFlight.Add(-1)
}

func (p *Peripheral) connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.isClosed()
}

type fakeConnection struct {
	p      *Peripheral
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConnection) Address() string { return c.p.address }

func (c *fakeConnection) GetService(ctx context.Context, uuid string) (device.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.isClosed() {
		return nil, device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	for _, s := range c.p.services {
		if s.uuid == key {
			return s, nil
		}
	}
	return nil, &device.NotFoundError{Resource: device.ResourceService, UUIDs: []string{uuid}}
}

func (c *fakeConnection) Disconnected() <-chan struct{} { return c.closed }

func (c *fakeConnection) Disconnect() error {
	c.p.mu.Lock()
	c.p.disconnects++
	c.p.mu.Unlock()
	c.close()
	return nil
}

func (c *fakeConnection) close() {
	c.once.Do(func() {
		for _, ch := range c.p.chars {
			ch.mu.Lock()
			ch.subs = make(map[int]func([]byte))
			ch.mu.Unlock()
		}
		close(c.closed)
	})
}

func (c *fakeConnection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeService struct {
	p     *Peripheral
	uuid  string
	chars []*fakeCharacteristic
}

func (s *fakeService) UUID() string { return s.uuid }

func (s *fakeService) GetCharacteristic(ctx context.Context, uuid string) (device.Characteristic, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.p.connected() {
		return nil, device.ErrNotConnected
	}
	key := device.NormalizeUUID(uuid)
	for _, c := range s.chars {
		if c.uuid == key {
			return c, nil
		}
	}
	return nil, &device.NotFoundError{Resource: device.ResourceCharacteristic, UUIDs: []string{s.uuid, uuid}}
}

type fakeCharacteristic struct {
	p     *Peripheral
	uuid  string
	props device.Properties

	readErr      error
	writeErr     error
	subscribeErr error
	delay        time.Duration
	writeHook    func([]byte) error

	mu      sync.Mutex
	value   []byte
	subs    map[int]func([]byte)
	nextSub int
}

func (c *fakeCharacteristic) UUID() string                  { return c.uuid }
func (c *fakeCharacteristic) Properties() device.Properties { return c.props }

func (c *fakeCharacteristic) Read(ctx context.Context) ([]byte, error) {
	c.p.beginIO()
	defer c.p.endIO()

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if !c.p.connected() {
		return nil, device.ErrNotConnected
	}
	c.p.record(OpRead, c.uuid, nil)
	if c.readErr != nil {
		return nil, c.readErr
	}
	if !c.props.Has(device.PropRead) {
		return nil, fmt.Errorf("characteristic %s is not readable", c.uuid)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...), nil
}

func (c *fakeCharacteristic) Write(ctx context.Context, data []byte, _ bool) error {
	c.p.beginIO()
	defer c.p.endIO()

	if err := c.wait(ctx); err != nil {
		return err
	}
	if !c.p.connected() {
		return device.ErrNotConnected
	}
	c.p.record(OpWrite, c.uuid, data)
	if c.writeHook != nil {
		if err := c.writeHook(data); err != nil {
			return err
		}
	}
	if c.writeErr != nil {
		return c.writeErr
	}

	c.mu.Lock()
	c.value = append([]byte(nil), data...)
	c.mu.Unlock()
	return nil
}

func (c *fakeCharacteristic) Subscribe(fn func(data []byte)) (device.Subscription, error) {
	if !c.p.connected() {
		return nil, device.ErrNotConnected
	}
	if !c.props.CanNotify() {
		return nil, fmt.Errorf("characteristic %s does not support notifications: %w", c.uuid, device.ErrUnsupported)
	}
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	c.mu.Unlock()

	c.p.record(OpSubscribe, c.uuid, nil)
	return &fakeSubscription{c: c, id: id}, nil
}

func (c *fakeCharacteristic) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type fakeSubscription struct {
	c    *fakeCharacteristic
	id   int
	once sync.Once
}

func (s *fakeSubscription) Cancel() error {
	s.once.Do(func() {
		s.c.mu.Lock()
		_, ok := s.c.subs[s.id]
		delete(s.c.subs, s.id)
		s.c.mu.Unlock()
		if ok {
			s.c.p.record(OpUnsubscribe, s.c.uuid, nil)
		}
	})
	return nil
}
