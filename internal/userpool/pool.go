package userpool

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// registerWorkers bounds registration parallelism independently of the
// batch size.
const registerWorkers = 10

// Identity is a registered test user. Never mutated after creation and
// never removed from the pool.
type Identity struct {
	ID       int64
	Username string
	Password string
}

// Registrar registers one user with the remote service and returns the
// assigned user id. Satisfied by client.Client.
type Registrar interface {
	Register(ctx context.Context, username, password string) (int64, error)
}

// slot pairs an identity with its exclusive-use lock. At most one
// in-flight seckill attempt holds a given identity's lock at any time.
type slot struct {
	ident Identity
	mu    sync.Mutex
}

// Pool owns the identity set. The pool mutex guards insertion only;
// acquisition goes straight to the per-slot locks.
type Pool struct {
	mu    sync.RWMutex
	slots []*slot
	byID  map[int64]*slot

	reg Registrar
	log *zap.Logger
}

func New(reg Registrar, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		byID: make(map[int64]*slot),
		reg:  reg,
		log:  log,
	}
}

// RegisterBatch registers count users named <prefix>_<unix>_<idx> with
// randomized passwords, at most registerWorkers requests in flight at a
// time, and returns how many succeeded. Failed registrations are not
// retried; the pool simply ends up smaller than requested.
func (p *Pool) RegisterBatch(ctx context.Context, count int, prefix string) int {
	if count <= 0 {
		return 0
	}
	p.log.Info("registering users", zap.Int("count", count), zap.String("prefix", prefix))

	var registered atomic.Int64
	batchTS := time.Now().Unix()

	g := new(errgroup.Group)
	g.SetLimit(registerWorkers)
	for i := 0; i < count; i++ {
		g.Go(func() error {
			username := fmt.Sprintf("%s_%d_%d", prefix, batchTS, i)
			password := fmt.Sprintf("test%d", 100000+rand.Intn(900000))

			id, err := p.reg.Register(ctx, username, password)
			if err != nil {
				p.log.Warn("register failed", zap.String("username", username), zap.Error(err))
				return nil
			}
			p.add(Identity{ID: id, Username: username, Password: password})
			registered.Add(1)
			return nil
		})
	}
	g.Wait()

	got := int(registered.Load())
	p.log.Info("registration finished", zap.Int("registered", got), zap.Int("requested", count))
	return got
}

func (p *Pool) add(ident Identity) {
	s := &slot{ident: ident}
	p.mu.Lock()
	p.slots = append(p.slots, s)
	p.byID[ident.ID] = s
	p.mu.Unlock()
}

// Acquire returns an identity not currently held by any caller: it
// shuffles the known slots and takes the first whose lock it can grab
// without blocking. Returns false when every identity is in use. Never
// blocks.
func (p *Pool) Acquire() (Identity, bool) {
	p.mu.RLock()
	slots := make([]*slot, len(p.slots))
	copy(slots, p.slots)
	p.mu.RUnlock()

	rand.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	for _, s := range slots {
		if s.mu.TryLock() {
			return s.ident, true
		}
	}
	return Identity{}, false
}

// Release gives the identity back. Must be called exactly once per
// successful Acquire, including on the caller's error paths.
func (p *Pool) Release(id int64) {
	p.mu.RLock()
	s := p.byID[id]
	p.mu.RUnlock()
	if s != nil {
		s.mu.Unlock()
	}
}

// Size returns how many identities the pool holds.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.slots)
}

// Identities returns a snapshot of all identities in insertion order.
func (p *Pool) Identities() []Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Identity, len(p.slots))
	for i, s := range p.slots {
		out[i] = s.ident
	}
	return out
}

// Last returns the most recently registered identity.
func (p *Pool) Last() (Identity, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.slots) == 0 {
		return Identity{}, false
	}
	return p.slots[len(p.slots)-1].ident, true
}
