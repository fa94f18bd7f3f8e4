package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Malixamran-01/MissMinutes/internal/model"
	"github.com/Malixamran-01/MissMinutes/internal/repository/sqlite"
	"github.com/Malixamran-01/MissMinutes/pkg/util"
)

// manualClock 手动推进的时间
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type sent struct {
	userID  int64
	orgID   int64
	channel bool
	msg     model.Message
}

var errDeliveryDown = errors.New("delivery endpoint unavailable")

// fakeNotifier 记录投递，可注入失败或阻塞
type fakeNotifier struct {
	mu    sync.Mutex
	sent  []sent
	fail  int  // 接下来 fail 次 SendDirect 返回错误
	block bool // SendDirect 阻塞直到 ctx 结束
}

func (n *fakeNotifier) SendDirect(ctx context.Context, userID int64, msg model.Message) error {
	n.mu.Lock()
	block := n.block
	if n.fail > 0 {
		n.fail--
		n.mu.Unlock()
		return errDeliveryDown
	}
	n.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	n.mu.Lock()
	n.sent = append(n.sent, sent{userID: userID, msg: msg})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) SendToChannel(_ context.Context, orgID int64, msg model.Message) error {
	n.mu.Lock()
	n.sent = append(n.sent, sent{orgID: orgID, channel: true, msg: msg})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) setFail(count int) {
	n.mu.Lock()
	n.fail = count
	n.mu.Unlock()
}

func (n *fakeNotifier) setBlock(v bool) {
	n.mu.Lock()
	n.block = v
	n.mu.Unlock()
}

func (n *fakeNotifier) ofKind(kind model.MessageKind) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.sent {
		if s.msg.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

type harness struct {
	store    *sqlite.Store
	clock    *manualClock
	orgClock *OrgClock
	notifier *fakeNotifier
	claims   *util.LocalDeduper
	backoff  *util.LocalRetryCounter
	karma    *KarmaScorer
	engine   *Lifecycle
}

func newHarness(t *testing.T, start time.Time) *harness {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tasks.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	clock := &manualClock{now: start}
	orgClock := NewOrgClock(clock.Now, time.UTC, nil)
	notifier := &fakeNotifier{}
	karma := NewKarmaScorer(store, orgClock, DefaultKarmaPolicy(), zap.NewNop())

	return &harness{
		store:    store,
		clock:    clock,
		orgClock: orgClock,
		notifier: notifier,
		claims:   util.NewLocalDeduper(time.Hour, clock.Now),
		backoff:  util.NewLocalRetryCounter(time.Minute, time.Hour),
		karma:    karma,
		engine:   NewLifecycle(store, karma, notifier, orgClock, zap.NewNop()),
	}
}

func (h *harness) reminder(cfg DeliveryConfig) *ReminderScheduler {
	return NewReminderScheduler(h.store, h.notifier, h.orgClock, h.claims, h.backoff, DefaultReminderWindow, cfg, zap.NewNop())
}

func (h *harness) escalator(cfg DeliveryConfig) *DeadlineEscalator {
	return NewDeadlineEscalator(h.store, h.notifier, h.orgClock, h.claims, h.backoff, h.karma, cfg, zap.NewNop())
}

func (h *harness) createTask(t *testing.T, org, assignee int64, deadline time.Time) *model.Task {
	t.Helper()
	task, err := h.engine.CreateTask(context.Background(), model.NewTask{
		Title:      "ship release notes",
		AssigneeID: assignee,
		AssignerID: 1,
		OrgID:      org,
		Deadline:   deadline,
	})
	if err != nil {
		t.Fatalf("CreateTask() error: %v", err)
	}
	return task
}

func (h *harness) task(t *testing.T, id int64) *model.Task {
	t.Helper()
	task, err := h.store.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%d) error: %v", id, err)
	}
	return task
}

var errStoreDown = errors.New("store unreachable")

// faultyStore 在真实 sqlite 存储上按方法注入错误
type faultyStore struct {
	*sqlite.Store

	mu         sync.Mutex
	getTaskErr error
	listErr    error
	listOrgErr map[int64]error // 只影响指定组织的 ListTasks
	upsertFail int             // 接下来 upsertFail 次 UpsertStats 失败
}

func newFaultyStore(s *sqlite.Store) *faultyStore {
	return &faultyStore{Store: s, listOrgErr: make(map[int64]error)}
}

func (f *faultyStore) set(fn func(f *faultyStore)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *faultyStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	f.mu.Lock()
	err := f.getTaskErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.GetTask(ctx, id)
}

func (f *faultyStore) ListTasks(ctx context.Context, filter model.TaskFilter) ([]model.Task, error) {
	f.mu.Lock()
	err := f.listErr
	if orgErr, ok := f.listOrgErr[filter.OrgID]; ok && filter.OrgID != 0 {
		err = orgErr
	}
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ListTasks(ctx, filter)
}

func (f *faultyStore) UpsertStats(ctx context.Context, userID, orgID int64, delta model.StatsDelta, at time.Time) (*model.UserStats, error) {
	f.mu.Lock()
	fail := f.upsertFail > 0
	if fail {
		f.upsertFail--
	}
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.Store.UpsertStats(ctx, userID, orgID, delta, at)
}
