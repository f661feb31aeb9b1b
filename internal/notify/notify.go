// Package notify はクライアント向けのステータス通知（トースト）を提供する。
//
// 通知は投げっぱなしで、送信側は結果を待たない。
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Severity は通知の重要度。
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// Notification は1件の通知。
type Notification struct {
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// Emitter は通知の送信インターフェース。
type Emitter interface {
	Emit(clientID string, severity Severity, message string)
}

// DefaultInboxCapacity はクライアントごとに保持する通知の上限。
const DefaultInboxCapacity = 20

// DefaultInboxTTL は取り出されないキューを保持する期間の既定値。
const DefaultInboxTTL = 30 * time.Minute

// Inbox はクライアントごとの通知キュー。
// 上限を超えた場合は古いものから捨てる。
// StartEviction を呼ぶと、一定期間通知の無いキューはまとめて捨てられる。
type Inbox struct {
	mu       sync.Mutex
	capacity int
	queues   map[string][]Notification
	now      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	started  sync.Once
}

// NewInbox はInboxを生成する。capacityが0以下の場合はDefaultInboxCapacityを使う。
func NewInbox(capacity int) *Inbox {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	return &Inbox{
		capacity: capacity,
		queues:   make(map[string][]Notification),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// StartEviction は最後の通知からttlを超えたキューを捨てるバックグラウンド処理を開始する。
// 2回目以降の呼び出しは無視される。ttlが0以下の場合はDefaultInboxTTLを使う。
func (b *Inbox) StartEviction(ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultInboxTTL
	}
	b.started.Do(func() {
		go b.evictionLoop(ttl)
	})
}

// Stop はバックグラウンド処理を停止する。複数回呼んでも安全。
func (b *Inbox) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Len は保持中のキューの数を返す。
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues)
}

func (b *Inbox) evictionLoop(ttl time.Duration) {
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.evictOlderThan(ttl, b.now())
		case <-b.stopCh:
			return
		}
	}
}

// evictOlderThan は最新の通知がttlより古いキューを削除する。
func (b *Inbox) evictOlderThan(ttl time.Duration, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	evicted := 0
	for clientID, q := range b.queues {
		if len(q) == 0 || now.Sub(q[len(q)-1].CreatedAt) > ttl {
			delete(b.queues, clientID)
			evicted++
		}
	}
	if evicted > 0 {
		slog.Debug("abandoned notification queues evicted", slog.Int("count", evicted))
	}
}

// Emit は通知をキューに追加する。
func (b *Inbox) Emit(clientID string, severity Severity, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := append(b.queues[clientID], Notification{
		Severity:  severity,
		Message:   message,
		CreatedAt: b.now(),
	})
	if len(q) > b.capacity {
		q = q[len(q)-b.capacity:]
	}
	b.queues[clientID] = q
}

// Drain はクライアントの通知を古い順に取り出し、キューを空にする。
func (b *Inbox) Drain(clientID string) []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.queues[clientID]
	delete(b.queues, clientID)
	if q == nil {
		return []Notification{}
	}
	return q
}

// LogEmitter は通知をslogに出力する。
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter はLogEmitterを生成する。loggerがnilの場合はslog.Default()を使う。
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit は通知をログに記録する。errorはWarnレベル、それ以外はInfoレベル。
func (e *LogEmitter) Emit(clientID string, severity Severity, message string) {
	level := slog.LevelInfo
	if severity == SeverityError {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "notification",
		slog.String("client_id", clientID),
		slog.String("severity", string(severity)),
		slog.String("message", message),
	)
}

// Fanout は複数のEmitterへ同じ通知を送る。
type Fanout []Emitter

// Emit はすべてのEmitterへ通知する。nilは無視する。
func (f Fanout) Emit(clientID string, severity Severity, message string) {
	for _, e := range f {
		if e != nil {
			e.Emit(clientID, severity, message)
		}
	}
}

// Discard は通知を捨てるEmitter。
type Discard struct{}

// Emit は何もしない。
func (Discard) Emit(string, Severity, string) {}

// compile-time interface checks
var (
	_ Emitter = (*Inbox)(nil)
	_ Emitter = (*LogEmitter)(nil)
	_ Emitter = Fanout(nil)
	_ Emitter = Discard{}
)
