package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fundori/fundori/internal/model"
)

// State はセッションオブザーバーの状態。
type State string

const (
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// StateOf はユーザーの有無から状態を決定する。
func StateOf(user *model.User) State {
	if user != nil {
		return StateAuthenticated
	}
	return StateUnauthenticated
}

// Snapshot はオブザーバーのある時点の状態。
type Snapshot struct {
	State State
	User  *model.User
}

// Loading は初期化中かどうかを返す。
func (s Snapshot) Loading() bool {
	return s.State == StateInitializing
}

// SessionSource はオブザーバーが必要とするセッションの取得元。
type SessionSource interface {
	GetSession(ctx context.Context, clientID string) (*model.Session, error)
	Subscribe(clientID string) *Subscription
}

// ObserverRecorder はアクティブなオブザーバー数を記録するインターフェース。
type ObserverRecorder interface {
	ObserverStarted()
	ObserverStopped()
}

// Observer はクライアントの認証状態をミラーする。
// 起動時にセッションを1回取得し、以後は認証イベントを購読し続ける。
// 状態は到着順に適用され、最後に到着したものが勝つ。
type Observer struct {
	source   SessionSource
	clientID string
	logger   *slog.Logger
	recorder ObserverRecorder

	mu      sync.Mutex
	state   State
	user    *model.User
	started bool
	closed  bool
	sub     *Subscription
	updates chan Snapshot
}

// NewObserver はObserverを生成する。Startを呼ぶまで状態はInitializingのまま。
func NewObserver(source SessionSource, clientID string, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		source:   source,
		clientID: clientID,
		logger:   logger,
		state:    StateInitializing,
		updates:  make(chan Snapshot, 1),
	}
}

// SetRecorder はメトリクス記録先を設定する。Startより前に呼ぶ。
func (o *Observer) SetRecorder(r ObserverRecorder) {
	o.recorder = r
}

// Start は認証イベントの購読を開始し、初回のセッション取得をバックグラウンドで行う。
// 初回取得より先に届いたイベントも取りこぼさないよう、購読を先に行う。
// 2回目以降の呼び出しは何もしない。
func (o *Observer) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started || o.closed {
		o.mu.Unlock()
		return
	}
	o.started = true
	o.sub = o.source.Subscribe(o.clientID)
	sub := o.sub
	o.mu.Unlock()

	if o.recorder != nil {
		o.recorder.ObserverStarted()
	}

	go o.listen(sub)
	go o.loadInitial(ctx)
}

// listen は購読が解除されるまでイベントを適用する。
func (o *Observer) listen(sub *Subscription) {
	for event := range sub.C {
		o.apply(event.User())
	}
}

// loadInitial は初回のセッション取得を行う。
// エラーや未構成の場合も含め、必ずInitializingを抜ける。
func (o *Observer) loadInitial(ctx context.Context) {
	session, err := o.source.GetSession(ctx, o.clientID)
	if err != nil {
		o.logger.Error("failed to get initial session",
			slog.String("client_id", o.clientID),
			slog.String("error", err.Error()),
		)
		o.apply(nil)
		return
	}

	var user *model.User
	if session != nil {
		user = session.User
	}
	o.apply(user)
}

// apply は状態を更新し、最新のスナップショットを配信する。
// Close後に届いた更新は破棄する。
func (o *Observer) apply(user *model.User) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.state = StateOf(user)
	o.user = user

	snap := Snapshot{State: o.state, User: o.user}
	select {
	case o.updates <- snap:
		return
	default:
	}
	select {
	case <-o.updates:
	default:
	}
	o.updates <- snap
}

// Snapshot は現在の状態を返す。
func (o *Observer) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{State: o.state, User: o.user}
}

// Updates は状態変化のたびに最新スナップショットを受け取るチャネルを返す。
// 未読のスナップショットは新しいもので置き換えられる。Close後にクローズされる。
func (o *Observer) Updates() <-chan Snapshot {
	return o.updates
}

// Close は購読を解除し、以後の更新を破棄する。複数回呼んでも安全。
func (o *Observer) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	sub := o.sub
	started := o.started
	close(o.updates)
	o.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
	if started && o.recorder != nil {
		o.recorder.ObserverStopped()
	}
}
