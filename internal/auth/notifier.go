package auth

import (
	"sync"

	"github.com/fundori/fundori/internal/model"
)

// Notifier はクライアント単位の認証状態変化ストリームを提供する。
// 購読ごとに1件分のバッファを持ち、未読のイベントは最新のもので上書きされる。
type Notifier struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]chan model.AuthEvent
}

// NewNotifier はNotifierを生成する。
func NewNotifier() *Notifier {
	return &Notifier{
		subs: make(map[string]map[uint64]chan model.AuthEvent),
	}
}

// Subscription は認証イベントの購読。
// Unsubscribeを呼ぶとCはクローズされる。
type Subscription struct {
	C <-chan model.AuthEvent

	notifier *Notifier
	clientID string
	id       uint64
	once     sync.Once
}

// Subscribe はクライアントの認証イベントを購読する。
func (n *Notifier) Subscribe(clientID string) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	ch := make(chan model.AuthEvent, 1)

	clientSubs, ok := n.subs[clientID]
	if !ok {
		clientSubs = make(map[uint64]chan model.AuthEvent)
		n.subs[clientID] = clientSubs
	}
	clientSubs[n.nextID] = ch

	return &Subscription{
		C:        ch,
		notifier: n,
		clientID: clientID,
		id:       n.nextID,
	}
}

// Unsubscribe は購読を解除する。複数回呼んでも安全。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.notifier.remove(s.clientID, s.id)
	})
}

// Publish はクライアントの全購読者にイベントを配信する。
// 購読者が未読のイベントを持つ場合は最新のイベントに置き換える。ブロックしない。
func (n *Notifier) Publish(clientID string, event model.AuthEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.subs[clientID] {
		select {
		case ch <- event:
			continue
		default:
		}
		// 未読イベントを捨てて最新を入れる
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount はクライアントの購読数を返す。テストおよびメトリクス用。
func (n *Notifier) SubscriberCount(clientID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[clientID])
}

func (n *Notifier) remove(clientID string, id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	clientSubs, ok := n.subs[clientID]
	if !ok {
		return
	}
	if ch, ok := clientSubs[id]; ok {
		close(ch)
		delete(clientSubs, id)
	}
	if len(clientSubs) == 0 {
		delete(n.subs, clientID)
	}
}
