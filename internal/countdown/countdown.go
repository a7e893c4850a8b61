// Package countdown は試験日までの残り日数を計算するウィジェットを提供する。
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DateLayout は試験日の設定値の書式。
const DateLayout = "2006-01-02"

// DefaultFlashDuration はJustChangedが立っている時間。
const DefaultFlashDuration = time.Second

// DaysRemaining はtodayからtargetまでの暦日数を返す。
// 両者ともtodayのロケーションにおける日付で比較するため、夏時間の切り替えの影響を受けない。
// targetを過ぎている場合は負の値を返す。
func DaysRemaining(target, today time.Time) int {
	loc := today.Location()
	t := target.In(loc)

	ty, tm, td := t.Date()
	ny, nm, nd := today.Date()

	targetDay := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	todayDay := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)

	return int(targetDay.Sub(todayDay) / (24 * time.Hour))
}

// ParseTarget は"2006-01-02"形式の日付をloc上の0時として解釈する。
func ParseTarget(date string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid exam date %q: %w", date, err)
	}
	return t, nil
}

// State はウィジェットのある時点の状態。
type State struct {
	TargetDate    time.Time `json:"-"`
	DaysRemaining int       `json:"days_remaining"`
	JustChanged   bool      `json:"just_changed"`
}

// Passed は試験日を過ぎているかどうかを返す。
func (s State) Passed() bool {
	return s.DaysRemaining < 0
}

// Widget は試験日までの残り日数を保持し、24時間ごとに再計算する。
type Widget struct {
	target   time.Time
	loc      *time.Location
	now      func() time.Time
	interval time.Duration
	flash    time.Duration

	mu          sync.Mutex
	days        int
	justChanged bool
	flashTimer  *time.Timer
	started     bool
}

// Option はWidgetの任意設定。
type Option func(*Widget)

// WithClock は現在時刻の取得関数を設定する。
func WithClock(now func() time.Time) Option {
	return func(w *Widget) { w.now = now }
}

// WithInterval は再計算の間隔を設定する。
func WithInterval(d time.Duration) Option {
	return func(w *Widget) { w.interval = d }
}

// WithFlashDuration はJustChangedが立っている時間を設定する。
func WithFlashDuration(d time.Duration) Option {
	return func(w *Widget) { w.flash = d }
}

// NewWidget はWidgetを生成する。locがnilの場合はUTCを使用する。
func NewWidget(target time.Time, loc *time.Location, opts ...Option) *Widget {
	if loc == nil {
		loc = time.UTC
	}
	w := &Widget{
		target:   target,
		loc:      loc,
		now:      time.Now,
		interval: 24 * time.Hour,
		flash:    DefaultFlashDuration,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start は残り日数を計算し、ctxがキャンセルされるまで一定間隔で再計算する。
// 2回目以降の呼び出しは再計算のみ行う。
func (w *Widget) Start(ctx context.Context) {
	w.Recompute()

	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go w.loop(ctx)
}

func (w *Widget) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Recompute()
		case <-ctx.Done():
			w.mu.Lock()
			if w.flashTimer != nil {
				w.flashTimer.Stop()
			}
			w.mu.Unlock()
			return
		}
	}
}

// Recompute は現在時刻から残り日数を再計算する。
// 値が変化した場合は一定時間JustChangedを立てる。
func (w *Widget) Recompute() int {
	days := DaysRemaining(w.target, w.now().In(w.loc))

	w.mu.Lock()
	defer w.mu.Unlock()

	if days != w.days {
		w.days = days
		w.justChanged = true
		if w.flashTimer != nil {
			w.flashTimer.Stop()
		}
		w.flashTimer = time.AfterFunc(w.flash, w.clearFlash)
	}
	return days
}

func (w *Widget) clearFlash() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.justChanged = false
}

// Snapshot は現在の状態を返す。
func (w *Widget) Snapshot() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return State{
		TargetDate:    w.target,
		DaysRemaining: w.days,
		JustChanged:   w.justChanged,
	}
}

// Target は試験日を返す。
func (w *Widget) Target() time.Time {
	return w.target
}
