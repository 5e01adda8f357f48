// Package syncer brings the local store back in line with the server
// after every reconnection and then flushes the offline queue.
package syncer

//go:generate mockgen -destination=mock_syncer_test.go -package=syncer . Doer,RecoveryGate,QueueRunner,ChannelWatcher,ListWatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alexjbarnes/chat-sync/internal/api"
	errs "github.com/alexjbarnes/chat-sync/internal/errors"
	"github.com/alexjbarnes/chat-sync/internal/events"
	"github.com/alexjbarnes/chat-sync/internal/logging"
	"github.com/alexjbarnes/chat-sync/internal/models"
	"github.com/alexjbarnes/chat-sync/internal/retry"
	"github.com/alexjbarnes/chat-sync/internal/store"
)

const (
	// SyncCooldown is the minimum age of lastSyncAt before
	// SyncMissingEvents calls the server again.
	SyncCooldown = 6 * time.Second

	// ChannelBatchSize is how many channel ids go into one missed
	// events request.
	ChannelBatchSize = 100

	// maxAttempts bounds every network step of a pass.
	maxAttempts = 3
)

// ErrNoNeedToSync is returned by SyncMissingEvents when there is nothing
// to fetch yet.
var ErrNoNeedToSync = errors.New("no need to sync")

// Doer sends API requests.
type Doer interface {
	Do(ctx context.Context, ep api.Endpoint, result any) error
}

// RecoveryGate holds ordinary API traffic while a pass runs.
type RecoveryGate interface {
	EnterRecoveryMode()
	ExitRecoveryMode()
}

// QueueRunner replays the offline queue.
type QueueRunner interface {
	RunQueuedRequests(ctx context.Context) error
}

// ChannelWatcher is a live single-channel or livestream observer.
type ChannelWatcher interface {
	CID() string
	// HasFetched reports whether the watcher has loaded remote data.
	HasFetched() bool
	// Refresh reloads remote data for a watcher that already has some.
	Refresh(ctx context.Context) error
	// Watch subscribes to the channel for the first time.
	Watch(ctx context.Context) error
}

// ListWatcher is a live channel-list observer.
type ListWatcher interface {
	HasFetched() bool
	// Refresh re-runs the list query and returns the channel ids the
	// server returned. Those channels are watched by the query itself.
	Refresh(ctx context.Context) ([]string, error)
	// Watch runs the list query for the first time.
	Watch(ctx context.Context) ([]string, error)
}

// Options configures a Synchronizer.
type Options struct {
	Store *store.Store
	// Requests is the ordinary API path, used by SyncMissingEvents.
	Requests Doer
	// Recovery bypasses recovery mode and is used during passes.
	Recovery            Doer
	Gate                RecoveryGate
	Queue               QueueRunner
	Retry               retry.Strategy
	LocalStorageEnabled bool
	Logger              *slog.Logger
	// OnPass observes every finished pass.
	OnPass func(d time.Duration, err error)
}

// Synchronizer runs synchronization passes. Passes never overlap: a new
// pass cancels the previous one and waits for it to stop.
type Synchronizer struct {
	store        *store.Store
	requests     Doer
	recovery     Doer
	gate         RecoveryGate
	queue        QueueRunner
	retry        retry.Strategy
	localStorage bool
	logger       *slog.Logger
	onPass       func(time.Duration, error)

	passMu     sync.Mutex
	passCancel context.CancelFunc
	passDone   chan struct{}

	trackMu     sync.Mutex
	nextID      int
	channels    map[int]ChannelWatcher
	lists       map[int]ListWatcher
	livestreams map[int]ChannelWatcher
}

// New creates a Synchronizer.
func New(opts Options) *Synchronizer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	rs := opts.Retry
	if rs == nil {
		rs = retry.NewBackoff()
	}

	return &Synchronizer{
		store:        opts.Store,
		requests:     opts.Requests,
		recovery:     opts.Recovery,
		gate:         opts.Gate,
		queue:        opts.Queue,
		retry:        rs,
		localStorage: opts.LocalStorageEnabled,
		logger:       logger,
		onPass:       opts.OnPass,
		channels:     make(map[int]ChannelWatcher),
		lists:        make(map[int]ListWatcher),
		livestreams:  make(map[int]ChannelWatcher),
	}
}

func (s *Synchronizer) track(add func(id int)) func() {
	s.trackMu.Lock()
	id := s.nextID
	s.nextID++
	add(id)
	s.trackMu.Unlock()

	return func() {
		s.trackMu.Lock()
		delete(s.channels, id)
		delete(s.lists, id)
		delete(s.livestreams, id)
		s.trackMu.Unlock()
	}
}

// TrackChannel registers a channel watcher. The returned function
// unregisters it.
func (s *Synchronizer) TrackChannel(w ChannelWatcher) func() {
	return s.track(func(id int) { s.channels[id] = w })
}

// TrackChannelList registers a channel-list watcher.
func (s *Synchronizer) TrackChannelList(w ListWatcher) func() {
	return s.track(func(id int) { s.lists[id] = w })
}

// TrackLivestream registers a livestream watcher.
func (s *Synchronizer) TrackLivestream(w ChannelWatcher) func() {
	return s.track(func(id int) { s.livestreams[id] = w })
}

// Tracked returns the number of registered channel, list and livestream
// watchers.
func (s *Synchronizer) Tracked() (channels, lists, livestreams int) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	return len(s.channels), len(s.lists), len(s.livestreams)
}

func (s *Synchronizer) snapshotWatchers() ([]ListWatcher, []ChannelWatcher, []ChannelWatcher) {
	s.trackMu.Lock()
	defer s.trackMu.Unlock()

	lists := make([]ListWatcher, 0, len(s.lists))
	for _, w := range s.lists {
		lists = append(lists, w)
	}

	channels := make([]ChannelWatcher, 0, len(s.channels))
	for _, w := range s.channels {
		channels = append(channels, w)
	}

	live := make([]ChannelWatcher, 0, len(s.livestreams))
	for _, w := range s.livestreams {
		live = append(live, w)
	}

	return lists, channels, live
}

// CancelRecoveryFlow cancels the running pass, if any, without waiting.
func (s *Synchronizer) CancelRecoveryFlow() {
	s.passMu.Lock()
	cancel := s.passCancel
	s.passMu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// LogOut cancels the running pass, forgets every watcher and releases
// held API traffic.
func (s *Synchronizer) LogOut() {
	s.passMu.Lock()
	cancel, done := s.passCancel, s.passDone
	s.passMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.trackMu.Lock()
	s.channels = make(map[int]ChannelWatcher)
	s.lists = make(map[int]ListWatcher)
	s.livestreams = make(map[int]ChannelWatcher)
	s.trackMu.Unlock()

	s.gate.ExitRecoveryMode()
}

// passContext tracks the channels refreshed during one pass.
type passContext struct {
	localChannelIDs             []string
	synchedChannelIDs           map[string]struct{}
	watchedAndSynchedChannelIDs map[string]struct{}
	newestEventAt               time.Time
}

func (p *passContext) skip(cid string) bool {
	_, synched := p.synchedChannelIDs[cid]
	_, watched := p.watchedAndSynchedChannelIDs[cid]

	return synched || watched
}

// SyncLocalState runs one pass and returns when it ends. A pass already
// in flight is cancelled first.
func (s *Synchronizer) SyncLocalState(ctx context.Context) error {
	passCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.passMu.Lock()
	prevCancel, prevDone := s.passCancel, s.passDone
	s.passCancel, s.passDone = cancel, done
	s.passMu.Unlock()

	defer func() {
		cancel()

		s.passMu.Lock()
		if s.passDone == done {
			s.passCancel, s.passDone = nil, nil
		}
		s.passMu.Unlock()

		close(done)
	}()

	if prevCancel != nil {
		s.logger.Debug("superseding running sync pass")
		prevCancel()
		<-prevDone
	}

	start := time.Now()
	err := s.runPass(passCtx)

	if s.onPass != nil {
		s.onPass(time.Since(start), err)
	}

	if err != nil {
		s.logger.Warn("sync pass failed",
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)

		return err
	}

	s.logger.Info("sync pass complete", slog.Duration("elapsed", time.Since(start)))

	return nil
}

func (s *Synchronizer) runPass(ctx context.Context) error {
	if !s.localStorage {
		return s.runQueue(ctx)
	}

	s.gate.EnterRecoveryMode()
	defer s.gate.ExitRecoveryMode()

	pc := &passContext{
		synchedChannelIDs:           make(map[string]struct{}),
		watchedAndSynchedChannelIDs: make(map[string]struct{}),
	}

	var user *models.CurrentUser

	err := s.store.View(func(tx *store.Tx) error {
		var err error
		if user, err = tx.CurrentUser(); err != nil {
			return err
		}

		pc.localChannelIDs, err = tx.ChannelIDs()

		return err
	})
	if err != nil {
		return fmt.Errorf("reading local state: %w", err)
	}

	if err := s.syncEvents(ctx, pc, user); err != nil {
		return err
	}

	if err := s.rewatch(ctx, pc); err != nil {
		return err
	}

	if err := s.runQueue(ctx); err != nil {
		return err
	}

	if pc.newestEventAt.IsZero() {
		return nil
	}

	return s.store.Write(func(tx *store.Tx) error {
		return tx.AdvanceLastSyncAt(pc.newestEventAt)
	})
}

// syncEvents fetches missed events for every local channel.
func (s *Synchronizer) syncEvents(ctx context.Context, pc *passContext, user *models.CurrentUser) error {
	if user == nil || len(pc.localChannelIDs) == 0 {
		return nil
	}

	if user.LastSyncAt == nil {
		s.logger.Info("no lastSyncAt, starting sync cursor now")

		return s.store.Write(func(tx *store.Tx) error {
			return tx.AdvanceLastSyncAt(time.Now())
		})
	}

	newest, synched, err := s.fetchMissingEvents(ctx, s.recovery, *user.LastSyncAt, pc.localChannelIDs)
	if errors.Is(err, errs.ErrTooManyEvents) {
		s.logger.Warn("too many missed events, list watchers will refresh instead")
		pc.newestEventAt = time.Now()

		return nil
	}

	if err != nil {
		return err
	}

	pc.newestEventAt = newest
	for _, cid := range synched {
		pc.synchedChannelIDs[cid] = struct{}{}
	}

	return nil
}

// fetchMissingEvents requests events after since in channel batches and
// applies each batch to the store in one transaction. It returns the
// newest event time and the channel ids that were synchronized.
func (s *Synchronizer) fetchMissingEvents(ctx context.Context, doer Doer, since time.Time, cids []string) (time.Time, []string, error) {
	var (
		newest  time.Time
		synched []string
	)

	for start := 0; start < len(cids); start += ChannelBatchSize {
		batch := cids[start:min(start+ChannelBatchSize, len(cids))]

		var resp api.MissingEventsResponse

		err := s.attempt(ctx, "missing events", func() error {
			resp = api.MissingEventsResponse{}
			return doer.Do(ctx, api.MissingEvents(since, batch), &resp)
		})
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("fetching missed events: %w", err)
		}

		err = s.store.Write(func(tx *store.Tx) error {
			for _, ev := range resp.Events {
				if err := events.Apply(tx, ev); err != nil {
					return fmt.Errorf("applying %s: %w", ev.Type, err)
				}
			}

			return nil
		})
		if err != nil {
			return time.Time{}, nil, fmt.Errorf("storing missed events: %w", err)
		}

		for _, ev := range resp.Events {
			if ev.CreatedAt.After(newest) {
				newest = ev.CreatedAt
			}
		}

		synched = append(synched, batch...)

		s.logger.Debug("missed events applied",
			slog.Int("channels", len(batch)),
			slog.Int("events", len(resp.Events)),
		)
	}

	return newest, synched, nil
}

// attempt runs fn up to maxAttempts times, waiting the retry strategy's
// delay between attempts. Errors that retrying cannot fix return at once.
func (s *Synchronizer) attempt(ctx context.Context, what string, fn func() error) error {
	var err error

	for i := range maxAttempts {
		if err = fn(); err == nil {
			s.retry.ResetConsecutiveFailures()
			return nil
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, errs.ErrTooManyEvents) || i == maxAttempts-1 {
			break
		}

		delay := s.retry.NextRetryDelay()
		s.logger.Debug("retrying sync step",
			slog.String("step", what),
			slog.Int("attempt", i+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return err
}

// rewatch refreshes list watchers first so the channels they return are
// not watched a second time, then channel and livestream watchers.
func (s *Synchronizer) rewatch(ctx context.Context, pc *passContext) error {
	lists, channels, live := s.snapshotWatchers()

	for _, w := range lists {
		var cids []string

		err := s.attempt(ctx, "channel list", func() error {
			var err error
			if w.HasFetched() {
				cids, err = w.Refresh(ctx)
			} else {
				cids, err = w.Watch(ctx)
			}

			return err
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			s.logger.Warn("channel list refresh failed", slog.String("error", err.Error()))
			continue
		}

		for _, cid := range cids {
			pc.watchedAndSynchedChannelIDs[cid] = struct{}{}
		}
	}

	for _, w := range append(channels, live...) {
		cid := w.CID()
		if pc.skip(cid) {
			continue
		}

		err := s.attempt(ctx, "channel watch", func() error {
			if w.HasFetched() {
				return w.Refresh(ctx)
			}

			return w.Watch(ctx)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err != nil {
			s.logger.Warn("channel rewatch failed",
				slog.String("cid", cid),
				slog.String("error", err.Error()),
			)

			continue
		}

		pc.watchedAndSynchedChannelIDs[cid] = struct{}{}
	}

	return nil
}

func (s *Synchronizer) runQueue(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}

	if err := s.queue.RunQueuedRequests(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("offline queue replay failed", slog.String("error", err.Error()))
	}

	return nil
}

// SyncMissingEvents fetches missed events for every local channel over
// the ordinary request path, used when the app returns to the
// foreground. It returns the synchronized channel ids, or
// ErrNoNeedToSync when lastSyncAt is missing or younger than
// SyncCooldown.
func (s *Synchronizer) SyncMissingEvents(ctx context.Context) ([]string, error) {
	var (
		user *models.CurrentUser
		cids []string
	)

	err := s.store.View(func(tx *store.Tx) error {
		var err error
		if user, err = tx.CurrentUser(); err != nil {
			return err
		}

		cids, err = tx.ChannelIDs()

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading local state: %w", err)
	}

	if len(cids) == 0 {
		return nil, nil
	}

	if user == nil {
		return nil, ErrNoNeedToSync
	}

	if user.LastSyncAt == nil {
		if err := s.store.Write(func(tx *store.Tx) error { return tx.AdvanceLastSyncAt(time.Now()) }); err != nil {
			return nil, err
		}

		return nil, ErrNoNeedToSync
	}

	since := *user.LastSyncAt
	if time.Since(since) <= SyncCooldown {
		return nil, ErrNoNeedToSync
	}

	newest, synched, err := s.fetchMissingEvents(ctx, s.requests, since, cids)
	if errors.Is(err, errs.ErrTooManyEvents) {
		return nil, s.store.Write(func(tx *store.Tx) error { return tx.AdvanceLastSyncAt(time.Now()) })
	}

	if err != nil {
		return nil, err
	}

	if !newest.IsZero() {
		if err := s.store.Write(func(tx *store.Tx) error { return tx.AdvanceLastSyncAt(newest) }); err != nil {
			return nil, err
		}
	}

	return synched, nil
}
