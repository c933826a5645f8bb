package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tutoring-api/internal/dto"
	"github.com/noah-isme/tutoring-api/internal/models"
	appErrors "github.com/noah-isme/tutoring-api/pkg/errors"
)

type changeFeed interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
	Subscribe(ctx context.Context, channels ...string) (<-chan models.ChangeEvent, error)
}

type changeNotifier interface {
	Notify(ctx context.Context, event models.ChangeEvent)
}

// ChangeNotifier publishes committed writes to the live feed. Failures are logged, never returned.
type ChangeNotifier struct {
	feed   changeFeed
	logger *zap.Logger
	now    func() time.Time
}

// NewChangeNotifier constructs a notifier.
func NewChangeNotifier(feed changeFeed, logger *zap.Logger) *ChangeNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChangeNotifier{feed: feed, logger: logger, now: time.Now}
}

// Notify publishes event on its channels.
func (n *ChangeNotifier) Notify(ctx context.Context, event models.ChangeEvent) {
	if n == nil || n.feed == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = n.now().UTC()
	}
	if err := n.feed.Publish(ctx, event); err != nil {
		n.logger.Warn("failed to publish change event",
			zap.String("kind", string(event.Kind)),
			zap.String("action", event.Action),
			zap.Error(err))
	}
}

type sessionViewLister interface {
	ListForViewer(ctx context.Context, actor *models.JWTClaims, filter dto.SessionListFilter) ([]dto.SessionView, error)
}

type progressReader interface {
	Get(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (*dto.ProgressView, error)
}

// SubscriptionService turns the change feed into latest-value snapshot streams.
type SubscriptionService struct {
	feed     changeFeed
	sessions sessionViewLister
	progress progressReader
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewSubscriptionService constructs the service.
func NewSubscriptionService(feed changeFeed, sessions sessionViewLister, progress progressReader, metrics *MetricsService, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{feed: feed, sessions: sessions, progress: progress, metrics: metrics, logger: logger}
}

// WatchSessions streams the viewer's session list. The first value is the current
// snapshot; later values follow committed changes. The channel closes when ctx is done.
func (s *SubscriptionService) WatchSessions(ctx context.Context, actor *models.JWTClaims, filter dto.SessionListFilter) (<-chan []dto.SessionView, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var channel string
	switch actor.Role {
	case models.RoleStudent:
		channel = models.StudentSessionsChannel(actor.UserID)
	case models.RoleTutor:
		channel = models.TutorSessionsChannel(actor.UserID)
	default:
		channel = models.AllSessionsChannel
	}
	load := func(ctx context.Context) ([]dto.SessionView, error) {
		return s.sessions.ListForViewer(withFreshRead(ctx), actor, filter)
	}
	return watch(ctx, s, channel, "session", load)
}

// WatchProgress streams one progress ledger.
func (s *SubscriptionService) WatchProgress(ctx context.Context, studentID, subject string, actor *models.JWTClaims) (<-chan *dto.ProgressView, error) {
	load := func(ctx context.Context) (*dto.ProgressView, error) {
		return s.progress.Get(ctx, studentID, subject, actor)
	}
	return watch(ctx, s, models.ProgressChannel(studentID, subject), "progress", load)
}

// watch subscribes before reading the first snapshot so a write committed in between
// still triggers a reload.
func watch[T any](ctx context.Context, s *SubscriptionService, channel, kind string, load func(context.Context) (T, error)) (<-chan T, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := s.feed.Subscribe(ctx, channel)
	if err != nil {
		cancel()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to subscribe to "+kind+" changes")
	}
	initial, err := load(ctx)
	if err != nil {
		cancel()
		return nil, err
	}
	return watchLatest(ctx, cancel, s, initial, events, load), nil
}

// watchLatest keeps at most one pending snapshot; a newer snapshot replaces an unread one.
func watchLatest[T any](ctx context.Context, cancel context.CancelFunc, s *SubscriptionService, initial T, events <-chan models.ChangeEvent, load func(context.Context) (T, error)) <-chan T {
	out := make(chan T, 1)
	out <- initial
	s.metrics.SubscriberOpened()

	go func() {
		defer close(out)
		defer cancel()
		defer s.metrics.SubscriberClosed()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				snapshot, err := load(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Warn("failed to reload snapshot for subscriber", zap.Error(err))
					continue
				}
				offerLatest(out, snapshot)
			}
		}
	}()
	return out
}

func offerLatest[T any](out chan T, value T) {
	for {
		select {
		case out <- value:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
