// Package notify tells item owners about new matches.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// deliveryTimeout bounds one mail delivery, independent of the caller.
const deliveryTimeout = 30 * time.Second

// Service records one notification per distinct owner of a matched item and
// mails the owner in the background when possible.
type Service struct {
	db      *sql.DB
	mailer  Mailer
	mail    bool
	baseURL string
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewService creates a notification service. A nil mailer disables mail.
func NewService(db *sql.DB, mailer Mailer, baseURL string, logger *zap.Logger) *Service {
	if mailer == nil {
		mailer = noopMailer{}
	}
	_, disabled := mailer.(noopMailer)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		mailer:  mailer,
		mail:    !disabled,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// MatchFound records an in-app notification for the owners of both items and
// returns how many were recorded. Owners with an address are then mailed in
// the background; a delivered mail upgrades the notification to the email
// channel. Failures are logged and skipped.
func (s *Service) MatchFound(ctx context.Context, m *model.Match, lost, found *model.Item) int {
	owners := make([]int64, 0, 2)
	for _, item := range []*model.Item{lost, found} {
		if item.OwnerID != nil && !slices.Contains(owners, *item.OwnerID) {
			owners = append(owners, *item.OwnerID)
		}
	}

	recorded := 0
	for _, userID := range owners {
		log := s.logger.With(zap.String("match_id", m.ID), zap.Int64("user_id", userID))

		user, err := store.GetUser(ctx, s.db, userID)
		if err != nil {
			log.Error("loading notification recipient", zap.Error(err))
			continue
		}
		if user == nil || user.DeletedAt != nil {
			continue
		}

		created, err := store.CreateNotification(ctx, s.db, m.ID, userID, model.ChannelInApp)
		if err != nil {
			log.Error("recording match notification", zap.Error(err))
			continue
		}
		if !created {
			continue
		}
		recorded++

		if s.mail && user.Email != "" {
			s.deliver(log, m.ID, userID, s.message(user, m, lost, found))
		}
	}
	return recorded
}

// Wait blocks until background deliveries have finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) deliver(log *zap.Logger, matchID string, userID int64, msg Message) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		defer cancel()

		if err := s.mailer.Send(ctx, msg); err != nil {
			log.Warn("mailing match notification, keeping in-app", zap.Error(err))
			return
		}
		if err := store.SetNotificationChannel(ctx, s.db, matchID, userID, model.ChannelEmail); err != nil {
			log.Error("recording mail delivery", zap.Error(err))
		}
	}()
}

func (s *Service) message(user *model.User, m *model.Match, lost, found *model.Item) Message {
	mine, other := lost, found
	if found.OwnedBy(user.ID) && !lost.OwnedBy(user.ID) {
		mine, other = found, lost
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", user.Username)
	fmt.Fprintf(&b, "Your %s report %q may match a %s report %q on %s.\n",
		mine.Kind, mine.Name, other.Kind, other.Name, other.Campus)
	if m.Reason != "" {
		fmt.Fprintf(&b, "Why: %s\n", m.Reason)
	}
	if s.baseURL != "" {
		fmt.Fprintf(&b, "\nReview the match: %s/matches/%s\n", s.baseURL, m.ID)
	}

	return Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Possible match for %q", mine.Name),
		Text:    b.String(),
	}
}
