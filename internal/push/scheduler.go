package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/larder-app/larder/internal/model"
	"github.com/larder-app/larder/internal/store"
)

// ExpiryWindow is how far ahead the scheduler looks for expiring items.
const ExpiryWindow = 7 * 24 * time.Hour

// Scheduler periodically scans household inventories and sends low-stock and
// expiring-soon notifications. A sent-log keyed by item deduplicates alerts:
// an item alerts once per episode, and the log entry is cleared when the item
// recovers so the next dip alerts again.
type Scheduler struct {
	mu        sync.RWMutex
	service   *Service
	push      *store.PushStore
	inventory *store.InventoryStore
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a notification scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, inventoryStore *store.InventoryStore, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:   svc,
		push:      pushStore,
		inventory: inventoryStore,
		interval:  15 * time.Minute,
		logger:    logger,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick() {
	householdIDs, err := s.push.ListHouseholdIDs()
	if err != nil {
		s.logger.Error("list households", "error", err)
		return
	}

	for _, hid := range householdIDs {
		s.checkLowStock(hid)
		s.checkExpiringSoon(hid)
	}
}

func (s *Scheduler) checkLowStock(householdID int64) {
	low, err := s.inventory.ListLowStock(householdID)
	if err != nil {
		s.logger.Error("list low stock", "household_id", householdID, "error", err)
		return
	}

	lowIDs := make(map[int64]bool, len(low))
	for _, item := range low {
		lowIDs[item.ID] = true
		refID := fmt.Sprintf("item-%d", item.ID)

		sent, err := s.push.WasSent(householdID, model.NotifTypeLowStock, refID)
		if err != nil {
			s.logger.Error("check sent", "error", err)
			continue
		}
		if sent {
			continue
		}

		s.notify(householdID, model.NotifTypeLowStock, Payload{
			Title: "Running Low",
			Body:  fmt.Sprintf("%s is running low (%.0f %s left)", item.Name, item.Quantity, item.Unit),
			URL:   "/inventory",
			Tag:   fmt.Sprintf("low-stock-%d", item.ID),
		})

		if err := s.push.RecordSent(householdID, model.NotifTypeLowStock, refID); err != nil {
			s.logger.Error("record sent", "error", err)
		}
	}

	// Re-arm alerts for items that came back above their threshold.
	all, err := s.inventory.ListByHousehold(householdID, nil)
	if err != nil {
		return
	}
	for _, item := range all {
		if lowIDs[item.ID] {
			continue
		}
		refID := fmt.Sprintf("item-%d", item.ID)
		if err := s.push.ClearSent(householdID, model.NotifTypeLowStock, refID); err != nil {
			s.logger.Error("clear sent", "error", err)
		}
	}
}

func (s *Scheduler) checkExpiringSoon(householdID int64) {
	expiring, err := s.inventory.ListExpiringSoon(householdID, ExpiryWindow)
	if err != nil {
		s.logger.Error("list expiring", "household_id", householdID, "error", err)
		return
	}

	for _, item := range expiring {
		refID := fmt.Sprintf("item-%d", item.ID)

		sent, err := s.push.WasSent(householdID, model.NotifTypeExpiringSoon, refID)
		if err != nil || sent {
			continue
		}

		days := int(time.Until(*item.ExpirationDate).Hours() / 24)
		body := fmt.Sprintf("%s expires in %d days", item.Name, days)
		if days <= 0 {
			body = fmt.Sprintf("%s expires today", item.Name)
		}

		s.notify(householdID, model.NotifTypeExpiringSoon, Payload{
			Title: "Expiring Soon",
			Body:  body,
			URL:   "/inventory",
			Tag:   fmt.Sprintf("expiring-%d", item.ID),
		})

		if err := s.push.RecordSent(householdID, model.NotifTypeExpiringSoon, refID); err != nil {
			s.logger.Error("record sent", "error", err)
		}
	}
}

// notify fans a payload out to every subscription in the household whose user
// has the notification type enabled, pruning expired subscriptions.
func (s *Scheduler) notify(householdID int64, notifType string, payload Payload) {
	subs, err := s.push.ListByHousehold(householdID)
	if err != nil {
		s.logger.Error("list subscriptions", "household_id", householdID, "error", err)
		return
	}

	for _, sub := range subs {
		enabled, _ := s.push.IsPreferenceEnabled(sub.UserID, householdID, notifType)
		if !enabled {
			continue
		}

		if err := s.service.Send(&sub, payload); err != nil {
			if errors.Is(err, ErrExpired) {
				s.push.DeleteByEndpoint(sub.Endpoint)
			} else {
				s.logger.Error("send notification", "type", notifType, "error", err)
			}
		}
	}
}
