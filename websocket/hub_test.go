package websocket

import (
	"sync"
	"testing"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var startHub sync.Once

func TestHubTracksSubscribers(t *testing.T) {
	startHub.Do(func() { go RunHub() })
	id := uuid.New()

	Register <- &Client{CampaignID: id}
	waitFor(t, func() bool { return SubscriberCount(id) == 1 })

	Unregister <- &Client{CampaignID: id}
	waitFor(t, func() bool { return SubscriberCount(id) == 0 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishCampaignNeverBlocks(t *testing.T) {
	campaign := &models.Campaign{
		ID:            uuid.New(),
		GoalAmount:    decimal.NewFromInt(500),
		CurrentAmount: decimal.NewFromInt(120),
		Currency:      "NGN",
		Status:        models.CampaignStatusActive,
	}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*cap(Broadcast); i++ {
			PublishCampaign(campaign)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishCampaign blocked")
	}
}

func TestSubscriberCountWithoutSubscribers(t *testing.T) {
	if got := SubscriberCount(uuid.New()); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestRemoveConnDropsEmptyCampaign(t *testing.T) {
	id := uuid.New()
	subscribersMu.Lock()
	subscribers[id] = map[*websocket.Conn]bool{nil: true}
	subscribersMu.Unlock()

	removeConn(id, nil)

	subscribersMu.RLock()
	_, ok := subscribers[id]
	subscribersMu.RUnlock()
	if ok {
		t.Fatal("empty subscriber set was not removed")
	}
}
