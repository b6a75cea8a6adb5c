package websocket

import (
	"sync"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Client is one dashboard connection watching a single campaign.
type Client struct {
	CampaignID uuid.UUID
	Conn       *websocket.Conn
}

type CampaignUpdate struct {
	CampaignID         uuid.UUID             `json:"campaign_id"`
	CurrentAmount      decimal.Decimal       `json:"current_amount"`
	GoalAmount         decimal.Decimal       `json:"goal_amount"`
	CompletedDonations int64                 `json:"completed_donations"`
	Currency           string                `json:"currency"`
	Status             models.CampaignStatus `json:"status"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

var subscribers = make(map[uuid.UUID]map[*websocket.Conn]bool)
var subscribersMu sync.RWMutex
var Register = make(chan *Client)
var Unregister = make(chan *Client)
var Broadcast = make(chan CampaignUpdate, 256)

// PublishCampaign queues an aggregate update. It never blocks the caller;
// updates are dropped when the hub is saturated.
func PublishCampaign(c *models.Campaign) {
	update := CampaignUpdate{
		CampaignID:         c.ID,
		CurrentAmount:      c.CurrentAmount,
		GoalAmount:         c.GoalAmount,
		CompletedDonations: c.CompletedDonations,
		Currency:           c.Currency,
		Status:             c.Status,
		UpdatedAt:          time.Now(),
	}
	select {
	case Broadcast <- update:
	default:
		log.Warn().Str("campaign_id", c.ID.String()).Msg("websocket hub saturated, dropping campaign update")
	}
}

func SubscriberCount(campaignID uuid.UUID) int {
	subscribersMu.RLock()
	defer subscribersMu.RUnlock()
	return len(subscribers[campaignID])
}

// RunHub owns the subscriber registry and fans out campaign updates. The
// server starts it once at boot.
func RunHub() {
	for {
		select {
		case client := <-Register:
			subscribersMu.Lock()
			if subscribers[client.CampaignID] == nil {
				subscribers[client.CampaignID] = make(map[*websocket.Conn]bool)
			}
			subscribers[client.CampaignID][client.Conn] = true
			subscribersMu.Unlock()
			log.Debug().Str("campaign_id", client.CampaignID.String()).Msg("dashboard subscribed")
		case client := <-Unregister:
			removeConn(client.CampaignID, client.Conn)
		case update := <-Broadcast:
			subscribersMu.RLock()
			conns := make([]*websocket.Conn, 0, len(subscribers[update.CampaignID]))
			for conn := range subscribers[update.CampaignID] {
				conns = append(conns, conn)
			}
			subscribersMu.RUnlock()

			for _, conn := range conns {
				if err := conn.WriteJSON(update); err != nil {
					log.Warn().Err(err).Str("campaign_id", update.CampaignID.String()).Msg("dropping dashboard connection")
					conn.Close()
					removeConn(update.CampaignID, conn)
				}
			}
		}
	}
}

func removeConn(campaignID uuid.UUID, conn *websocket.Conn) {
	subscribersMu.Lock()
	defer subscribersMu.Unlock()
	if set, ok := subscribers[campaignID]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(subscribers, campaignID)
		}
	}
}
