package websocket

import (
	"encoding/json"
	"net/http"
	"sync"

	"auction-engine/pkg/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Presenters run on their own origins.
	},
}

// ConnectionManager tracks websocket watchers per auction so lifecycle and
// bid events can be pushed to everyone viewing that auction.
type ConnectionManager struct {
	watchers map[int64]map[*websocket.Conn]struct{} // auctionID -> conns
	mutex    sync.RWMutex
	log      logger.Logger
}

func NewConnectionManager(log logger.Logger) *ConnectionManager {
	return &ConnectionManager{
		watchers: make(map[int64]map[*websocket.Conn]struct{}),
		log:      log,
	}
}

// Subscribe upgrades the request and registers the connection as a watcher
// of auctionID until the peer goes away.
func (cm *ConnectionManager) Subscribe(w http.ResponseWriter, r *http.Request, auctionID int64) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	cm.register(auctionID, conn)
	cm.log.Info("watcher connected", "auction_id", auctionID)

	// Reader loop exists only to notice the peer closing.
	go func() {
		defer func() {
			cm.unregister(auctionID, conn)
			conn.Close()
			cm.log.Info("watcher disconnected", "auction_id", auctionID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return nil
}

func (cm *ConnectionManager) register(auctionID int64, conn *websocket.Conn) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if cm.watchers[auctionID] == nil {
		cm.watchers[auctionID] = make(map[*websocket.Conn]struct{})
	}
	cm.watchers[auctionID][conn] = struct{}{}
}

func (cm *ConnectionManager) unregister(auctionID int64, conn *websocket.Conn) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	if conns, exists := cm.watchers[auctionID]; exists {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(cm.watchers, auctionID)
		}
	}
}

// Broadcast sends message to every watcher of the auction. Write failures
// drop the connection; the peer will reconnect if it cares.
func (cm *ConnectionManager) Broadcast(auctionID int64, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		cm.log.Error("failed to marshal broadcast", "error", err)
		return
	}

	cm.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(cm.watchers[auctionID]))
	for conn := range cm.watchers[auctionID] {
		conns = append(conns, conn)
	}
	cm.mutex.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			cm.unregister(auctionID, conn)
			conn.Close()
		}
	}
}

// WatcherCount reports how many connections are watching an auction.
func (cm *ConnectionManager) WatcherCount(auctionID int64) int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return len(cm.watchers[auctionID])
}

// CloseAll drops every connection. Part of shutdown.
func (cm *ConnectionManager) CloseAll() {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	for auctionID, conns := range cm.watchers {
		for conn := range conns {
			conn.Close()
		}
		delete(cm.watchers, auctionID)
	}
}
