// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/jason-s-yu/parley/internal/chat"
	"github.com/sirupsen/logrus"
)

type roomsResponse struct {
	Rooms []string `json:"rooms"`
}

// ListRoomsHandler answers GET /rooms with the sorted room names, filtered by ?q=.
func ListRoomsHandler(logger *logrus.Logger, reg *chat.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		rooms := reg.ListRooms(r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(roomsResponse{Rooms: rooms}); err != nil {
			logger.Warnf("failed to write room list: %v", err)
		}
	}
}
