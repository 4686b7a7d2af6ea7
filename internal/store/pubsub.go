package store

import (
	"context"
)

// PublishToRoom publishes payload on the Redis channel for a single room,
// generalized from the teacher's one global "chat:broadcast" channel
// (pubsub.go) into one channel per room so broadcastToRoom can scope
// delivery the way spec.md §4.2 requires.
func (s *Service) PublishToRoom(ctx context.Context, room string, payload []byte) error {
	return s.RDB.Publish(ctx, roomChannel(room), string(payload)).Err()
}

// SubscribeRoom subscribes to a room's channel and returns a receive-only
// channel of raw payloads plus a close function. Grounded on
// ManagerService.StartPubSubListener's pubsub.Channel() pattern.
func (s *Service) SubscribeRoom(ctx context.Context, room string) (<-chan []byte, func() error) {
	sub := s.RDB.Subscribe(ctx, roomChannel(room))
	out := make(chan []byte, 64)

	go func() {
		defer close(out)
		ch := sub.Channel()
		for msg := range ch {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close
}

func roomChannel(room string) string {
	return "room:" + room
}
