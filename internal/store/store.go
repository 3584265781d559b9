// Package store holds the ordered per-room message collections rendered by
// the client. Values are owned by a single goroutine and are not safe for
// concurrent use.
package store

import (
	"slices"

	"github.com/npezzotti/go-chatclient/internal/types"
)

// MessageStore is the ordered message list of one room. Order is arrival
// order; nothing here sorts by timestamp.
type MessageStore struct {
	roomId   string
	messages []types.Message
}

func NewMessageStore(roomId string) *MessageStore {
	return &MessageStore{roomId: roomId}
}

func (s *MessageStore) RoomId() string {
	return s.roomId
}

// Append adds msg at the tail.
func (s *MessageStore) Append(msg types.Message) {
	s.messages = append(s.messages, msg)
}

// RemoveByID removes the message with the given id. Absent ids are ignored.
func (s *MessageStore) RemoveByID(id string) bool {
	before := len(s.messages)
	s.messages = slices.DeleteFunc(s.messages, func(m types.Message) bool {
		return m.Id == id
	})

	return len(s.messages) != before
}

// ReplaceAll swaps the contents for msgs, which must already be in
// chronological ascending order.
func (s *MessageStore) ReplaceAll(msgs []types.Message) {
	s.messages = slices.Clone(msgs)
}

// ReplaceNewestFirst loads a history page as returned by the server
// (newest first) and stores it oldest first.
func (s *MessageStore) ReplaceNewestFirst(msgs []types.Message) {
	ordered := slices.Clone(msgs)
	slices.Reverse(ordered)
	s.messages = ordered
}

func (s *MessageStore) Clear() {
	s.messages = nil
}

func (s *MessageStore) Contains(id string) bool {
	return slices.ContainsFunc(s.messages, func(m types.Message) bool {
		return m.Id == id
	})
}

func (s *MessageStore) Len() int {
	return len(s.messages)
}

// Snapshot returns a copy of the messages in display order.
func (s *MessageStore) Snapshot() []types.Message {
	if len(s.messages) == 0 {
		return []types.Message{}
	}

	return slices.Clone(s.messages)
}

// Store maps room ids to their message lists.
type Store struct {
	rooms map[string]*MessageStore
}

func NewStore() *Store {
	return &Store{rooms: make(map[string]*MessageStore)}
}

// Room returns the list for roomId, creating an empty one on first use.
func (s *Store) Room(roomId string) *MessageStore {
	ms, ok := s.rooms[roomId]
	if !ok {
		ms = NewMessageStore(roomId)
		s.rooms[roomId] = ms
	}

	return ms
}

func (s *Store) Has(roomId string) bool {
	_, ok := s.rooms[roomId]
	return ok
}

func (s *Store) Drop(roomId string) {
	delete(s.rooms, roomId)
}

func (s *Store) Reset() {
	s.rooms = make(map[string]*MessageStore)
}
