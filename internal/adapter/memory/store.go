// Package memory 进程内的 RecordStore，用于试运行和测试，进程退出即丢失
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"post-responder/internal/common"
	"post-responder/internal/domain"
)

type responseKey struct {
	itemID    string
	profileID string
}

// Store 实现了 port.RecordStore 接口
type Store struct {
	mu              sync.Mutex
	items           map[string]domain.Item
	classifications map[string]domain.ClassificationRecord
	responses       map[responseKey]domain.ResponseRecord
	profiles        map[string]domain.ResponseProfile
	nowFunc         func() time.Time
}

func NewStore(profiles ...*domain.ResponseProfile) *Store {
	s := &Store{
		items:           make(map[string]domain.Item),
		classifications: make(map[string]domain.ClassificationRecord),
		responses:       make(map[responseKey]domain.ResponseRecord),
		profiles:        make(map[string]domain.ResponseProfile),
		nowFunc:         time.Now,
	}
	for _, p := range profiles {
		s.PutProfile(p)
	}
	return s
}

// PutProfile 新增或替换人设
func (s *Store) PutProfile(profile *domain.ResponseProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = *profile
}

func (s *Store) UpsertItem(_ context.Context, item *domain.Item) error {
	if item == nil || item.ID == "" {
		return common.NewError(common.ErrCodeInvalidInput, "item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[item.ID]; !ok {
		s.items[item.ID] = *item
	}
	return nil
}

// Item 返回已保存的帖子
func (s *Store) Item(id string) (*domain.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return &item, true
}

func (s *Store) GetClassification(_ context.Context, itemID string) (*domain.ClassificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.classifications[itemID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *Store) UpsertClassification(_ context.Context, itemID string, requiresResponse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.nowFunc()
	record, ok := s.classifications[itemID]
	if !ok {
		record = domain.ClassificationRecord{ItemID: itemID, CreatedAt: now}
	}
	record.RequiresResponse = requiresResponse
	record.UpdatedAt = now
	s.classifications[itemID] = record
	return nil
}

func (s *Store) GetResponse(_ context.Context, itemID, profileID string) (*domain.ResponseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.responses[responseKey{itemID, profileID}]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *Store) InsertResponse(_ context.Context, record *domain.ResponseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{record.ItemID, record.ProfileID}
	if _, ok := s.responses[key]; ok {
		return common.ErrAlreadyResponded
	}
	now := s.nowFunc()
	record.CreatedAt = now
	record.UpdatedAt = now
	s.responses[key] = *record
	return nil
}

func (s *Store) ConfirmResponse(_ context.Context, itemID, profileID, token string, reply *domain.Reply) error {
	if reply == nil {
		return common.NewError(common.ErrCodeInvalidInput, "reply is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{itemID, profileID}
	record, ok := s.responses[key]
	if !ok || record.Token != token || record.Status != domain.ResponseReserved {
		return common.ErrReservationLost
	}
	repliedAt := reply.CreatedAt
	record.Status = domain.ResponsePublished
	record.ReplyID = reply.ID
	record.RepliedAt = &repliedAt
	record.UpdatedAt = s.nowFunc()
	s.responses[key] = record
	return nil
}

func (s *Store) DeleteResponse(_ context.Context, itemID, profileID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := responseKey{itemID, profileID}
	record, ok := s.responses[key]
	if !ok || record.Token != token || record.Status != domain.ResponseReserved {
		return common.ErrReservationLost
	}
	delete(s.responses, key)
	return nil
}

func (s *Store) GetProfile(_ context.Context, profileID string) (*domain.ResponseProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[profileID]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", profileID, common.ErrNotFound)
	}
	return &profile, nil
}

// ResponseCount 当前回复记录总数 (含占位)
func (s *Store) ResponseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}
