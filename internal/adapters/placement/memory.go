package placement

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
)

type boardKey struct {
	gamespace     string
	leaderboardID int64
}

type board struct {
	accounts map[string]int64 // account -> cluster
	members  map[int64]int    // cluster -> members
	order    []int64          // clusters in creation order
}

// Memory is a process-local placement with the same capacity rules as SQL.
type Memory struct {
	mu     sync.Mutex
	boards map[boardKey]*board
	nextID int64
}

// NewMemory returns an empty in-memory placement.
func NewMemory() *Memory {
	return &Memory{boards: make(map[boardKey]*board)}
}

func (m *Memory) board(gamespace string, leaderboardID int64, create bool) *board {
	k := boardKey{gamespace, leaderboardID}
	b, ok := m.boards[k]
	if !ok && create {
		b = &board{accounts: map[string]int64{}, members: map[int64]int{}}
		m.boards[k] = b
	}
	return b
}

// GetCluster returns or allocates the account's cluster.
func (m *Memory) GetCluster(_ context.Context, gamespace string, leaderboardID int64, account string, clusterSize int, autoCreate bool) (int64, error) {
	if clusterSize <= 0 {
		return 0, fmt.Errorf("%w: cluster size %d", model.ErrInvalidArgument, clusterSize)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.board(gamespace, leaderboardID, autoCreate)
	if b != nil {
		if id, ok := b.accounts[account]; ok {
			return id, nil
		}
	}
	if !autoCreate {
		return 0, model.ErrNoClusterPlacement
	}

	var target int64
	for _, id := range b.order {
		if b.members[id] < clusterSize {
			target = id
			break
		}
	}
	if target == 0 {
		m.nextID++
		target = m.nextID
		b.order = append(b.order, target)
	}
	b.accounts[account] = target
	b.members[target]++
	return target, nil
}

// ListClusters returns the clusters that have members.
func (m *Memory) ListClusters(_ context.Context, gamespace string, leaderboardID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.board(gamespace, leaderboardID, false)
	if b == nil {
		return nil, nil
	}
	var ids []int64
	for _, id := range b.order {
		if b.members[id] > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// LeaveCluster removes the account's placement.
func (m *Memory) LeaveCluster(_ context.Context, gamespace string, leaderboardID int64, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b := m.board(gamespace, leaderboardID, false); b != nil {
		b.leave(account)
	}
	return nil
}

// DeleteClusters forgets the leaderboard.
func (m *Memory) DeleteClusters(_ context.Context, gamespace string, leaderboardID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.boards, boardKey{gamespace, leaderboardID})
	return nil
}

// PurgeAccounts removes the accounts from every leaderboard in scope.
func (m *Memory) PurgeAccounts(_ context.Context, gamespace string, accounts []string, gamespaceOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, b := range m.boards {
		if gamespaceOnly && k.gamespace != gamespace {
			continue
		}
		for _, a := range accounts {
			b.leave(a)
		}
	}
	return nil
}

func (b *board) leave(account string) {
	id, ok := b.accounts[account]
	if !ok {
		return
	}
	delete(b.accounts, account)
	b.members[id]--
}
