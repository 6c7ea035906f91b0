package mission

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/Tsukikage7/questline/logger"
)

// MemoryMissions 基于内存的任务完成状态.
type MemoryMissions struct {
	mu        sync.RWMutex
	completed map[string]struct{}
}

// NewMemoryMissions 创建内存任务仓储.
func NewMemoryMissions() *MemoryMissions {
	return &MemoryMissions{completed: make(map[string]struct{})}
}

func missionKey(userID, missionID string) string { return userID + "/" + missionID }

func (m *MemoryMissions) MarkCompleted(_ context.Context, userID, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := missionKey(userID, missionID)
	if _, ok := m.completed[key]; ok {
		return ErrAlreadyCompleted
	}
	m.completed[key] = struct{}{}
	return nil
}

func (m *MemoryMissions) Reopen(_ context.Context, userID, missionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.completed, missionKey(userID, missionID))
	return nil
}

// IsCompleted 用户是否已完成任务.
func (m *MemoryMissions) IsCompleted(userID, missionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.completed[missionKey(userID, missionID)]
	return ok
}

type transaction struct {
	userID   string
	points   int64
	reversed bool
}

// MemoryWallet 基于内存的积分钱包，冲正可重复执行.
type MemoryWallet struct {
	mu       sync.RWMutex
	balances map[string]int64
	txs      map[string]*transaction
}

// NewMemoryWallet 创建内存钱包.
func NewMemoryWallet() *MemoryWallet {
	return &MemoryWallet{
		balances: make(map[string]int64),
		txs:      make(map[string]*transaction),
	}
}

func (w *MemoryWallet) Credit(_ context.Context, userID string, points int64, _ string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := uuid.NewString()
	w.txs[id] = &transaction{userID: userID, points: points}
	w.balances[userID] += points
	return id, nil
}

func (w *MemoryWallet) Reverse(_ context.Context, transactionID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	tx, ok := w.txs[transactionID]
	if !ok {
		return ErrTransactionAbsent
	}
	if tx.reversed {
		return nil
	}
	tx.reversed = true
	w.balances[tx.userID] -= tx.points
	return nil
}

// Balance 用户积分余额.
func (w *MemoryWallet) Balance(userID string) int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.balances[userID]
}

// MemoryAchievements 基于内存的成就服务.
type MemoryAchievements struct {
	mu       sync.RWMutex
	unlocked map[string]struct{}
}

// NewMemoryAchievements 创建内存成就服务.
func NewMemoryAchievements() *MemoryAchievements {
	return &MemoryAchievements{unlocked: make(map[string]struct{})}
}

func (a *MemoryAchievements) Unlock(_ context.Context, userID, achievementID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unlocked[userID+"/"+achievementID] = struct{}{}
	return nil
}

func (a *MemoryAchievements) Revoke(_ context.Context, userID, achievementID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.unlocked, userID+"/"+achievementID)
	return nil
}

// IsUnlocked 成就是否已解锁.
func (a *MemoryAchievements) IsUnlocked(userID, achievementID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.unlocked[userID+"/"+achievementID]
	return ok
}

// MemoryGuilds 基于内存的公会贡献.
type MemoryGuilds struct {
	mu            sync.RWMutex
	contributions map[string]int64
}

// NewMemoryGuilds 创建内存公会服务.
func NewMemoryGuilds() *MemoryGuilds {
	return &MemoryGuilds{contributions: make(map[string]int64)}
}

func (g *MemoryGuilds) AddContribution(_ context.Context, guildID, userID string, points int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contributions[guildID+"/"+userID] += points
	return nil
}

func (g *MemoryGuilds) RemoveContribution(_ context.Context, guildID, userID string, points int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contributions[guildID+"/"+userID] -= points
	return nil
}

// Contribution 用户在公会中的贡献值.
func (g *MemoryGuilds) Contribution(guildID, userID string) int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.contributions[guildID+"/"+userID]
}

// Post 动态.
type Post struct {
	ID      string
	UserID  string
	Content string
}

// MemoryFeed 基于内存的动态服务.
type MemoryFeed struct {
	mu    sync.RWMutex
	posts map[string]Post
}

// NewMemoryFeed 创建内存动态服务.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{posts: make(map[string]Post)}
}

func (f *MemoryFeed) CreatePost(_ context.Context, userID, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.NewString()
	f.posts[id] = Post{ID: id, UserID: userID, Content: content}
	return id, nil
}

func (f *MemoryFeed) DeletePost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.posts, postID)
	return nil
}

// Posts 返回用户的全部动态.
func (f *MemoryFeed) Posts(userID string) []Post {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []Post
	for _, p := range f.posts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

// LogNotifier 把通知写入日志.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier 创建日志通知器.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, userID, message string) error {
	n.log.WithContext(ctx).Info("[Mission] 用户通知",
		logger.String("user_id", userID),
		logger.String("message", message),
	)
	return nil
}
