package features

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/parser06/first-responder-risk/internal/models"
)

// Registry 警员到特征提取器的映射
//
// 并发模型: map 由读写锁保护, 每个条目持有独立互斥锁,
// 同一警员的操作串行执行, 不同警员互不阻塞
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	windowSize int
	minSamples int
	defaultAge int

	logger *zap.Logger
	now    func() time.Time
}

type entry struct {
	mu        sync.Mutex
	extractor *Extractor
	lastSeen  time.Time
}

// NewRegistry 创建注册表, 配置透传给每个新建的提取器
func NewRegistry(windowSize, minSamples, defaultAge int, logger *zap.Logger) *Registry {
	if defaultAge <= 0 {
		defaultAge = 30
	}
	return &Registry{
		entries:    make(map[string]*entry),
		windowSize: windowSize,
		minSamples: minSamples,
		defaultAge: defaultAge,
		logger:     logger,
		now:        time.Now,
	}
}

// getOrCreate 取出或创建警员条目, 双检避免重复创建
func (r *Registry) getOrCreate(officerID string) *entry {
	r.mu.RLock()
	en, ok := r.entries[officerID]
	r.mu.RUnlock()
	if ok {
		return en
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if en, ok = r.entries[officerID]; ok {
		return en
	}
	en = &entry{
		extractor: NewExtractor(r.windowSize, r.minSamples),
		lastSeen:  r.now(),
	}
	r.entries[officerID] = en
	r.logger.Debug("tracking new officer", zap.String("officer_id", officerID))
	return en
}

// Process 处理一条采样并返回最新特征向量
func (r *Registry) Process(officerID string, value float64, ts time.Time, confidence float64) *models.FeatureVector {
	en := r.getOrCreate(officerID)
	en.mu.Lock()
	defer en.mu.Unlock()
	en.lastSeen = r.now()
	return en.extractor.AddSample(value, ts, confidence)
}

// SetProfile 设置/更新警员档案, age<=0 时使用默认年龄
func (r *Registry) SetProfile(officerID string, age int, restingHR float64) {
	if age <= 0 {
		age = r.defaultAge
	}
	en := r.getOrCreate(officerID)
	en.mu.Lock()
	defer en.mu.Unlock()
	en.extractor.SetProfile(age, restingHR)
}

// Features 返回警员当前特征向量, 未跟踪的警员返回 false
func (r *Registry) Features(officerID string) (*models.FeatureVector, bool) {
	r.mu.RLock()
	en, ok := r.entries[officerID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.extractor.Extract(), true
}

// Tracked 警员是否已在跟踪中
func (r *Registry) Tracked(officerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[officerID]
	return ok
}

// Count 当前跟踪的警员数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs 当前跟踪的警员编号, 升序
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BufferSizes 各警员窗口内的样本数
func (r *Registry) BufferSizes() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sizes := make(map[string]int, len(r.entries))
	for id, en := range r.entries {
		en.mu.Lock()
		sizes[id] = en.extractor.BufferLen()
		en.mu.Unlock()
	}
	return sizes
}

// EvictIdle 淘汰超过 maxIdle 未出现新样本的警员条目, 返回淘汰数量
// 正在处理中的条目会持有自身锁正常完成, 只是不再被后续查询复用
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	var evicted int
	for id, en := range r.entries {
		en.mu.Lock()
		idle := en.lastSeen.Before(cutoff)
		en.mu.Unlock()
		if idle {
			delete(r.entries, id)
			r.logger.Debug("evicted idle officer", zap.String("officer_id", id))
			evicted++
		}
	}
	return evicted
}
