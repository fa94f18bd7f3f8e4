package service

import (
	"sync"
	"time"
)

// OrgClock 按组织时区计算本地日期边界
type OrgClock struct {
	now      func() time.Time
	fallback *time.Location

	mu    sync.RWMutex
	zones map[int64]*time.Location
}

// NewOrgClock now 为 nil 时使用 time.Now，fallback 为 nil 时使用 UTC
func NewOrgClock(now func() time.Time, fallback *time.Location, zones map[int64]*time.Location) *OrgClock {
	if now == nil {
		now = time.Now
	}
	if fallback == nil {
		fallback = time.UTC
	}
	z := make(map[int64]*time.Location, len(zones))
	for id, loc := range zones {
		z[id] = loc
	}
	return &OrgClock{now: now, fallback: fallback, zones: z}
}

func (c *OrgClock) Now() time.Time {
	return c.now().UTC()
}

// SetLocation 设置或覆盖某组织的时区
func (c *OrgClock) SetLocation(orgID int64, loc *time.Location) {
	c.mu.Lock()
	c.zones[orgID] = loc
	c.mu.Unlock()
}

func (c *OrgClock) Location(orgID int64) *time.Location {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if loc, ok := c.zones[orgID]; ok && loc != nil {
		return loc
	}
	return c.fallback
}

func (c *OrgClock) LocalDayBounds(orgID int64) (time.Time, time.Time) {
	return DayBounds(c.Now(), c.Location(orgID))
}

// DayBounds at 所在的 loc 本地日 [start, end)。
// 返回值带 loc，AddDate 按本地日历计算，夏令时切换日不是 24h。
func DayBounds(at time.Time, loc *time.Location) (time.Time, time.Time) {
	local := at.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}
