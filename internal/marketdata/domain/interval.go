package domain

import "time"

// Interval 价格数据粒度
type Interval string

const (
	IntervalRealTime Interval = "real-time"
	Interval1Min     Interval = "1min"
	Interval5Min     Interval = "5min"
	Interval15Min    Interval = "15min"
	Interval30Min    Interval = "30min"
	Interval60Min    Interval = "60min"
	IntervalDaily    Interval = "1day"
)

// Valid 判断是否为已知粒度。
func (i Interval) Valid() bool {
	switch i {
	case IntervalRealTime, Interval1Min, Interval5Min, Interval15Min, Interval30Min, Interval60Min, IntervalDaily:
		return true
	}
	return false
}

// SubDaily 判断是否为日内粒度。
func (i Interval) SubDaily() bool {
	return i.Valid() && i != IntervalDaily
}

// Capability 数据订阅档位，决定调用方可用的粒度集合。
type Capability string

const (
	// CapabilityFree 免费档，仅日线
	CapabilityFree Capability = "free"
	// CapabilityPremium 付费档，全部粒度
	CapabilityPremium Capability = "premium"
)

// Allows 判断档位是否可使用指定粒度。
func (c Capability) Allows(iv Interval) bool {
	if c == CapabilityPremium {
		return true
	}
	return !iv.SubDaily()
}

// SelectChain 根据区间跨度与订阅档位返回按偏好排序的候选粒度链。
// 链在档位裁剪后保持原有顺序，且始终以日线收尾作为兜底。
func SelectChain(rangeLen time.Duration, cap Capability) []Interval {
	var chain []Interval
	switch {
	case rangeLen <= 24*time.Hour:
		chain = []Interval{Interval15Min, Interval30Min, Interval60Min, IntervalDaily}
	case rangeLen <= 7*24*time.Hour:
		chain = []Interval{Interval60Min, IntervalDaily}
	default:
		chain = []Interval{IntervalDaily}
	}

	out := make([]Interval, 0, len(chain))
	for _, iv := range chain {
		if cap.Allows(iv) {
			out = append(out, iv)
		}
	}
	if len(out) == 0 || out[len(out)-1] != IntervalDaily {
		out = append(out, IntervalDaily)
	}
	return out
}

// DayOf 返回时间所属的 UTC 日历日零点。
func DayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsTradingDay 判断是否为交易日。周末无行情数据；节假日由数据缺失自然体现。
func IsTradingDay(t time.Time) bool {
	wd := t.UTC().Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// PrevTradingDay 返回 t 之前（不含 t）最近的交易日零点。
func PrevTradingDay(t time.Time) time.Time {
	day := DayOf(t).AddDate(0, 0, -1)
	for !IsTradingDay(day) {
		day = day.AddDate(0, 0, -1)
	}
	return day
}

// TradingDays 返回半开区间 [start, end) 覆盖的全部交易日的 UTC 零点，升序。
// end 恰为零点时不含当日。
func TradingDays(start, end time.Time) []time.Time {
	var days []time.Time
	for day := DayOf(start); day.Before(end.UTC()); day = day.AddDate(0, 0, 1) {
		if IsTradingDay(day) {
			days = append(days, day)
		}
	}
	return days
}
