package service

import "time"

// DateLayout 任务打卡使用的日期格式（本地时区）
const DateLayout = "2006-01-02"

// DayKey 本地日期
func DayKey(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatDateMs 毫秒时间戳格式化为日期，非法值返回空串
func FormatDateMs(ms int64) string {
	if ms <= 0 {
		return ""
	}
	return time.UnixMilli(ms).Format(DateLayout)
}
