// Package month работает с календарными месяцами учётного периода.
package month

import (
	"time"
)

// Layout формат метки месяца "YYYY-MM".
const Layout = "2006-01"

// Tag возвращает метку календарного месяца для момента t в UTC.
func Tag(t time.Time) string {
	return t.UTC().Format(Layout)
}

// IsCurrent сообщает, совпадает ли метка period с месяцем момента now.
func IsCurrent(period string, now time.Time) bool {
	return period == Tag(now)
}
