package redisrepo

import "fmt"

const ns = "cinetix:v1"

func KeySchedule(scheduleID int64) string {
	return fmt.Sprintf("%s:schedule:%d", ns, scheduleID)
}

func KeyScreenSeatMap(screenID int64) string {
	return fmt.Sprintf("%s:screen:%d:seatmap", ns, screenID)
}

func KeyIdemBooking(userID int64, idemKey string) string {
	return fmt.Sprintf("%s:idem:booking:%d:%s", ns, userID, idemKey)
}

func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}

func ChannelSeatMapChanged() string {
	return ns + ":seatmap:changed"
}
