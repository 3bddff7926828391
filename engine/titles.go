package engine

import "time"

// generateTitle derives the default session title from local creation
// time: "Meeting - <month> <day>, <year> <hour>:<minute> <AM/PM>"
// (spec.md §3). Grounded on session.generateSessionTitle in
// _examples/askidmobile-AIWisper/session/manager.go, which derives a
// title from StartTime the same way, reworked to the spec's exact
// format instead of the teacher's "Запись DD.MM HH:MM" layout.
func generateTitle(t time.Time) string {
	return "Meeting - " + t.Format("January 2, 2006 3:04 PM")
}
