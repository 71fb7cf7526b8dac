package models

import (
	"fmt"
	"time"
)

// EventListResponse represents the outer wrapper of the eventlist API response
type EventListResponse struct {
	Data struct {
		IsContinue bool       `json:"isContinue"` // server-driven continuation flag
		NextTime   int64      `json:"nextTime"`   // cursor for the next page
		PlayUnits  []PlayUnit `json:"thirdPartPlayUnits"`
	} `json:"data"`
}

// PlayUnit is one raw event item as returned by the cloud API
type PlayUnit struct {
	CreateTime int64  `json:"createTime"` // epoch milliseconds
	FileID     string `json:"fileId"`
	EventType  string `json:"eventType"` // e.g. "Pass", "Bell", "Pass:Stay"
}

// Event is a single device-reported occurrence. FileID is the only field used
// for dedup: event times may collide or shift when the server merges events.
type Event struct {
	EventTime int64  `json:"eventTime"` // epoch milliseconds
	FileID    string `json:"fileId"`
	EventType string `json:"eventType"`
}

func (e Event) time() time.Time {
	return time.UnixMilli(e.EventTime)
}

// DateTime returns the full human-readable timestamp.
func (e Event) DateTime() string {
	return e.time().Format("2006-01-02 15:04:05")
}

// ShortTime returns the compact HHMMSS form used in directory names.
func (e Event) ShortTime() string {
	return e.time().Format("150405")
}

// DateDir returns the year/month/day path fragment for the storage hierarchy.
func (e Event) DateDir() string {
	return e.time().Format("2006/01/02")
}

// TypeName maps the raw event type to a display name; unknown types pass
// through verbatim.
func (e Event) TypeName() string {
	switch e.EventType {
	case "Pass":
		return "someone passed by"
	case "Pass:Stay":
		return "someone stayed at the door"
	case "Bell", "Pass:Bell":
		return "someone rang the bell"
	default:
		return e.EventType
	}
}

// Describe returns the one-line log description of the event.
func (e Event) Describe() string {
	return fmt.Sprintf("%s %s", e.DateTime(), e.TypeName())
}

func (e Event) typeTag() string {
	switch e.EventType {
	case "Pass":
		return "pass"
	case "Stay", "Pass:Stay":
		return "stay"
	case "Bell", "Pass:Bell":
		return "bell"
	default:
		return "unknown"
	}
}

// DirName builds the per-event directory name: time, type tag, and the last
// six characters of the file id for uniqueness.
func (e Event) DirName() string {
	short := e.FileID
	if len(short) > 6 {
		short = short[len(short)-6:]
	}
	return fmt.Sprintf("%s_%s_%s", e.ShortTime(), e.typeTag(), short)
}
