package sync

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/cloud"
	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

// Window is the time range an event listing covers, in epoch milliseconds.
type Window struct {
	Begin int64
	End   int64
}

// DefaultWindow covers the last 24 hours ending now.
func DefaultWindow(now time.Time) Window {
	return Window{
		Begin: now.Add(-24 * time.Hour).UnixMilli(),
		End:   now.UnixMilli() + 999,
	}
}

// EventSource pages through a device's event list, newest first.
type EventSource struct {
	sess      cloud.Session
	region    string
	pageLimit int
	maxPages  int
	log       zerolog.Logger
}

func NewEventSource(sess cloud.Session, region string, pageLimit, maxPages int, log zerolog.Logger) *EventSource {
	if pageLimit <= 0 {
		pageLimit = 10
	}
	if maxPages <= 0 {
		maxPages = 100
	}
	return &EventSource{
		sess:      sess,
		region:    region,
		pageLimit: pageLimit,
		maxPages:  maxPages,
		log:       log.With().Str("component", "events").Logger(),
	}
}

// List returns all events for device within the window, newest first.
//
// The API paginates backwards: each page carries isContinue and nextTime, and
// the loop re-requests with endTime = nextTime until isContinue goes false.
// An empty page does not terminate the loop by itself; only the flag does.
// maxPages bounds a server that never stops reporting isContinue=true.
func (s *EventSource) List(device models.Device, window Window) ([]models.Event, error) {
	params := map[string]any{
		"did":       device.DID,
		"model":     device.Model,
		"doorBell":  true,
		"eventType": "Default",
		"needMerge": true,
		"sortType":  "DESC",
		"region":    strings.ToUpper(s.region),
		"language":  "en_US",
		"beginTime": window.Begin,
		"endTime":   window.End,
		"limit":     s.pageLimit,
	}

	var all []models.Event
	nextTime := window.End
	for page := 0; ; page++ {
		if page >= s.maxPages {
			return nil, &PaginationError{
				DeviceID: device.DID,
				Err:      fmt.Errorf("server still reports more after %d pages", s.maxPages),
			}
		}
		params["endTime"] = nextTime

		var resp models.EventListResponse
		if err := s.sess.CallJSON(cloud.EventListAPI, params, &resp); err != nil {
			return nil, &PaginationError{DeviceID: device.DID, Err: err}
		}

		for _, unit := range resp.Data.PlayUnits {
			// Unrecognized event types pass through verbatim.
			all = append(all, models.Event{
				EventTime: unit.CreateTime,
				FileID:    unit.FileID,
				EventType: unit.EventType,
			})
		}

		if !resp.Data.IsContinue {
			break
		}
		nextTime = resp.Data.NextTime
	}

	s.log.Debug().Str("did", device.DID).Int("events", len(all)).Msg("event listing complete")
	return all, nil
}
