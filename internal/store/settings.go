package store

import (
	"encoding/json"
	"fmt"

	"github.com/aheige321/true-mastery/internal/domain"
)

const settingsVersion = 2

// Keys older clients flattened into the settings object.
const (
	legacyActivity      = "_activity"
	legacyTodayNewCount = "_todayNewCount"
	legacyLastStudyDate = "_lastStudyDate"
)

// settingsDoc is the current layout of the settings blob.
type settingsDoc struct {
	Version  int               `json:"version"`
	Settings domain.Settings   `json:"settings"`
	Stats    domain.Stats      `json:"stats"`
	Quota    domain.QuotaState `json:"quota"`
}

func encodeSettings(settings domain.Settings, stats domain.Stats, quota domain.QuotaState) ([]byte, error) {
	doc := settingsDoc{
		Version:  settingsVersion,
		Settings: settings,
		Stats:    stats,
		Quota:    quota,
	}
	if doc.Settings == nil {
		doc.Settings = domain.Settings{}
	}
	if doc.Stats == nil {
		doc.Stats = domain.Stats{}
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal settings > %w", err)
	}
	return raw, nil
}

// decodeSettings reads either the versioned layout or the legacy flat
// settings object. The returned Version is 0 for legacy input.
func decodeSettings(raw []byte) (settingsDoc, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return settingsDoc{}, err
	}

	_, hasVersion := fields["version"]
	_, hasSettings := fields["settings"]
	if hasVersion && hasSettings {
		var doc settingsDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return settingsDoc{}, err
		}
		if doc.Settings == nil {
			doc.Settings = domain.Settings{}
		}
		if doc.Stats == nil {
			doc.Stats = domain.Stats{}
		}
		return doc, nil
	}

	doc := settingsDoc{Settings: domain.Settings(fields), Stats: domain.Stats{}}
	if doc.Settings == nil {
		doc.Settings = domain.Settings{}
	}
	doc.Quota = migrateLegacy(doc.Settings, doc.Stats)
	return doc, nil
}

// migrateLegacy moves the flattened activity histogram into stats and the
// flattened quota counters into the returned state, removing all three keys
// from settings. An activity histogram already present in stats is kept.
func migrateLegacy(settings domain.Settings, stats domain.Stats) domain.QuotaState {
	var quota domain.QuotaState

	if raw, ok := settings[legacyActivity]; ok {
		if _, has := stats["activity"]; !has {
			var activity map[string]int
			if json.Unmarshal(raw, &activity) == nil {
				stats.SetActivity(activity)
			}
		}
		delete(settings, legacyActivity)
	}
	if raw, ok := settings[legacyTodayNewCount]; ok {
		_ = json.Unmarshal(raw, &quota.TodayNewCount)
		delete(settings, legacyTodayNewCount)
	}
	if raw, ok := settings[legacyLastStudyDate]; ok {
		_ = json.Unmarshal(raw, &quota.LastStudyDate)
		delete(settings, legacyLastStudyDate)
	}
	return quota
}
