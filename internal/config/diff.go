package config

import (
	"encoding/json"
	"reflect"
)

// ChangedSections lists the top-level keys whose values differ. Only
// "logging" can be applied without a restart.
func ChangedSections(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	sections := []struct {
		name     string
		old, new any
	}{
		{"telegram", oldCfg.Telegram, newCfg.Telegram},
		{"panel", oldCfg.Panel, newCfg.Panel},
		{"like_api", oldCfg.LikeAPI, newCfg.LikeAPI},
		{"notifier", oldCfg.Notifier, newCfg.Notifier},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"scheduler", oldCfg.Scheduler, newCfg.Scheduler},
		{"logging", oldCfg.Logging, newCfg.Logging},
	}
	var out []string
	for _, s := range sections {
		if !sameJSON(s.old, s.new) {
			out = append(out, s.name)
		}
	}
	return out
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ja) == string(jb)
}
