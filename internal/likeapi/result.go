package likeapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// NotAvailable fills text fields the API left out.
const NotAvailable = "N/A"

// Result is the parsed like response with defaults already applied.
type Result struct {
	PlayerName  string
	Level       string
	LikesBefore int64
	LikesAfter  int64
	LikesGiven  int64
}

// wireResult matches the API's field names. Every field is optional and may
// arrive as a number or a string.
type wireResult struct {
	PlayerName         flexString `json:"PlayerName"`
	Level              flexString `json:"Level"`
	LikesbeforeCommand flexInt    `json:"LikesbeforeCommand"`
	LikesafterCommand  flexInt    `json:"LikesafterCommand"`
	LikesGivenByAPI    flexInt    `json:"LikesGivenByAPI"`
}

// Parse decodes a 200 body. ok is false for null or an empty object, which
// carry nothing to announce.
func Parse(body []byte) (*Result, bool, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, false, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, false, fmt.Errorf("decode like response: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	var w wireResult
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, false, fmt.Errorf("decode like response: %w", err)
	}
	return &Result{
		PlayerName:  w.PlayerName.or(NotAvailable),
		Level:       w.Level.or(NotAvailable),
		LikesBefore: w.LikesbeforeCommand.v,
		LikesAfter:  w.LikesafterCommand.v,
		LikesGiven:  w.LikesGivenByAPI.v,
	}, true, nil
}

type flexString struct {
	v   string
	set bool
}

func (f flexString) or(def string) string {
	if !f.set {
		return def
	}
	return f.v
}

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.v, f.set = s, true
		return nil
	}
	// Numbers and booleans keep their literal text.
	f.v, f.set = string(b), true
	return nil
}

// flexInt keeps 0 for values that do not read as a count, so one odd field
// never costs the whole result.
type flexInt struct{ v int64 }

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.v = n
		return nil
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		f.v = int64(fl)
	}
	return nil
}
