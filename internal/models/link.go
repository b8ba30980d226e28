package models

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// ShortURL is a short link on the site.
type ShortURL struct {
	ShortCode    string
	LongURL      string
	Creator      int64
	CreationDate time.Time
	Notes        string
	Clicks       int
}

func (s ShortURL) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ShortCode    string  `json:"short_code"`
		LongURL      string  `json:"long_url"`
		Notes        string  `json:"notes"`
		Creator      string  `json:"creator"`
		CreationDate float64 `json:"creation_date"`
		Clicks       int     `json:"clicks"`
	}{
		ShortCode:    s.ShortCode,
		LongURL:      s.LongURL,
		Notes:        s.Notes,
		Creator:      strconv.FormatInt(s.Creator, 10),
		CreationDate: float64(s.CreationDate.UnixMicro()) / 1e6,
		Clicks:       s.Clicks,
	})
}

// APIKey is a valid authentication key for the site.
// A key without a creator is a service token valid for any user.
type APIKey struct {
	Key     string
	IsAdmin bool
	Creator *int64
}

func (k APIKey) MarshalJSON() ([]byte, error) {
	var creator *string
	if k.Creator != nil {
		s := strconv.FormatInt(*k.Creator, 10)
		creator = &s
	}
	return json.Marshal(struct {
		Key     string  `json:"key"`
		IsAdmin bool    `json:"is_admin"`
		Creator *string `json:"creator"`
	}{
		Key:     k.Key,
		IsAdmin: k.IsAdmin,
		Creator: creator,
	})
}

// CreatorID returns the owning Discord user, or 0 for service tokens.
func (k APIKey) CreatorID() int64 {
	if k.Creator == nil {
		return 0
	}
	return *k.Creator
}
