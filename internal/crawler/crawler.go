package crawler

import (
	"strings"

	"github.com/x-way/crawlerdetect"
)

// Detector reports whether a User-Agent belongs to a bot.
type Detector interface {
	IsCrawler(userAgent string) bool
}

type UserAgentDetector struct{}

func New() UserAgentDetector {
	return UserAgentDetector{}
}

// IsCrawler treats a missing User-Agent as a crawler so anonymous fetches don't count as clicks.
func (UserAgentDetector) IsCrawler(userAgent string) bool {
	if strings.TrimSpace(userAgent) == "" {
		return true
	}
	return crawlerdetect.IsCrawler(userAgent)
}
