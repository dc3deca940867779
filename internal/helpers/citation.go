package helpers

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/newschat/models"
)

// PassageLabel returns the stable reference marker for a 1-based rank: "S1".
func PassageLabel(rank int) string {
	return fmt.Sprintf("S%d", rank)
}

// FormatPassage renders one grounding passage for the prompt in a consistent
// layout:
//
//	[S1] Title (domain, YYYY-MM-DD)
//	passage text
func FormatPassage(marker string, p models.RetrievedPassage) string {
	var header []string
	header = append(header, "["+marker+"]")
	if title := strings.TrimSpace(p.Chunk.Title); title != "" {
		header = append(header, title)
	}
	meta := extractDomain(p.Chunk.ArticleURL)
	if !p.Chunk.PublishedAt.IsZero() {
		date := p.Chunk.PublishedAt.Format("2006-01-02")
		if meta != "" {
			meta = meta + ", " + date
		} else {
			meta = date
		}
	}
	if meta != "" {
		header = append(header, "("+meta+")")
	}
	return strings.Join(header, " ") + "\n" + strings.TrimSpace(p.Chunk.Text)
}

var markerRe = regexp.MustCompile(`\[(S\d+)\]`)

// MarkerScanner finds reference markers like [S1] in a token stream, where a
// marker may be split across token boundaries. Each marker is reported once,
// in first-occurrence order.
type MarkerScanner struct {
	tail string
	seen map[string]bool
}

// NewMarkerScanner creates an empty scanner.
func NewMarkerScanner() *MarkerScanner {
	return &MarkerScanner{seen: make(map[string]bool)}
}

// Feed consumes the next token and returns any newly completed markers.
func (s *MarkerScanner) Feed(token string) []string {
	s.tail += token
	var found []string
	locs := markerRe.FindAllStringSubmatchIndex(s.tail, -1)
	end := 0
	for _, loc := range locs {
		marker := s.tail[loc[2]:loc[3]]
		if !s.seen[marker] {
			s.seen[marker] = true
			found = append(found, marker)
		}
		end = loc[1]
	}
	rest := s.tail[end:]
	// Keep only a suffix that could still become a marker.
	if i := strings.LastIndexByte(rest, '['); i >= 0 && len(rest)-i <= 12 {
		s.tail = rest[i:]
	} else {
		s.tail = ""
	}
	return found
}

func extractDomain(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	return host
}
