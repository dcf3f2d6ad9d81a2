package backend

import (
	"strconv"
	"strings"
	"time"

	"cloudsave/internal/cloudsave"
)

// The COS listing response is XML, but it is not guaranteed to be
// well-formed across regions, so the parsers here are deliberately
// tolerant line scanners over <Contents> blocks rather than a strict
// XML decoder.

// listingEntry accumulates the fields of one <Contents> block.
type listingEntry struct {
	key       string
	sizeBytes int64
	timestamp time.Time
	checksum  string
}

func (e *listingEntry) build(now time.Time) *cloudsave.SaveMetadata {
	if e.key == "" {
		return nil
	}
	ts := e.timestamp
	if ts.IsZero() {
		ts = now
	}
	return &cloudsave.SaveMetadata{
		Timestamp:  ts,
		SizeBytes:  e.sizeBytes,
		Checksum:   e.checksum,
		Compressed: true,
		ObjectKey:  e.key,
	}
}

// parseListing scans a listing response and returns the save archives
// it describes. Only ".zip" objects under "saves/" are included; other
// objects in the bucket are not ours.
func parseListing(body string, now time.Time, logger cloudsave.Logger) []*cloudsave.SaveMetadata {
	var saves []*cloudsave.SaveMetadata
	var current *listingEntry

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "<Contents>") {
			current = &listingEntry{}
			continue
		}
		if strings.HasPrefix(line, "</Contents>") {
			if current != nil {
				if meta := current.build(now); meta != nil &&
					strings.HasPrefix(meta.ObjectKey, "saves/") && strings.HasSuffix(meta.ObjectKey, ".zip") {
					saves = append(saves, meta)
				}
				current = nil
			}
			continue
		}
		if current == nil {
			continue
		}

		if v, ok := extractXMLValue(line, "Key"); ok {
			current.key = v
		} else if v, ok := extractXMLValue(line, "Size"); ok {
			if size, err := strconv.ParseInt(v, 10, 64); err == nil {
				current.sizeBytes = size
			}
		} else if v, ok := extractXMLValue(line, "LastModified"); ok {
			if ts, err := time.Parse(time.RFC3339, v); err == nil {
				current.timestamp = ts.UTC()
			} else {
				logger.Warn("unparseable listing timestamp", "value", v)
			}
		} else if v, ok := extractXMLValue(line, "ETag"); ok {
			if etag := cleanETag(v); etag != "" {
				current.checksum = etag
			}
		}
	}
	return saves
}

// parseUsage sums object sizes over the <Contents> blocks of a listing.
func parseUsage(body string) (usedBytes int64, fileCount int64) {
	inContents := false
	var currentSize int64
	haveSize := false

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, "<Contents>"):
			inContents = true
			haveSize = false
		case strings.Contains(line, "</Contents>"):
			if inContents && haveSize {
				usedBytes += currentSize
				fileCount++
			}
			inContents = false
		case inContents:
			if v, ok := extractXMLValue(line, "Size"); ok {
				if size, err := strconv.ParseInt(v, 10, 64); err == nil {
					currentSize = size
					haveSize = true
				}
			}
		}
	}
	return usedBytes, fileCount
}

// extractXMLValue pulls the text between <tag> and </tag> on one line.
func extractXMLValue(line, tag string) (string, bool) {
	open := "<" + tag + ">"
	close := "</" + tag + ">"

	start := strings.Index(line, open)
	if start < 0 {
		return "", false
	}
	end := strings.Index(line, close)
	if end < 0 || start+len(open) > end {
		return "", false
	}
	return line[start+len(open) : end], true
}

// cleanETag strips quotes, whitespace, and any other decoration the
// provider wraps around an ETag, keeping only alphanumerics.
func cleanETag(etag string) string {
	etag = strings.Trim(strings.TrimSpace(etag), `"'`)
	var b strings.Builder
	for _, r := range etag {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
