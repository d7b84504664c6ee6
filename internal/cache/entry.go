package cache

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Entry is one cached derivation result.
type Entry struct {
	ID             int64
	Layer          string
	Key            string
	MediaIdentity  string
	Artifact       string
	PayloadPath    string
	Bytes          int64
	Checksum       string
	Quality        float64
	Tool           string
	Language       string
	SimilarityText string
	Current        bool
	CreatedAt      time.Time
	LastUsedAt     time.Time
	ExpiresAt      *time.Time
}

// Expired reports whether the entry's TTL has elapsed.
func (e *Entry) Expired(now time.Time) bool {
	return e != nil && e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// Attrs carries metadata supplied when storing an entry.
type Attrs struct {
	MediaIdentity  string
	Artifact       string
	Quality        float64
	Tool           string
	Language       string
	SimilarityText string
}

// Key builds a layer cache key from its parts, e.g. identity plus model name.
func Key(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			cleaned = append(cleaned, part)
		}
	}
	return strings.Join(cleaned, "/")
}

const entryColumns = "id, layer, cache_key, media_identity, artifact, payload_path, bytes, checksum, quality, tool, language, similarity_text, current, created_at, last_used_at, expires_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*Entry, error) {
	var (
		id            int64
		layer         string
		key           string
		mediaIdentity sql.NullString
		artifact      sql.NullString
		payloadPath   string
		bytes         int64
		checksum      string
		quality       float64
		tool          sql.NullString
		language      sql.NullString
		similarity    sql.NullString
		current       int
		createdRaw    sql.NullString
		lastUsedRaw   sql.NullString
		expiresRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&layer,
		&key,
		&mediaIdentity,
		&artifact,
		&payloadPath,
		&bytes,
		&checksum,
		&quality,
		&tool,
		&language,
		&similarity,
		&current,
		&createdRaw,
		&lastUsedRaw,
		&expiresRaw,
	); err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:             id,
		Layer:          layer,
		Key:            key,
		MediaIdentity:  mediaIdentity.String,
		Artifact:       artifact.String,
		PayloadPath:    payloadPath,
		Bytes:          bytes,
		Checksum:       checksum,
		Quality:        quality,
		Tool:           tool.String,
		Language:       language.String,
		SimilarityText: similarity.String,
		Current:        current != 0,
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		entry.CreatedAt = created
	}
	if used, err := parseTimeString(lastUsedRaw.String); err == nil {
		entry.LastUsedAt = used
	}
	if expiresRaw.Valid {
		if expires, err := parseTimeString(expiresRaw.String); err == nil {
			entry.ExpiresAt = &expires
		}
	}
	return entry, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
