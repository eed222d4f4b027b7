package domain

import (
	"fmt"
	"strings"
)

// Source identifies the platform a product is migrated from
type Source string

const (
	SourceShopify   Source = "shopify"
	SourceWordPress Source = "wordpress"
	SourceWix       Source = "wix"
)

// Lane is a priority lane within a source's queue pair
type Lane string

const (
	LaneHigh   Lane = "high"
	LaneNormal Lane = "normal"
)

const queuePrefix = "import_"

// AllSources returns every supported source in a stable order
func AllSources() []Source {
	return []Source{SourceShopify, SourceWordPress, SourceWix}
}

// ParseSource converts user input into a Source
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidSource, s)
	}
	return src, nil
}

// Valid reports whether s is a supported source
func (s Source) Valid() bool {
	switch s {
	case SourceShopify, SourceWordPress, SourceWix:
		return true
	default:
		return false
	}
}

func (s Source) String() string {
	return string(s)
}

// QueueName returns the queue backing the given lane of a source
func QueueName(src Source, lane Lane) string {
	if lane == LaneHigh {
		return queuePrefix + string(src) + "_high"
	}
	return queuePrefix + string(src)
}

// Lanes returns the queues of a source, high priority first
func Lanes(src Source) []string {
	return []string{QueueName(src, LaneHigh), QueueName(src, LaneNormal)}
}
