// Package normalize implements the "unique & truthy" list normalization
// applied to every produced list, plus the URL helpers used for dedup.
package normalize

import "strings"

// Unique returns the non-zero elements of items in first-seen order with
// duplicates collapsed. It always returns a non-nil slice, and
// Unique(Unique(x)) equals Unique(x).
func Unique[T comparable](items []T) []T {
	var zero T
	out := make([]T, 0, len(items))
	seen := make(map[T]struct{}, len(items))
	for _, it := range items {
		if it == zero {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Strings trims surrounding whitespace from each element, then applies Unique.
func Strings(items []string) []string {
	trimmed := make([]string, 0, len(items))
	for _, s := range items {
		trimmed = append(trimmed, strings.TrimSpace(s))
	}
	return Unique(trimmed)
}

// UniqueBy keeps the first element seen for each key. Elements with an
// empty key are dropped.
func UniqueBy(items []string, key func(string) string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		k := key(it)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}
