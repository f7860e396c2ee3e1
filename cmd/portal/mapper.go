package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/mama165/sdk-go/database"

	"client-portal/cache"
)

// PortalMapper labels each key with its family for the debug inspector:
// rows, unique and secondary indexes, cache entries and local storage.
func PortalMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	family, _, _ := strings.Cut(key, ":")
	row.Type = strings.ToUpper(family)

	if strings.HasPrefix(key, cache.BadgerPrefix) {
		value, expiresAt, err := cache.DecodeEntry(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		row.Detail = fmt.Sprintf("%s (expires in %s)", value, time.Until(expiresAt).Round(time.Second))
	}
	return row
}
