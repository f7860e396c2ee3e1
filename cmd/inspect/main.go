package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"

	"client-portal/cache"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"./data/badger"`
	// INSPECT_COLOURS highlights expired cache entries
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

// entry is one displayed key.
type entry struct {
	Key     string
	Family  string
	Expires string
	Detail  string
	Expired bool
}

const maxDetail = 60

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Config error: ", err)
	}
	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	prefix := flag.String("prefix", cache.BadgerPrefix, "Prefix to scan, empty for every key")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer func() { _ = db.Close() }()

	entries, err := collect(db, *prefix, time.Now())
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, entries, cfg.Colours)
}

// collect reads every key under prefix. Cache entries are decoded and
// flagged when their logical expiry is before now, native TTL may still
// keep them on disk for up to a second.
func collect(db *badger.DB, prefix string, now time.Time) ([]entry, error) {
	var entries []entry
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			family, _, _ := strings.Cut(key, ":")
			e := entry{Key: key, Family: strings.ToUpper(family), Expires: "-"}
			if ts := item.ExpiresAt(); ts > 0 {
				e.Expires = time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
			}

			err := item.Value(func(v []byte) error {
				if !strings.HasPrefix(key, cache.BadgerPrefix) {
					e.Detail = truncate(string(v))
					return nil
				}
				value, expiresAt, err := cache.DecodeEntry(v)
				if err != nil {
					fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
					return nil
				}
				e.Detail = truncate(value)
				e.Expires = expiresAt.UTC().Format(time.RFC3339)
				e.Expired = !now.Before(expiresAt)
				return nil
			})
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) > maxDetail {
		return string(r[:maxDetail]) + "…"
	}
	return s
}

func render(w io.Writer, entries []entry, colours bool) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Key", "Family", "Expires", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, e := range entries {
		expires := e.Expires
		if e.Expired {
			expires += " (expired)"
			if colours {
				expires = color.New(color.FgRed).Render(expires)
			}
		}
		table.Append([]string{e.Key, e.Family, expires, e.Detail})
	}
	table.Render()
}
