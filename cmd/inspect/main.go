package main

import (
	"campus-chat/repositories"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath string `envconfig:"INSPECT_BADGER_FILEPATH" default:"./data/badger"`
	// INSPECT_COLOURS highlights the kind column
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

var kindColours = map[string]color.Color{
	"MESSAGE":   color.FgGreen,
	"REACTION":  color.FgYellow,
	"VIEW":      color.FgCyan,
	"INDEX":     color.FgGray,
	"CORRUPTED": color.FgRed,
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	dbPath := flag.String("db", cfg.BadgerFilepath, "Path to badger DB")
	// msgid: rows are index entries, skipped unless asked for
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Detail"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			row := repositories.Describe(item.KeyCopy(nil), value)
			timestamp := ""
			if !row.At.IsZero() {
				timestamp = row.At.Format("2006-01-02 15:04:05")
			}
			kind := row.Kind
			if c, ok := kindColours[kind]; ok && cfg.Colours {
				kind = c.Render(kind)
			}
			table.Append([]string{row.Key, kind, timestamp, row.Detail})
			rows++
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
	fmt.Printf("%d rows under %q\n", rows, *prefix)
}
