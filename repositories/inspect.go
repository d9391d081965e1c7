package repositories

import (
	"bytes"
	"fmt"
	"time"
)

// InspectRow is a human readable view of one raw badger entry.
type InspectRow struct {
	Key    string
	Kind   string
	At     time.Time
	Detail string
}

// Describe decodes a raw entry according to its key prefix.
// Unknown or corrupted entries are reported, not rejected.
func Describe(key, value []byte) InspectRow {
	row := InspectRow{Key: string(key), Kind: "UNKNOWN"}
	switch {
	case bytes.HasPrefix(key, []byte("msgid:")):
		row.Kind = "INDEX"
		row.Detail = string(value)
	case bytes.HasPrefix(key, []byte("msg:")):
		var dm DiskMessage
		if err := json.Unmarshal(value, &dm); err != nil {
			return corrupted(row, err)
		}
		row.Kind = "MESSAGE"
		row.At = time.Unix(0, dm.At).UTC()
		row.Detail = fmt.Sprintf("[%s] %s: %s", dm.Room, dm.Author, dm.Content)
		if dm.Edited {
			row.Detail += " (edited)"
		}
	case bytes.HasPrefix(key, []byte("react:")):
		var dr DiskReaction
		if err := json.Unmarshal(value, &dr); err != nil {
			return corrupted(row, err)
		}
		row.Kind = "REACTION"
		row.At = time.Unix(0, dr.At).UTC()
		row.Detail = fmt.Sprintf("%s %s on %s", dr.UserID, dr.Emoji, dr.MessageID)
	case bytes.HasPrefix(key, []byte("view:")):
		var dv DiskView
		if err := json.Unmarshal(value, &dv); err != nil {
			return corrupted(row, err)
		}
		row.Kind = "VIEW"
		row.At = time.Unix(0, dv.At).UTC()
		row.Detail = fmt.Sprintf("%s viewed %s", dv.ViewerID, dv.MessageID)
	}
	return row
}

func corrupted(row InspectRow, err error) InspectRow {
	row.Kind = "CORRUPTED"
	row.Detail = err.Error()
	return row
}
