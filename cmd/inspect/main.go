package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"chat-sync/domain"
	"chat-sync/gate"
	"chat-sync/projection"
)

// Read-only inspector over the local record store. Prints message and
// user records as tables; safe to run next to a live client thanks to
// the lock bypass.
func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", projection.MessagesPrefix, "Prefix to scan")
	flag.Parse()

	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	switch *prefix {
	case gate.UsersPrefix:
		dumpUsers(db, *prefix)
	default:
		dumpMessages(db, *prefix)
	}
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
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
	return table
}

func scan(db *badger.DB, prefix string, fn func(key string, value []byte)) {
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				fn(string(item.Key()), v)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}
}

func dumpMessages(db *badger.DB, prefix string) {
	table := newTable([]string{"Key", "Author", "Kind", "Created", "State", "Content"})

	scan(db, prefix, func(key string, value []byte) {
		var msg domain.Message
		if err := cbor.Unmarshal(value, &msg); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return
		}

		state := color.Green.Sprint("active")
		if msg.IsRetracted {
			state = color.Red.Sprint("retracted")
		}
		if msg.Pinned {
			state += color.Yellow.Sprint(" pinned")
		}

		content := msg.Content
		if len(content) > 48 {
			content = content[:48] + "…"
		}

		table.Append([]string{
			key,
			msg.AuthorName,
			string(msg.Kind),
			msg.CreatedAt.Format("15:04:05"),
			state,
			content,
		})
	})
	table.Render()
}

func dumpUsers(db *badger.DB, prefix string) {
	table := newTable([]string{"Identity", "Name", "Read", "Write", "Admin", "Presence", "Last seen"})

	scan(db, prefix, func(key string, value []byte) {
		var user domain.User
		if err := cbor.Unmarshal(value, &user); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", key, err)
			return
		}

		presence := color.Gray.Sprint("offline")
		if user.Presence.Online {
			presence = color.Green.Sprint("online")
		}
		lastSeen := "never"
		if !user.Presence.LastSeen.IsZero() {
			lastSeen = user.Presence.LastSeen.Format(time.RFC822)
		}

		table.Append([]string{
			user.Identity,
			user.DisplayName,
			flag2str(user.Permissions.Read),
			flag2str(user.Permissions.Write),
			flag2str(user.Permissions.Admin),
			presence,
			lastSeen,
		})
	})
	table.Render()
}

func flag2str(b bool) string {
	if b {
		return color.Green.Sprint("yes")
	}
	return "no"
}
