// Command inspect dumps the chat store for debugging. It opens the
// database read-only and renders one table per record kind.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"yappify/domain"
)

func main() {
	dbPath := flag.String("db", "/tmp/yappify", "Path to badger DB")
	prefix := flag.String("prefix", "", "Restrict the scan to one prefix (user:, chat:, msg:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	if *prefix == "" || strings.HasPrefix("user:", *prefix) {
		dumpUsers(db)
	}
	if *prefix == "" || strings.HasPrefix("chat:", *prefix) {
		dumpChats(db)
	}
	if *prefix == "" || strings.HasPrefix("msg:", *prefix) {
		dumpMessages(db)
	}
}

func dumpUsers(db *badger.DB) {
	color.Bold.Println("Users")
	table := newTable([]string{"Key", "Name", "Email", "Created"})
	scan(db, "user:", func(key string, value []byte) {
		var user domain.User
		if json.Unmarshal(value, &user) != nil {
			return
		}
		table.Append([]string{key, user.Name, user.Email, user.CreatedAt.Format("2006-01-02 15:04:05")})
	})
	table.Render()
	fmt.Println()
}

func dumpChats(db *badger.DB) {
	color.Bold.Println("Chats")
	table := newTable([]string{"Key", "Name", "Group", "Admin", "Members"})
	scan(db, "chat:", func(key string, value []byte) {
		var chat domain.Chat
		if json.Unmarshal(value, &chat) != nil {
			return
		}
		table.Append([]string{
			key,
			chat.Name,
			fmt.Sprintf("%t", chat.IsGroup),
			shortID(chat.Admin),
			fmt.Sprintf("%d", len(chat.Members)),
		})
	})
	table.Render()
	fmt.Println()
}

func dumpMessages(db *badger.DB) {
	color.Bold.Println("Messages")
	table := newTable([]string{"Key", "Sender", "At", "Edited", "ReadBy", "Content"})
	scan(db, "msg:", func(key string, value []byte) {
		var msg domain.Message
		if json.Unmarshal(value, &msg) != nil {
			return
		}
		table.Append([]string{
			key,
			shortID(msg.SenderID),
			msg.CreatedAt.Format("15:04:05"),
			fmt.Sprintf("%t", msg.Edited),
			fmt.Sprintf("%d", len(msg.ReadBy)),
			truncate(msg.Content, 40),
		})
	})
	table.Render()
	fmt.Println()
}

// scan walks every primary record under the prefix. Index entries hold
// references instead of JSON documents and are skipped.
func scan(db *badger.DB, prefix string, fn func(key string, value []byte)) {
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				if len(v) == 0 || v[0] != '{' {
					return nil
				}
				fn(key, append([]byte(nil), v...))
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

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func openDB(path string) (*badger.DB, error) {
	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}
