// Package repositories implements the entity store on BadgerDB.
//
// Values are JSON-encoded. Keys follow fixed prefixes so related records
// can be walked with prefix scans:
//
//	user:<id>                        User record
//	useremail:<email>                user id (email uniqueness)
//	chat:<id>                        Chat record
//	member:<userId>:<chatId>         chat id (chats-for-user index)
//	pair:<minId>:<maxId>             chat id (direct-chat dedup)
//	msg:<chatId>:<padded ns>:<id>    Message record, chronological
//	msgid:<id>                       primary message key (by-id lookup)
//	latest:<chatId>                  id of the chat's latest message
package repositories

import (
	"fmt"
	"time"

	"yappify/domain"
)

func userKey(id string) []byte {
	return []byte("user:" + id)
}

func userEmailKey(email string) []byte {
	return []byte("useremail:" + email)
}

func chatKey(id string) []byte {
	return []byte("chat:" + id)
}

func memberKey(userID, chatID string) []byte {
	return []byte("member:" + userID + ":" + chatID)
}

func memberPrefix(userID string) []byte {
	return []byte("member:" + userID + ":")
}

func pairKey(userA, userB string) []byte {
	lo, hi := domain.PairKey(userA, userB)
	return []byte("pair:" + lo + ":" + hi)
}

// messageKey orders messages chronologically per chat. The 19-digit zero
// padding keeps lexicographic and time order identical; the message id
// disambiguates two messages stored in the same nanosecond.
func messageKey(chatID string, at time.Time, id string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", chatID, at.UnixNano(), id))
}

func messagePrefix(chatID string) []byte {
	return []byte("msg:" + chatID + ":")
}

func messageIDKey(id string) []byte {
	return []byte("msgid:" + id)
}

func latestKey(chatID string) []byte {
	return []byte("latest:" + chatID)
}
