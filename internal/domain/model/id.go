package model

import (
	"fmt"

	"github.com/google/uuid"
	"go.jetify.com/typeid/v2"
)

// Entity id prefixes. Ids are K-sortable TypeIDs ("pur_01h2x...").
const (
	PrefixPurchase   = "pur"
	PrefixWithdrawal = "wd"
)

func newID(prefix string) string {
	tid, err := typeid.Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("model: invalid id prefix %q: %v", prefix, err))
	}
	return tid.String()
}

func NewPurchaseID() string   { return newID(PrefixPurchase) }
func NewWithdrawalID() string { return newID(PrefixWithdrawal) }

var withdrawalKeySpace = uuid.MustParse("5b0f6c1e-8f0a-4d7e-9c55-2f4e1a7b3d90")

// WithdrawalIDForKey derives the withdrawal id from a caller's idempotency
// key. The same user and key always name the same withdrawal.
func WithdrawalIDForKey(userID, key string) string {
	u := uuid.NewSHA1(withdrawalKeySpace, []byte(userID+"\x00"+key))
	tid, err := typeid.FromUUID(PrefixWithdrawal, u.String())
	if err != nil {
		panic(fmt.Sprintf("model: derive withdrawal id: %v", err))
	}
	return tid.String()
}
