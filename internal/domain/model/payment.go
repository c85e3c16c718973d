package model

import (
	"fmt"
	"strconv"

	"creator-paywall/internal/domain"
)

type IntentStatus string

const (
	IntentStatusRequiresPayment IntentStatus = "requires_payment_method"
	IntentStatusProcessing      IntentStatus = "processing"
	IntentStatusSucceeded       IntentStatus = "succeeded" // the only terminal-success state
	IntentStatusCanceled        IntentStatus = "canceled"
	IntentStatusFailed          IntentStatus = "failed"
)

// Metadata keys attached to every intent. The workflow keeps no local state
// between RequestIntent and ConfirmPurchase; these travel with the intent.
const (
	MetaContentID       = "contentId"
	MetaBuyerID         = "buyerId"
	MetaCreatorID       = "creatorId"
	MetaPlatformFee     = "platformFee"
	MetaCreatorEarnings = "creatorEarnings"
)

// IntentMetadata is the purchase context tagged onto a payment intent.
type IntentMetadata struct {
	ContentID       string
	BuyerID         string
	CreatorID       string
	PlatformFee     int64
	CreatorEarnings int64
}

func (m IntentMetadata) ToMap() map[string]string {
	return map[string]string{
		MetaContentID:       m.ContentID,
		MetaBuyerID:         m.BuyerID,
		MetaCreatorID:       m.CreatorID,
		MetaPlatformFee:     strconv.FormatInt(m.PlatformFee, 10),
		MetaCreatorEarnings: strconv.FormatInt(m.CreatorEarnings, 10),
	}
}

// ParseIntentMetadata reads metadata written by ToMap. Buyer and content ids
// are required; the amounts are informational.
func ParseIntentMetadata(md map[string]string) (IntentMetadata, error) {
	m := IntentMetadata{
		ContentID: md[MetaContentID],
		BuyerID:   md[MetaBuyerID],
		CreatorID: md[MetaCreatorID],
	}
	if m.ContentID == "" || m.BuyerID == "" {
		return IntentMetadata{}, fmt.Errorf("%w: intent metadata missing buyer or content", domain.ErrInvalidArgument)
	}
	if v := md[MetaPlatformFee]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return IntentMetadata{}, fmt.Errorf("%w: platform fee %q", domain.ErrInvalidArgument, v)
		}
		m.PlatformFee = n
	}
	if v := md[MetaCreatorEarnings]; v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return IntentMetadata{}, fmt.Errorf("%w: creator earnings %q", domain.ErrInvalidArgument, v)
		}
		m.CreatorEarnings = n
	}
	return m, nil
}

// Intent is the provider-side payment attempt as the gateway reports it.
type Intent struct {
	Ref          string
	ClientSecret string // continuation token handed to the client
	Amount       int64
	Currency     string
	Status       IntentStatus
	Metadata     map[string]string
}

func (i *Intent) Succeeded() bool { return i != nil && i.Status == IntentStatusSucceeded }

// Transfer is a provider payout created for a withdrawal.
type Transfer struct {
	Ref         string
	Amount      int64
	Destination string
	Status      string
}

type GatewayEventKind string

const (
	EventIntentSucceeded  GatewayEventKind = "payment_intent.succeeded"
	EventIntentFailed     GatewayEventKind = "payment_intent.payment_failed"
	EventTransferReversed GatewayEventKind = "transfer.reversed"
)

// GatewayEvent is a verified webhook notification. Only the fields the
// listener acts on are lifted out of the provider payload.
type GatewayEvent struct {
	ID          string
	Kind        GatewayEventKind
	IntentRef   string
	Metadata    map[string]string
	TransferRef string
}
