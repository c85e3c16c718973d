package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"creator-paywall/internal/domain"
)

// Content is a sellable item owned by a creator. Only the fields the
// settlement core reads or maintains live here; media, tags and the rest of
// the catalog belong to the catalog service.
type Content struct {
	ID           string
	CreatorID    string
	Title        string
	Price        int64 // minor units
	IsActive     bool
	Views        int64
	Purchases    int64
	TotalRevenue int64 // minor units, sum of prices actually paid
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewContent(id, creatorID, title string, price int64) (*Content, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if strings.TrimSpace(creatorID) == "" || strings.TrimSpace(title) == "" {
		return nil, domain.ErrInvalidArgument
	}
	if price <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Content{
		ID:        id,
		CreatorID: creatorID,
		Title:     title,
		Price:     price,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Purchasable reports whether the item can currently be bought.
func (c *Content) Purchasable() bool { return c != nil && c.IsActive }
