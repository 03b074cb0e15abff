package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"fundwatch/internal/instrument"
)

// Observation is one recorded price sample for an instrument.
type Observation struct {
	ID             int64
	InstrumentKey  instrument.Key
	Price          decimal.Decimal
	PriceDate      *string
	FetchedAt      time.Time
	Performances   map[int]decimal.Decimal
	OngoingCharges *decimal.Decimal
}

// Subscription binds an instrument to a delivery channel within a guild.
type Subscription struct {
	ID            int64
	InstrumentKey instrument.Key
	GuildID       string
	ChannelID     string
	SubscribedAt  time.Time
}

// Statistics summarises an instrument's stored history. Min, max, mean,
// latest and earliest are only set when Count is greater than zero.
type Statistics struct {
	Count     int64
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	MeanPrice *decimal.Decimal
	Latest    *Observation
	Earliest  *Observation
}
