package domain

import "time"

// Tier is the pricing category of a server.
type Tier string

const (
	TierFree   Tier = "free"
	TierPaid5  Tier = "paid_5"
	TierPaid10 Tier = "paid_10"
	TierPaid15 Tier = "paid_15"
)

var tierPrices = map[Tier]int{
	TierFree:   0,
	TierPaid5:  5,
	TierPaid10: 10,
	TierPaid15: 15,
}

// ParseTier validates a tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := tierPrices[t]; !ok {
		return "", ErrInvalidTier
	}
	return t, nil
}

// Price returns the purchase price of the tier. Unknown tiers cost nothing.
func (t Tier) Price() int {
	return tierPrices[t]
}

// Server Model
type Server struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	URL        string    `gorm:"column:server_url;size:500;not null" json:"server_url"`
	Tier       Tier      `gorm:"column:server_type;size:20;not null;index" json:"server_type"`
	IsOccupied bool      `gorm:"not null;default:false;index" json:"is_occupied"`
	OccupiedBy *uint     `json:"occupied_by"`
	Price      int       `gorm:"not null;default:0" json:"price"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Consistent reports whether the occupancy flag agrees with the occupant reference.
func (s *Server) Consistent() bool {
	return s.IsOccupied == (s.OccupiedBy != nil)
}
