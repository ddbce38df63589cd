package domain

// SettingsID is the primary key of the single settings row
const SettingsID uint = 1

// DefaultDeductionRate is applied when the settings row is first created
const DefaultDeductionRate = 1

// Settings Model
type Settings struct {
	ID                uint   `gorm:"primaryKey" json:"id"`                                    // Always SettingsID
	LogoURL           string `gorm:"size:500;not null;default:''" json:"logo_url"`            // Logo shown on every page
	BackgroundSongURL string `gorm:"size:500;not null;default:''" json:"background_song_url"` // Background audio
	CoinDeductionRate int    `gorm:"not null;default:1" json:"coin_deduction_rate"`           // Coins removed per sweep per occupied user
}

// DefaultSettings returns the row created on first access
func DefaultSettings() Settings {
	return Settings{ID: SettingsID, CoinDeductionRate: DefaultDeductionRate}
}
