// Package model defines the persisted entities derived from the
// transaction feed, plus the mutation set a single feed row produces.
package model

import "time"

// Setting is one named datum in the settings table, the engine's only
// durable cross-run state.
type Setting struct {
	Name string `gorm:"primaryKey;column:name" json:"name"`
	Data string `gorm:"column:data" json:"data"`
}

func (Setting) TableName() string { return "settings" }

// Area is one (area_type, area) pair of the geographic hierarchy.
// Uniqueness on the pair is enforced by the composite primary key.
type Area struct {
	AreaType string `gorm:"primaryKey;column:area_type" json:"area_type"`
	Area     string `gorm:"primaryKey;column:area" json:"area"`
}

func (Area) TableName() string { return "areas" }

// Postcode is keyed by the raw postcode string. First writer wins: a
// reappearing postcode never refreshes the stored row.
type Postcode struct {
	Postcode string `gorm:"primaryKey;column:postcode" json:"postcode"`
	Street   string `gorm:"column:street" json:"street"`
	Town     string `gorm:"column:town" json:"town"`
	District string `gorm:"column:district" json:"district"`
	County   string `gorm:"column:county" json:"county"`
	Outcode  string `gorm:"column:outcode" json:"outcode"`
	Area     string `gorm:"column:area" json:"area"`
	Sector   string `gorm:"column:sector" json:"sector"`
}

func (Postcode) TableName() string { return "postcodes" }

// House is keyed by PAON+SAON+postcode. Houses are never deleted, even
// when every sale referencing them is.
type House struct {
	HouseID  string `gorm:"primaryKey;column:house_id" json:"house_id"`
	PAON     string `gorm:"column:paon" json:"paon"`
	SAON     string `gorm:"column:saon" json:"saon"`
	Type     string `gorm:"column:type" json:"type"`
	Postcode string `gorm:"column:postcode" json:"postcode"`
}

func (House) TableName() string { return "houses" }

// Sale is keyed by the transaction unique identifier from the feed.
type Sale struct {
	TUI      string    `gorm:"primaryKey;column:tui" json:"tui"`
	Price    int64     `gorm:"column:price" json:"price"`
	Date     time.Time `gorm:"column:date" json:"date"`
	New      bool      `gorm:"column:new" json:"new"`
	Freehold bool      `gorm:"column:freehold" json:"freehold"`
	PPDCat   string    `gorm:"column:ppd_cat" json:"ppd_cat"`
	HouseID  string    `gorm:"column:house_id" json:"house_id"`
}

func (Sale) TableName() string { return "sales" }
