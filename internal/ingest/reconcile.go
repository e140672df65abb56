// Package ingest reconciles raw feed rows into store mutations and
// applies them with bounded concurrency.
package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/landreg/housesync/internal/feed"
	"github.com/landreg/housesync/internal/model"
	"github.com/landreg/housesync/internal/postcode"
)

// areaTypes is the fixed geographic hierarchy, in insert order.
var areaTypes = []string{"postcode", "street", "town", "district", "county", "outcode", "area", "sector"}

// BuildMutation maps one record to its entity mutations.
//
// Change and Delete actions remove the existing sale; Add and Change
// actions upsert areas, postcode, house and sale, all conflict-ignore.
// A bad price or date fails this record only (feed.ErrMalformedRecord).
func BuildMutation(rec feed.Record) (model.RecordMutation, error) {
	var mu model.RecordMutation

	if rec.Action == feed.ActionChange || rec.Action == feed.ActionDelete {
		mu.DeleteSaleTUI = rec.TUI
	}
	if rec.Action != feed.ActionAdd && rec.Action != feed.ActionChange {
		return mu, nil
	}

	parts := postcode.Parse(rec.Postcode)

	areaValues := []string{
		rec.Postcode, rec.Street, rec.Town, rec.District,
		rec.County, parts.Outcode, parts.Area, parts.Sector,
	}
	mu.Areas = make([]model.Area, len(areaTypes))
	for i, areaType := range areaTypes {
		mu.Areas[i] = model.Area{AreaType: areaType, Area: areaValues[i]}
	}

	mu.Postcode = &model.Postcode{
		Postcode: rec.Postcode,
		Street:   rec.Street,
		Town:     rec.Town,
		District: rec.District,
		County:   rec.County,
		Outcode:  parts.Outcode,
		Area:     parts.Area,
		Sector:   parts.Sector,
	}

	houseID := rec.PAON + rec.SAON + rec.Postcode
	mu.House = &model.House{
		HouseID:  houseID,
		PAON:     rec.PAON,
		SAON:     rec.SAON,
		Type:     rec.PropertyType,
		Postcode: rec.Postcode,
	}

	price, err := strconv.ParseInt(rec.Price, 10, 64)
	if err != nil {
		return model.RecordMutation{}, fmt.Errorf("%w: price %q: %v", feed.ErrMalformedRecord, rec.Price, err)
	}
	date, err := time.Parse(feed.DateLayout, rec.Date)
	if err != nil {
		return model.RecordMutation{}, fmt.Errorf("%w: date %q: %v", feed.ErrMalformedRecord, rec.Date, err)
	}

	mu.Sale = &model.Sale{
		TUI:      rec.TUI,
		Price:    price,
		Date:     date,
		New:      rec.NewBuild == "Y",
		Freehold: rec.Tenure == "F",
		PPDCat:   rec.PPDCategory,
		HouseID:  houseID,
	}
	return mu, nil
}
