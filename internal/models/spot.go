// Package models defines the domain types for itinera.
package models

import (
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// SpotStatus is the lifecycle state of a spot in a room pool.
type SpotStatus string

const (
	StatusCandidate      SpotStatus = "candidate"
	StatusConfirmed      SpotStatus = "confirmed"
	StatusHotelCandidate SpotStatus = "hotel_candidate"
)

// ReservationStatus records whether a lodging spot has been booked.
type ReservationStatus string

const (
	Reserved   ReservationStatus = "reserved"
	Unreserved ReservationStatus = "unreserved"
)

// Spot is a place in a room's pool, as stored remotely.
type Spot struct {
	ID                string            `json:"id"`
	RoomID            string            `json:"room_id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	Day               int               `json:"day"`
	Order             int               `json:"order"`
	StayTime          *int              `json:"stay_time"`
	Status            SpotStatus        `json:"status"`
	IsHotel           bool              `json:"is_hotel"`
	ReservationStatus ReservationStatus `json:"reservation_status,omitempty"`
	ReservedBy        *string           `json:"reserved_by"`
	Price             *float64          `json:"price"`
	Comment           *string           `json:"comment"`
	Link              *string           `json:"link"`
	ImageURL          *string           `json:"image_url"`
	Coordinates       [2]float64        `json:"coordinates"` // lng, lat
	Votes             int               `json:"votes"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Confirmed reports whether the spot is scheduled for a day.
func (s Spot) Confirmed() bool {
	return s.Status == StatusConfirmed
}

// Lodging name keywords. Latin ones match case-insensitively on word
// boundaries so that "Inn" does not hit "dinner".
var (
	lodgingKeywords = []string{"ホテル", "旅館", "宿", "民宿", "ホステル", "リゾート"}
	lodgingWords    = []string{"hotel", "inn", "guest house", "guesthouse", "hostel", "resort"}
)

// LooksLikeLodging reports whether the spot is a place to spend the night:
// either flagged as a hotel or named like one.
func (s Spot) LooksLikeLodging() bool {
	if s.IsHotel {
		return true
	}
	for _, kw := range lodgingKeywords {
		if strings.Contains(s.Name, kw) {
			return true
		}
	}
	name := strings.ToLower(s.Name)
	for _, w := range lodgingWords {
		if containsWord(name, w) {
			return true
		}
	}
	return false
}

// containsWord reports whether w occurs in s with no letter or digit
// directly before or after it.
func containsWord(s, w string) bool {
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], w)
		if i < 0 {
			return false
		}
		start, end := off+i, off+i+len(w)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if !isWordRune(before) && !isWordRune(after) {
			return true
		}
		off = start + 1
	}
	return false
}

func isWordRune(r rune) bool {
	return r != utf8.RuneError && (unicode.IsLetter(r) || unicode.IsDigit(r))
}

// PinnedPlan is a saved snapshot of a day plan that can be restored later.
type PinnedPlan struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Title     string    `json:"title"`
	Day       int       `json:"day"`
	Timeline  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SpotField names a mutable spot field, for partial writes and merges.
type SpotField string

const (
	FieldName              SpotField = "name"
	FieldDay               SpotField = "day"
	FieldOrder             SpotField = "order"
	FieldStayTime          SpotField = "stay_time"
	FieldStatus            SpotField = "status"
	FieldIsHotel           SpotField = "is_hotel"
	FieldReservationStatus SpotField = "reservation_status"
	FieldReservedBy        SpotField = "reserved_by"
	FieldPrice             SpotField = "price"
	FieldComment           SpotField = "comment"
	FieldLink              SpotField = "link"
	FieldImageURL          SpotField = "image_url"
)

// AllSpotFields lists every field a SpotChange may carry.
var AllSpotFields = []SpotField{
	FieldName, FieldDay, FieldOrder, FieldStayTime, FieldStatus, FieldIsHotel,
	FieldReservationStatus, FieldReservedBy, FieldPrice, FieldComment, FieldLink, FieldImageURL,
}

// Valid reports whether f is a known field.
func (f SpotField) Valid() bool {
	return slices.Contains(AllSpotFields, f)
}

// CopyField copies field f from src into dst.
func CopyField(dst *Spot, src Spot, f SpotField) {
	switch f {
	case FieldName:
		dst.Name = src.Name
	case FieldDay:
		dst.Day = src.Day
	case FieldOrder:
		dst.Order = src.Order
	case FieldStayTime:
		dst.StayTime = src.StayTime
	case FieldStatus:
		dst.Status = src.Status
	case FieldIsHotel:
		dst.IsHotel = src.IsHotel
	case FieldReservationStatus:
		dst.ReservationStatus = src.ReservationStatus
	case FieldReservedBy:
		dst.ReservedBy = src.ReservedBy
	case FieldPrice:
		dst.Price = src.Price
	case FieldComment:
		dst.Comment = src.Comment
	case FieldLink:
		dst.Link = src.Link
	case FieldImageURL:
		dst.ImageURL = src.ImageURL
	}
}
