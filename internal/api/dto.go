package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/itinera/internal/models"
	"github.com/starford/itinera/internal/planner"
	"github.com/starford/itinera/internal/spotpool"
	"github.com/starford/itinera/internal/timeline"
)

// DayView is the day plan response (aliased from the domain layer).
type DayView = planner.View

// SpotChangeRequest is a spot write. A nil Fields replaces the whole spot.
type SpotChangeRequest struct {
	Spot    models.Spot `json:"spot"`
	Fields  []string    `json:"fields,omitempty" example:"name,stay_time"`
	Deleted bool        `json:"deleted,omitempty"`
	At      *time.Time  `json:"at,omitempty"`
}

// Validate implements validation.Validatable.
func (r SpotChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Fields, validation.Each(validation.By(func(v any) error {
			if !models.SpotField(v.(string)).Valid() {
				return validation.NewError("validation_unknown_field", "unknown spot field")
			}
			return nil
		}))),
	)
}

func (r SpotChangeRequest) change(id string) spotpool.Change {
	c := spotpool.Change{Spot: r.Spot, Deleted: r.Deleted}
	c.Spot.ID = id
	if r.Fields != nil {
		c.Fields = make([]models.SpotField, len(r.Fields))
		for i, f := range r.Fields {
			c.Fields[i] = models.SpotField(f)
		}
	}
	if r.At != nil {
		c.At = *r.At
	}
	return c
}

// StartTimeRequest sets the day start; null clears it.
type StartTimeRequest struct {
	StartTime *timeline.Clock `json:"start_time" example:"09:00"`
}

// Validate implements validation.Validatable. A day starts within its own
// 24 hours.
func (r StartTimeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.StartTime,
			validation.Min(timeline.Clock(0)),
			validation.Max(timeline.Clock(timeline.MinutesPerDay-1)),
		),
	)
}

// SegmentEditRequest changes fields of one segment. Absent fields are kept;
// the Clear flags reset a duration to unknown.
type SegmentEditRequest struct {
	Stay             *timeline.Minutes       `json:"stay_min,omitempty"`
	ClearStay        bool                    `json:"clear_stay,omitempty"`
	Mode             *timeline.TransportMode `json:"transport_mode,omitempty"`
	Duration         *timeline.Minutes       `json:"duration_min,omitempty"`
	ClearDuration    bool                    `json:"clear_duration,omitempty"`
	PlannedDeparture *timeline.Clock         `json:"departure_time,omitempty"`
	PlannedArrival   *timeline.Clock         `json:"arrival_time,omitempty"`
	Cost             *float64                `json:"cost,omitempty"`
	Note             *string                 `json:"note,omitempty"`
	URL              *string                 `json:"url,omitempty"`
}

// Validate implements validation.Validatable.
func (r SegmentEditRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Mode, validation.NilOrNotEmpty),
		validation.Field(&r.Cost, validation.Min(0.0)),
		validation.Field(&r.URL, validation.NilOrNotEmpty),
	)
}

func (r SegmentEditRequest) edit() timeline.SegmentEdit {
	e := timeline.SegmentEdit{
		Stay:             r.Stay,
		Mode:             r.Mode,
		Duration:         r.Duration,
		PlannedDeparture: r.PlannedDeparture,
		PlannedArrival:   r.PlannedArrival,
		Cost:             r.Cost,
		Note:             r.Note,
		URL:              r.URL,
	}
	if r.ClearStay {
		unset := timeline.Unset()
		e.Stay = &unset
	}
	if r.ClearDuration {
		unset := timeline.Unset()
		e.Duration = &unset
	}
	return e
}

// ReorderRequest moves the visit at From to the drop point To.
type ReorderRequest struct {
	From int `json:"from" example:"0"`
	To   int `json:"to" example:"4"`
}

// Validate implements validation.Validatable.
func (r ReorderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Min(0)),
		validation.Field(&r.To, validation.Min(0)),
	)
}

// DragBeginRequest starts dragging the visit at From.
type DragBeginRequest struct {
	From int `json:"from"`
}

// DragPointerRequest reports the pointer inside the list viewport.
type DragPointerRequest struct {
	Y      float64 `json:"y"`
	Height float64 `json:"height"`
}

// Validate implements validation.Validatable.
func (r DragPointerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Height, validation.Required, validation.Min(0.0)),
	)
}

// DragDropRequest ends a drag at drop point To.
type DragDropRequest struct {
	To int `json:"to"`
}

// PinRequest saves the current day under a title.
type PinRequest struct {
	Title string `json:"title" example:"Rainy day plan"`
	Day   int    `json:"day" example:"1"`
}

// Validate implements validation.Validatable.
func (r PinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 120)),
		validation.Field(&r.Day, validation.Required, validation.Min(1)),
	)
}

// TravelDaysRequest sets how many days a trip spans.
type TravelDaysRequest struct {
	Days int `json:"days" example:"3"`
}

// Validate implements validation.Validatable.
func (r TravelDaysRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Days, validation.Required, validation.Min(1), validation.Max(60)),
	)
}

// ImageResponse is the result of an image lookup.
type ImageResponse struct {
	Query    string `json:"query"`
	ImageURL string `json:"image_url"`
}
