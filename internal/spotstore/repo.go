package spotstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/itinera/internal/apperr"
	"github.com/starford/itinera/internal/models"
)

// Repo defines the spot store operations. Consumers depend on this
// interface rather than *DB so they can be tested with fakes.
type Repo interface {
	ListByRoom(ctx context.Context, room string) ([]models.Spot, error)
	Get(ctx context.Context, id string) (models.Spot, error)
	Upsert(ctx context.Context, s models.Spot) error
	UpdateFields(ctx context.Context, s models.Spot, fields []models.SpotField) error
	Delete(ctx context.Context, id string) error
	TravelDays(ctx context.Context, room string) (int, error)
	SetTravelDays(ctx context.Context, room string, days int) error
	IncrementOptimizeCount(ctx context.Context, room string) (int, error)
	CreatePin(ctx context.Context, p models.PinnedPlan) (models.PinnedPlan, error)
	ListPins(ctx context.Context, room string) ([]models.PinnedPlan, error)
	GetPin(ctx context.Context, room, id string) (models.PinnedPlan, error)
	DeletePin(ctx context.Context, room, id string) error
}

var _ Repo = (*DB)(nil)

var columns = map[models.SpotField]string{
	models.FieldName:              "name",
	models.FieldDay:               "day",
	models.FieldOrder:             "sort_order",
	models.FieldStayTime:          "stay_time",
	models.FieldStatus:            "status",
	models.FieldIsHotel:           "is_hotel",
	models.FieldReservationStatus: "reservation_status",
	models.FieldReservedBy:        "reserved_by",
	models.FieldPrice:             "price",
	models.FieldComment:           "comment",
	models.FieldLink:              "link",
	models.FieldImageURL:          "image_url",
}

func fieldValue(s models.Spot, f models.SpotField) any {
	switch f {
	case models.FieldName:
		return s.Name
	case models.FieldDay:
		return s.Day
	case models.FieldOrder:
		return s.Order
	case models.FieldStayTime:
		return s.StayTime
	case models.FieldStatus:
		return string(s.Status)
	case models.FieldIsHotel:
		return s.IsHotel
	case models.FieldReservationStatus:
		return string(s.ReservationStatus)
	case models.FieldReservedBy:
		return s.ReservedBy
	case models.FieldPrice:
		return s.Price
	case models.FieldComment:
		return s.Comment
	case models.FieldLink:
		return s.Link
	case models.FieldImageURL:
		return s.ImageURL
	}
	return nil
}

const spotColumns = `id, room_id, name, description, day, sort_order, stay_time, status, is_hotel,
	reservation_status, reserved_by, price, comment, link, image_url, lng, lat, votes, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSpot(row scanner) (models.Spot, error) {
	var (
		s          models.Spot
		status     string
		resStatus  string
		stay       sql.NullInt64
		reservedBy sql.NullString
		price      sql.NullFloat64
		comment    sql.NullString
		link       sql.NullString
		imageURL   sql.NullString
	)
	err := row.Scan(&s.ID, &s.RoomID, &s.Name, &s.Description, &s.Day, &s.Order, &stay, &status, &s.IsHotel,
		&resStatus, &reservedBy, &price, &comment, &link, &imageURL,
		&s.Coordinates[0], &s.Coordinates[1], &s.Votes, &s.UpdatedAt)
	if err != nil {
		return models.Spot{}, err
	}
	s.Status = models.SpotStatus(status)
	s.ReservationStatus = models.ReservationStatus(resStatus)
	if stay.Valid {
		n := int(stay.Int64)
		s.StayTime = &n
	}
	if reservedBy.Valid {
		s.ReservedBy = &reservedBy.String
	}
	if price.Valid {
		s.Price = &price.Float64
	}
	if comment.Valid {
		s.Comment = &comment.String
	}
	if link.Valid {
		s.Link = &link.String
	}
	if imageURL.Valid {
		s.ImageURL = &imageURL.String
	}
	return s, nil
}

// ListByRoom returns every spot in room ordered by day, order and id.
func (db *DB) ListByRoom(ctx context.Context, room string) ([]models.Spot, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+spotColumns+` FROM spots WHERE room_id = ? ORDER BY day, sort_order, id`, room)
	if err != nil {
		return nil, fmt.Errorf("spotstore: list: %w", err)
	}
	defer rows.Close()

	var out []models.Spot
	for rows.Next() {
		s, err := scanSpot(rows)
		if err != nil {
			return nil, fmt.Errorf("spotstore: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get returns one spot by id.
func (db *DB) Get(ctx context.Context, id string) (models.Spot, error) {
	s, err := scanSpot(db.conn.QueryRowContext(ctx, `SELECT `+spotColumns+` FROM spots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Spot{}, fmt.Errorf("spotstore: spot %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Spot{}, fmt.Errorf("spotstore: get: %w", err)
	}
	return s, nil
}

// Upsert inserts or fully replaces a spot.
func (db *DB) Upsert(ctx context.Context, s models.Spot) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO spots (`+spotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			room_id            = excluded.room_id,
			name               = excluded.name,
			description        = excluded.description,
			day                = excluded.day,
			sort_order         = excluded.sort_order,
			stay_time          = excluded.stay_time,
			status             = excluded.status,
			is_hotel           = excluded.is_hotel,
			reservation_status = excluded.reservation_status,
			reserved_by        = excluded.reserved_by,
			price              = excluded.price,
			comment            = excluded.comment,
			link               = excluded.link,
			image_url          = excluded.image_url,
			lng                = excluded.lng,
			lat                = excluded.lat,
			votes              = excluded.votes,
			updated_at         = excluded.updated_at
	`, s.ID, s.RoomID, s.Name, s.Description, s.Day, s.Order, s.StayTime, string(s.Status), s.IsHotel,
		string(s.ReservationStatus), s.ReservedBy, s.Price, s.Comment, s.Link, s.ImageURL,
		s.Coordinates[0], s.Coordinates[1], s.Votes, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("spotstore: upsert: %w", err)
	}
	return nil
}

// UpdateFields writes only the listed fields of s.
func (db *DB) UpdateFields(ctx context.Context, s models.Spot, fields []models.SpotField) error {
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	for _, f := range fields {
		col, ok := columns[f]
		if !ok {
			return fmt.Errorf("spotstore: unknown field %q: %w", f, apperr.ErrValidation)
		}
		sets = append(sets, col+" = ?")
		args = append(args, fieldValue(s, f))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), s.ID)

	res, err := db.conn.ExecContext(ctx, `UPDATE spots SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("spotstore: update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("spotstore: spot %s: %w", s.ID, apperr.ErrNotFound)
	}
	return nil
}

// Delete removes a spot.
func (db *DB) Delete(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM spots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("spotstore: delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("spotstore: spot %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// TravelDays returns the number of days planned for room, at least 1.
func (db *DB) TravelDays(ctx context.Context, room string) (int, error) {
	var days int
	err := db.conn.QueryRowContext(ctx, `SELECT travel_days FROM rooms WHERE id = ?`, room).Scan(&days)
	if errors.Is(err, sql.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("spotstore: travel days: %w", err)
	}
	return max(days, 1), nil
}

// SetTravelDays records the number of days planned for room.
func (db *DB) SetTravelDays(ctx context.Context, room string, days int) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO rooms (id, travel_days) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET travel_days = excluded.travel_days
	`, room, days)
	if err != nil {
		return fmt.Errorf("spotstore: set travel days: %w", err)
	}
	return nil
}

// IncrementOptimizeCount bumps and returns the room's optimisation counter.
func (db *DB) IncrementOptimizeCount(ctx context.Context, room string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO rooms (id, optimize_count) VALUES (?, 1)
		ON CONFLICT(id) DO UPDATE SET optimize_count = optimize_count + 1
		RETURNING optimize_count
	`, room).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("spotstore: optimize count: %w", err)
	}
	return n, nil
}

// CreatePin stores a pinned plan under a fresh id.
func (db *DB) CreatePin(ctx context.Context, p models.PinnedPlan) (models.PinnedPlan, error) {
	p.ID = uuid.NewString()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO pinned_plans (id, room_id, title, day, timeline, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.RoomID, p.Title, p.Day, string(p.Timeline), p.CreatedAt)
	if err != nil {
		return models.PinnedPlan{}, fmt.Errorf("spotstore: create pin: %w", err)
	}
	return p, nil
}

// ListPins returns the room's pinned plans, newest first.
func (db *DB) ListPins(ctx context.Context, room string) ([]models.PinnedPlan, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, room_id, title, day, timeline, created_at FROM pinned_plans WHERE room_id = ? ORDER BY created_at DESC, id`, room)
	if err != nil {
		return nil, fmt.Errorf("spotstore: list pins: %w", err)
	}
	defer rows.Close()

	var out []models.PinnedPlan
	for rows.Next() {
		var (
			p  models.PinnedPlan
			tl string
		)
		if err := rows.Scan(&p.ID, &p.RoomID, &p.Title, &p.Day, &tl, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("spotstore: scan pin: %w", err)
		}
		p.Timeline = []byte(tl)
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPin returns one pinned plan of room.
func (db *DB) GetPin(ctx context.Context, room, id string) (models.PinnedPlan, error) {
	var (
		p  models.PinnedPlan
		tl string
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, room_id, title, day, timeline, created_at FROM pinned_plans WHERE id = ? AND room_id = ?`, id, room).
		Scan(&p.ID, &p.RoomID, &p.Title, &p.Day, &tl, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PinnedPlan{}, fmt.Errorf("spotstore: pin %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.PinnedPlan{}, fmt.Errorf("spotstore: get pin: %w", err)
	}
	p.Timeline = []byte(tl)
	return p, nil
}

// DeletePin removes a pinned plan of room.
func (db *DB) DeletePin(ctx context.Context, room, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM pinned_plans WHERE id = ? AND room_id = ?`, id, room)
	if err != nil {
		return fmt.Errorf("spotstore: delete pin: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("spotstore: pin %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
