// Copyright 2025 The Palate Authors
// SPDX-License-Identifier: Apache-2.0

package visits

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// VisitFilter narrows ListVisits. Zero values mean "no filter".
type VisitFilter struct {
	IDs      []string
	Statuses []Status

	// HasRestaurant keeps only visits assigned to a confirmed restaurant.
	HasRestaurant bool

	// HasSuggestion keeps only visits with a primary suggestion.
	HasSuggestion bool

	// CalendarEventIDs keeps only visits linked to one of these events.
	CalendarEventIDs []string

	Limit  int
	Offset int
}

// Repository is the persistence contract of the engine.
type Repository interface {
	// CreateSchema creates the tables used by the engine
	CreateSchema(ctx context.Context) error

	// WithTx runs fn inside a transaction, retrying it while the store is
	// busy. Repositories already bound to a transaction run fn directly.
	WithTx(ctx context.Context, fn func(tx Repository) error) error

	//////// Reference restaurants
	UpsertReferenceRestaurants(ctx context.Context, restaurants []*ReferenceRestaurant) error
	ListReferenceRestaurants(ctx context.Context) ([]*ReferenceRestaurant, error)
	GetReferenceRestaurants(ctx context.Context, ids []int64) (map[int64]*ReferenceRestaurant, error)
	CountReferenceRestaurants(ctx context.Context) (int, error)

	//////// Photos
	UpsertPhotos(ctx context.Context, photos []*Photo) error
	// ListUnassignedPhotos returns geotagged photos without a visit, by capture time
	ListUnassignedPhotos(ctx context.Context) ([]*Photo, error)
	GetPhotos(ctx context.Context, ids []string) ([]*Photo, error)
	ListPhotosByVisit(ctx context.Context, visitIDs []string) (map[string][]*Photo, error)
	AssignPhotos(ctx context.Context, visitID string, photoIDs []string) error
	ReassignPhotos(ctx context.Context, fromVisitID, toVisitID string) (int64, error)
	UpdatePhotoClassifications(ctx context.Context, photos []*Photo) error

	//////// Visits
	InsertVisits(ctx context.Context, visits []*Visit) error
	GetVisit(ctx context.Context, id string) (*Visit, error)
	ListVisits(ctx context.Context, filter VisitFilter) ([]*Visit, error)
	UpdateVisit(ctx context.Context, visit *Visit) error
	// SetSuggestedRestaurant writes only the primary suggestion of a visit
	SetSuggestedRestaurant(ctx context.Context, visitID string, restaurantID *int64, updatedAt time.Time) error
	// SetCalendarEvent writes only the calendar link of a visit
	SetCalendarEvent(ctx context.Context, visitID, eventID, title string, updatedAt time.Time) error
	DeleteVisit(ctx context.Context, id string) error

	//////// Suggestions
	InsertSuggestions(ctx context.Context, suggestions []*VisitSuggestion) error
	DeleteSuggestions(ctx context.Context, visitIDs []string) error
	ListSuggestions(ctx context.Context, visitIDs []string) (map[string][]*VisitSuggestion, error)

	//////// Confirmed restaurants
	GetConfirmedRestaurant(ctx context.Context, id string) (*ConfirmedRestaurant, error)
	InsertConfirmedRestaurant(ctx context.Context, restaurant *ConfirmedRestaurant) error
	ListConfirmedRestaurants(ctx context.Context) ([]*ConfirmedRestaurant, error)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

type sqlRepository struct {
	db     *sql.DB
	q      querier
	inTx   bool
	policy RetryPolicy
}

// NewSQLRepository creates a repository over db. The SQL is portable between
// the duckdb and sqlite drivers.
func NewSQLRepository(db *sql.DB) Repository {
	return NewSQLRepositoryWithRetry(db, DefaultRetryPolicy())
}

// NewSQLRepositoryWithRetry is NewSQLRepository with an explicit busy policy.
func NewSQLRepositoryWithRetry(db *sql.DB, policy RetryPolicy) Repository {
	return &sqlRepository{db: db, q: db, policy: policy}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS reference_restaurants (
		id BIGINT PRIMARY KEY,
		name VARCHAR NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		address VARCHAR NOT NULL DEFAULT '',
		location VARCHAR NOT NULL DEFAULT '',
		cuisine VARCHAR NOT NULL DEFAULT '',
		award VARCHAR NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS photos (
		id VARCHAR PRIMARY KEY,
		uri VARCHAR NOT NULL DEFAULT '',
		capture_time BIGINT NOT NULL,
		latitude DOUBLE,
		longitude DOUBLE,
		visit_id VARCHAR,
		media_type VARCHAR NOT NULL DEFAULT '',
		food_detected INTEGER NOT NULL DEFAULT 0,
		food_labels VARCHAR,
		all_labels VARCHAR
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id VARCHAR PRIMARY KEY,
		status VARCHAR NOT NULL,
		start_time BIGINT NOT NULL,
		end_time BIGINT NOT NULL,
		center_lat DOUBLE NOT NULL,
		center_lon DOUBLE NOT NULL,
		photo_count INTEGER NOT NULL DEFAULT 0,
		food_probable BOOLEAN NOT NULL DEFAULT FALSE,
		restaurant_id VARCHAR,
		suggested_restaurant_id BIGINT,
		award_at_visit VARCHAR,
		calendar_event_id VARCHAR,
		calendar_event_title VARCHAR,
		notes VARCHAR,
		updated_at BIGINT NOT NULL
	)`,
	// uniqueness of (visit_id, restaurant_id) is kept by the replace and
	// union code paths; duckdb rejects delete+reinsert of a unique key in
	// some transaction shapes
	`CREATE TABLE IF NOT EXISTS visit_suggestions (
		visit_id VARCHAR NOT NULL,
		restaurant_id BIGINT NOT NULL,
		distance_meters DOUBLE NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS confirmed_restaurants (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		latitude DOUBLE NOT NULL,
		longitude DOUBLE NOT NULL,
		address VARCHAR NOT NULL DEFAULT '',
		cuisine VARCHAR NOT NULL DEFAULT '',
		reference_id BIGINT,
		created_at BIGINT NOT NULL
	)`,
}

func (r *sqlRepository) CreateSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}

	return nil
}

func (r *sqlRepository) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}

	return withBusyRetry(ctx, r.policy, "transaction", func(ctx context.Context) error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := fn(&sqlRepository{db: r.db, q: tx, inTx: true, policy: r.policy}); err != nil {
			if rErr := tx.Rollback(); rErr != nil && !errors.Is(rErr, sql.ErrTxDone) {
				return errors.Join(err, rErr)
			}

			return err
		}

		return tx.Commit()
	})
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}

	return out
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}

	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// execBatch prepares query once and executes it for each argument list.
func (r *sqlRepository) execBatch(ctx context.Context, query string, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}

	return r.WithTx(ctx, func(tx Repository) error {
		q := tx.(*sqlRepository).q

		stmt, err := q.PrepareContext(ctx, query)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, args := range rows {
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return err
			}
		}

		return nil
	})
}

//////// Reference restaurants

func (r *sqlRepository) UpsertReferenceRestaurants(ctx context.Context, restaurants []*ReferenceRestaurant) error {
	// the same id twice in one statement batch trips duckdb's conflict check
	seen := make(map[int64]int, len(restaurants))
	rows := make([][]any, 0, len(restaurants))

	for _, rr := range restaurants {
		args := []any{rr.ID, rr.Name, rr.Latitude, rr.Longitude, rr.Address, rr.Location, rr.Cuisine, rr.Award}
		if i, ok := seen[rr.ID]; ok {
			rows[i] = args

			continue
		}

		seen[rr.ID] = len(rows)
		rows = append(rows, args)
	}

	err := r.execBatch(ctx, `
		INSERT INTO reference_restaurants (id, name, latitude, longitude, address, location, cuisine, award)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			address = excluded.address,
			location = excluded.location,
			cuisine = excluded.cuisine,
			award = excluded.award
	`, rows)
	if err != nil {
		return fmt.Errorf("upserting reference restaurants: %w", err)
	}

	return nil
}

const referenceColumns = `id, name, latitude, longitude, address, location, cuisine, award`

func scanReference(rows *sql.Rows) (*ReferenceRestaurant, error) {
	rr := &ReferenceRestaurant{}

	err := rows.Scan(&rr.ID, &rr.Name, &rr.Latitude, &rr.Longitude, &rr.Address, &rr.Location, &rr.Cuisine, &rr.Award)

	return rr, err
}

func (r *sqlRepository) listReferences(ctx context.Context, query string, args []any) ([]*ReferenceRestaurant, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ReferenceRestaurant

	for rows.Next() {
		rr, err := scanReference(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, rr)
	}

	return out, rows.Err()
}

func (r *sqlRepository) ListReferenceRestaurants(ctx context.Context) ([]*ReferenceRestaurant, error) {
	return r.listReferences(ctx, `SELECT `+referenceColumns+` FROM reference_restaurants ORDER BY id`, nil)
}

func (r *sqlRepository) GetReferenceRestaurants(ctx context.Context, ids []int64) (map[int64]*ReferenceRestaurant, error) {
	out := make(map[int64]*ReferenceRestaurant, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	list, err := r.listReferences(ctx,
		`SELECT `+referenceColumns+` FROM reference_restaurants WHERE id IN (`+placeholders(len(ids))+`)`,
		anySlice(ids),
	)
	if err != nil {
		return nil, err
	}

	for _, rr := range list {
		out[rr.ID] = rr
	}

	return out, nil
}

func (r *sqlRepository) CountReferenceRestaurants(ctx context.Context) (int, error) {
	var count int
	err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM reference_restaurants").Scan(&count)

	return count, err
}

//////// Photos

func encodeLabels(labels []Label) (sql.NullString, error) {
	if len(labels) == 0 {
		return sql.NullString{}, nil
	}

	data, err := json.Marshal(labels)
	if err != nil {
		return sql.NullString{}, err
	}

	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeLabels(s sql.NullString) ([]Label, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	var labels []Label
	if err := json.Unmarshal([]byte(s.String), &labels); err != nil {
		return nil, fmt.Errorf("decoding labels: %w", err)
	}

	return labels, nil
}

func photoArgs(p *Photo) ([]any, error) {
	food, err := encodeLabels(p.FoodLabels)
	if err != nil {
		return nil, err
	}

	all, err := encodeLabels(p.AllLabels)
	if err != nil {
		return nil, err
	}

	return []any{
		p.ID,
		p.URI,
		toMillis(p.CaptureTime),
		nullFloat(p.Latitude),
		nullFloat(p.Longitude),
		nullString(p.VisitID),
		p.MediaType,
		int(p.FoodDetected),
		food,
		all,
	}, nil
}

func (r *sqlRepository) UpsertPhotos(ctx context.Context, photos []*Photo) error {
	seen := make(map[string]int, len(photos))
	rows := make([][]any, 0, len(photos))

	for _, p := range photos {
		args, err := photoArgs(p)
		if err != nil {
			return fmt.Errorf("encoding photo %s: %w", p.ID, err)
		}

		if i, ok := seen[p.ID]; ok {
			rows[i] = args

			continue
		}

		seen[p.ID] = len(rows)
		rows = append(rows, args)
	}

	// an upsert never moves a photo between visits; that only happens
	// through AssignPhotos and ReassignPhotos
	err := r.execBatch(ctx, `
		INSERT INTO photos (id, uri, capture_time, latitude, longitude, visit_id, media_type, food_detected, food_labels, all_labels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			uri = excluded.uri,
			capture_time = excluded.capture_time,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			media_type = excluded.media_type,
			food_detected = excluded.food_detected,
			food_labels = excluded.food_labels,
			all_labels = excluded.all_labels
	`, rows)
	if err != nil {
		return fmt.Errorf("upserting photos: %w", err)
	}

	return nil
}

const photoColumns = `id, uri, capture_time, latitude, longitude, visit_id, media_type, food_detected, food_labels, all_labels`

func (r *sqlRepository) listPhotos(ctx context.Context, query string, args []any) ([]*Photo, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []*Photo

	for rows.Next() {
		var (
			p                    Photo
			captureTime          int64
			lat, lng             sql.NullFloat64
			visitID              sql.NullString
			food                 int
			foodLabels, allLabel sql.NullString
		)

		if err := rows.Scan(&p.ID, &p.URI, &captureTime, &lat, &lng, &visitID, &p.MediaType, &food, &foodLabels, &allLabel); err != nil {
			return nil, err
		}

		p.CaptureTime = fromMillis(captureTime)
		p.FoodDetected = FoodState(food)
		p.VisitID = visitID.String

		if lat.Valid {
			p.Latitude = &lat.Float64
		}

		if lng.Valid {
			p.Longitude = &lng.Float64
		}

		if p.FoodLabels, err = decodeLabels(foodLabels); err != nil {
			return nil, err
		}

		if p.AllLabels, err = decodeLabels(allLabel); err != nil {
			return nil, err
		}

		photos = append(photos, &p)
	}

	return photos, rows.Err()
}

func (r *sqlRepository) ListUnassignedPhotos(ctx context.Context) ([]*Photo, error) {
	return r.listPhotos(ctx, `
		SELECT `+photoColumns+` FROM photos
		WHERE visit_id IS NULL AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY capture_time, id
	`, nil)
}

func (r *sqlRepository) GetPhotos(ctx context.Context, ids []string) ([]*Photo, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	return r.listPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE id IN (`+placeholders(len(ids))+`) ORDER BY capture_time, id`,
		anySlice(ids),
	)
}

func (r *sqlRepository) ListPhotosByVisit(ctx context.Context, visitIDs []string) (map[string][]*Photo, error) {
	out := make(map[string][]*Photo, len(visitIDs))
	if len(visitIDs) == 0 {
		return out, nil
	}

	photos, err := r.listPhotos(ctx,
		`SELECT `+photoColumns+` FROM photos WHERE visit_id IN (`+placeholders(len(visitIDs))+`) ORDER BY capture_time, id`,
		anySlice(visitIDs),
	)
	if err != nil {
		return nil, err
	}

	for _, p := range photos {
		out[p.VisitID] = append(out[p.VisitID], p)
	}

	return out, nil
}

func (r *sqlRepository) AssignPhotos(ctx context.Context, visitID string, photoIDs []string) error {
	if len(photoIDs) == 0 {
		return nil
	}

	args := append([]any{visitID}, anySlice(photoIDs)...)
	_, err := r.q.ExecContext(ctx,
		`UPDATE photos SET visit_id = ? WHERE id IN (`+placeholders(len(photoIDs))+`)`,
		args...,
	)

	return err
}

func (r *sqlRepository) ReassignPhotos(ctx context.Context, fromVisitID, toVisitID string) (int64, error) {
	res, err := r.q.ExecContext(ctx, `UPDATE photos SET visit_id = ? WHERE visit_id = ?`, toVisitID, fromVisitID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *sqlRepository) UpdatePhotoClassifications(ctx context.Context, photos []*Photo) error {
	rows := make([][]any, 0, len(photos))

	for _, p := range photos {
		food, err := encodeLabels(p.FoodLabels)
		if err != nil {
			return err
		}

		all, err := encodeLabels(p.AllLabels)
		if err != nil {
			return err
		}

		rows = append(rows, []any{int(p.FoodDetected), food, all, p.ID})
	}

	return r.execBatch(ctx, `UPDATE photos SET food_detected = ?, food_labels = ?, all_labels = ? WHERE id = ?`, rows)
}

//////// Visits

const visitColumns = `id, status, start_time, end_time, center_lat, center_lon, photo_count, food_probable,
	restaurant_id, suggested_restaurant_id, award_at_visit, calendar_event_id, calendar_event_title, notes, updated_at`

func visitArgs(v *Visit) []any {
	return []any{
		v.ID,
		string(v.Status),
		toMillis(v.StartTime),
		toMillis(v.EndTime),
		v.CenterLat,
		v.CenterLon,
		v.PhotoCount,
		v.FoodProbable,
		nullString(v.RestaurantID),
		nullInt64(v.SuggestedRestaurantID),
		nullString(v.AwardAtVisit),
		nullString(v.CalendarEventID),
		nullString(v.CalendarEventTitle),
		nullString(v.Notes),
		toMillis(v.UpdatedAt),
	}
}

func (r *sqlRepository) InsertVisits(ctx context.Context, visits []*Visit) error {
	rows := make([][]any, 0, len(visits))

	for _, v := range visits {
		if v.ID == "" || !v.Status.Valid() {
			return invalid("insert visits", "visit %q has no id or an invalid status %q", v.ID, v.Status)
		}

		rows = append(rows, visitArgs(v))
	}

	err := r.execBatch(ctx, `INSERT INTO visits (`+visitColumns+`) VALUES (`+placeholders(15)+`)`, rows)
	if err != nil {
		return fmt.Errorf("inserting visits: %w", err)
	}

	return nil
}

func (r *sqlRepository) listVisits(ctx context.Context, query string, args []any) ([]*Visit, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Visit

	for rows.Next() {
		var (
			v                                         Visit
			status                                    string
			start, end, updated                       int64
			restaurantID, award, eventID, title, note sql.NullString
			suggested                                 sql.NullInt64
		)

		err := rows.Scan(
			&v.ID, &status, &start, &end, &v.CenterLat, &v.CenterLon, &v.PhotoCount, &v.FoodProbable,
			&restaurantID, &suggested, &award, &eventID, &title, &note, &updated,
		)
		if err != nil {
			return nil, err
		}

		v.Status = Status(status)
		v.StartTime = fromMillis(start)
		v.EndTime = fromMillis(end)
		v.UpdatedAt = fromMillis(updated)
		v.RestaurantID = restaurantID.String
		v.AwardAtVisit = award.String
		v.CalendarEventID = eventID.String
		v.CalendarEventTitle = title.String
		v.Notes = note.String

		if suggested.Valid {
			id := suggested.Int64
			v.SuggestedRestaurantID = &id
		}

		out = append(out, &v)
	}

	return out, rows.Err()
}

func (r *sqlRepository) GetVisit(ctx context.Context, id string) (*Visit, error) {
	visits, err := r.listVisits(ctx, `SELECT `+visitColumns+` FROM visits WHERE id = ?`, []any{id})
	if err != nil {
		return nil, fmt.Errorf("getting visit %s: %w", id, err)
	}

	if len(visits) == 0 {
		return nil, notFound("get visit", "visit %q", id)
	}

	return visits[0], nil
}

func (r *sqlRepository) ListVisits(ctx context.Context, filter VisitFilter) ([]*Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits WHERE 1 = 1`

	var args []any

	if len(filter.IDs) > 0 {
		query += ` AND id IN (` + placeholders(len(filter.IDs)) + `)`

		args = append(args, anySlice(filter.IDs)...)
	}

	if len(filter.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(filter.Statuses)) + `)`

		for _, s := range filter.Statuses {
			args = append(args, string(s))
		}
	}

	if len(filter.CalendarEventIDs) > 0 {
		query += ` AND calendar_event_id IN (` + placeholders(len(filter.CalendarEventIDs)) + `)`

		args = append(args, anySlice(filter.CalendarEventIDs)...)
	}

	if filter.HasRestaurant {
		query += ` AND restaurant_id IS NOT NULL`
	}

	if filter.HasSuggestion {
		query += ` AND suggested_restaurant_id IS NOT NULL`
	}

	query += ` ORDER BY start_time, id`

	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`

		args = append(args, filter.Limit, filter.Offset)
	}

	return r.listVisits(ctx, query, args)
}

func (r *sqlRepository) UpdateVisit(ctx context.Context, v *Visit) error {
	args := visitArgs(v)
	// move id to the end for the WHERE clause
	args = append(args[1:], args[0])

	res, err := r.q.ExecContext(ctx, `
		UPDATE visits SET
			status = ?, start_time = ?, end_time = ?, center_lat = ?, center_lon = ?,
			photo_count = ?, food_probable = ?, restaurant_id = ?, suggested_restaurant_id = ?,
			award_at_visit = ?, calendar_event_id = ?, calendar_event_title = ?, notes = ?, updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("updating visit %s: %w", v.ID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("update visit", "visit %q", v.ID)
	}

	return nil
}

func (r *sqlRepository) SetSuggestedRestaurant(ctx context.Context, visitID string, restaurantID *int64, updatedAt time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE visits SET suggested_restaurant_id = ?, updated_at = ? WHERE id = ?`,
		nullInt64(restaurantID), toMillis(updatedAt), visitID,
	)
	if err != nil {
		return fmt.Errorf("setting suggestion of visit %s: %w", visitID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("set suggested restaurant", "visit %q", visitID)
	}

	return nil
}

func (r *sqlRepository) SetCalendarEvent(ctx context.Context, visitID, eventID, title string, updatedAt time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE visits SET calendar_event_id = ?, calendar_event_title = ?, updated_at = ? WHERE id = ?`,
		nullString(eventID), nullString(title), toMillis(updatedAt), visitID,
	)
	if err != nil {
		return fmt.Errorf("linking visit %s to event %s: %w", visitID, eventID, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("set calendar event", "visit %q", visitID)
	}

	return nil
}

func (r *sqlRepository) DeleteVisit(ctx context.Context, id string) error {
	if err := r.DeleteSuggestions(ctx, []string{id}); err != nil {
		return err
	}

	res, err := r.q.ExecContext(ctx, `DELETE FROM visits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting visit %s: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound("delete visit", "visit %q", id)
	}

	return nil
}

//////// Suggestions

func (r *sqlRepository) InsertSuggestions(ctx context.Context, suggestions []*VisitSuggestion) error {
	rows := make([][]any, 0, len(suggestions))
	for _, s := range suggestions {
		rows = append(rows, []any{s.VisitID, s.RestaurantID, s.DistanceMeters})
	}

	err := r.execBatch(ctx,
		`INSERT INTO visit_suggestions (visit_id, restaurant_id, distance_meters) VALUES (?, ?, ?)`,
		rows,
	)
	if err != nil {
		return fmt.Errorf("inserting suggestions: %w", err)
	}

	return nil
}

func (r *sqlRepository) DeleteSuggestions(ctx context.Context, visitIDs []string) error {
	if len(visitIDs) == 0 {
		return nil
	}

	_, err := r.q.ExecContext(ctx,
		`DELETE FROM visit_suggestions WHERE visit_id IN (`+placeholders(len(visitIDs))+`)`,
		anySlice(visitIDs)...,
	)
	if err != nil {
		return fmt.Errorf("deleting suggestions: %w", err)
	}

	return nil
}

func (r *sqlRepository) ListSuggestions(ctx context.Context, visitIDs []string) (map[string][]*VisitSuggestion, error) {
	out := make(map[string][]*VisitSuggestion, len(visitIDs))
	if len(visitIDs) == 0 {
		return out, nil
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT visit_id, restaurant_id, distance_meters FROM visit_suggestions
		WHERE visit_id IN (`+placeholders(len(visitIDs))+`)
		ORDER BY visit_id, distance_meters, restaurant_id
	`, anySlice(visitIDs)...)
	if err != nil {
		return nil, fmt.Errorf("listing suggestions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s := &VisitSuggestion{}
		if err := rows.Scan(&s.VisitID, &s.RestaurantID, &s.DistanceMeters); err != nil {
			return nil, err
		}

		out[s.VisitID] = append(out[s.VisitID], s)
	}

	return out, rows.Err()
}

//////// Confirmed restaurants

const confirmedColumns = `id, name, latitude, longitude, address, cuisine, reference_id, created_at`

func (r *sqlRepository) listConfirmed(ctx context.Context, query string, args []any) ([]*ConfirmedRestaurant, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ConfirmedRestaurant

	for rows.Next() {
		var (
			cr      ConfirmedRestaurant
			refID   sql.NullInt64
			created int64
		)

		if err := rows.Scan(&cr.ID, &cr.Name, &cr.Latitude, &cr.Longitude, &cr.Address, &cr.Cuisine, &refID, &created); err != nil {
			return nil, err
		}

		cr.CreatedAt = fromMillis(created)

		if refID.Valid {
			id := refID.Int64
			cr.ReferenceID = &id
		}

		out = append(out, &cr)
	}

	return out, rows.Err()
}

func (r *sqlRepository) GetConfirmedRestaurant(ctx context.Context, id string) (*ConfirmedRestaurant, error) {
	list, err := r.listConfirmed(ctx, `SELECT `+confirmedColumns+` FROM confirmed_restaurants WHERE id = ?`, []any{id})
	if err != nil {
		return nil, fmt.Errorf("getting restaurant %s: %w", id, err)
	}

	if len(list) == 0 {
		return nil, notFound("get restaurant", "restaurant %q", id)
	}

	return list[0], nil
}

func (r *sqlRepository) InsertConfirmedRestaurant(ctx context.Context, cr *ConfirmedRestaurant) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO confirmed_restaurants (`+confirmedColumns+`) VALUES (`+placeholders(8)+`)`,
		cr.ID, cr.Name, cr.Latitude, cr.Longitude, cr.Address, cr.Cuisine, nullInt64(cr.ReferenceID), toMillis(cr.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting restaurant %s: %w", cr.ID, err)
	}

	return nil
}

func (r *sqlRepository) ListConfirmedRestaurants(ctx context.Context) ([]*ConfirmedRestaurant, error) {
	return r.listConfirmed(ctx, `SELECT `+confirmedColumns+` FROM confirmed_restaurants ORDER BY id`, nil)
}
