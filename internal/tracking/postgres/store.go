// Package postgres provides a PostgreSQL-backed implementation of
// [tracking.Store] for deployments where tracking records must survive
// kiosk restarts. The in-memory store remains the default for
// demonstration mode.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	iss := tracking.NewIssuer(backendClient, store)
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/identia-project/identia/internal/tracking"
)

// Compile-time interface assertion.
var _ tracking.Store = (*Store)(nil)

const ddlTramites = `
CREATE TABLE IF NOT EXISTS tramites (
    pin         TEXT         PRIMARY KEY,
    radicado    TEXT         NOT NULL,
    tipo_id     TEXT         NOT NULL,
    tipo_nombre TEXT         NOT NULL,
    ciudadano   TEXT         NOT NULL DEFAULT '',
    cedula      TEXT         NOT NULL DEFAULT '',
    estado      TEXT         NOT NULL,
    historial   JSONB        NOT NULL DEFAULT '[]',
    cita        JSONB,
    creado_en   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    actualizado_en TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_tramites_estado ON tramites (estado);
`

// Store persists tracking records in PostgreSQL. All operations are safe
// for concurrent use; the pool handles its own synchronisation.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection, and
// ensures the tramites table exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("tracking postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tracking postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlTramites); err != nil {
		pool.Close()
		return nil, fmt.Errorf("tracking postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// historyEvent is the JSONB representation of a tracking.Event.
type historyEvent struct {
	Estado string    `json:"estado"`
	Nota   string    `json:"nota"`
	En     time.Time `json:"en"`
}

// appointmentDoc is the JSONB representation of a tracking.Appointment.
type appointmentDoc struct {
	Fecha   string `json:"fecha"`
	Hora    string `json:"hora"`
	Oficina string `json:"oficina"`
	EventID string `json:"event_id"`
}

// Create implements [tracking.Store].
func (s *Store) Create(ctx context.Context, rec tracking.Record) error {
	hist, err := marshalHistory(rec.History)
	if err != nil {
		return fmt.Errorf("tracking postgres: marshal history: %w", err)
	}

	const q = `
		INSERT INTO tramites
		    (pin, radicado, tipo_id, tipo_nombre, ciudadano, cedula, estado, historial, creado_en, actualizado_en)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, q,
		rec.PIN, rec.Radicado, rec.TipoID, rec.TipoNombre, rec.Ciudadano, rec.Cedula,
		string(rec.Status), hist, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("tracking postgres: create %s: %w", rec.PIN, err)
	}
	return nil
}

// Get implements [tracking.Store].
func (s *Store) Get(ctx context.Context, pin string) (*tracking.Record, error) {
	const q = `
		SELECT pin, radicado, tipo_id, tipo_nombre, ciudadano, cedula, estado,
		       historial, cita, creado_en, actualizado_en
		FROM   tramites
		WHERE  pin = $1`

	var (
		rec     tracking.Record
		estado  string
		histRaw []byte
		citaRaw []byte
	)
	err := s.pool.QueryRow(ctx, q, pin).Scan(
		&rec.PIN, &rec.Radicado, &rec.TipoID, &rec.TipoNombre, &rec.Ciudadano,
		&rec.Cedula, &estado, &histRaw, &citaRaw, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, tracking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tracking postgres: get %s: %w", pin, err)
	}

	rec.Status = tracking.Status(estado)
	if rec.History, err = unmarshalHistory(histRaw); err != nil {
		return nil, fmt.Errorf("tracking postgres: history for %s: %w", pin, err)
	}
	if len(citaRaw) > 0 {
		var doc appointmentDoc
		if err := json.Unmarshal(citaRaw, &doc); err != nil {
			return nil, fmt.Errorf("tracking postgres: cita for %s: %w", pin, err)
		}
		rec.Appointment = &tracking.Appointment{
			Fecha:   doc.Fecha,
			Hora:    doc.Hora,
			Oficina: doc.Oficina,
			EventID: doc.EventID,
		}
	}
	return &rec, nil
}

// UpdateStatus implements [tracking.Store]. The history append happens in
// SQL via the JSONB || operator so concurrent updates do not lose events.
func (s *Store) UpdateStatus(ctx context.Context, pin string, status tracking.Status, note string) error {
	if note == "" {
		note = "Estado actualizado a: " + string(status)
	}
	event, err := json.Marshal([]historyEvent{{
		Estado: string(status),
		Nota:   note,
		En:     time.Now(),
	}})
	if err != nil {
		return fmt.Errorf("tracking postgres: marshal event: %w", err)
	}

	const q = `
		UPDATE tramites
		SET    estado = $2,
		       historial = historial || $3::jsonb,
		       actualizado_en = now()
		WHERE  pin = $1`

	tag, err := s.pool.Exec(ctx, q, pin, string(status), event)
	if err != nil {
		return fmt.Errorf("tracking postgres: update %s: %w", pin, err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

// AttachAppointment implements [tracking.Store].
func (s *Store) AttachAppointment(ctx context.Context, pin string, appt tracking.Appointment) error {
	doc, err := json.Marshal(appointmentDoc{
		Fecha:   appt.Fecha,
		Hora:    appt.Hora,
		Oficina: appt.Oficina,
		EventID: appt.EventID,
	})
	if err != nil {
		return fmt.Errorf("tracking postgres: marshal cita: %w", err)
	}

	const q = `
		UPDATE tramites
		SET    cita = $2::jsonb, actualizado_en = now()
		WHERE  pin = $1`

	tag, err := s.pool.Exec(ctx, q, pin, doc)
	if err != nil {
		return fmt.Errorf("tracking postgres: attach cita %s: %w", pin, err)
	}
	if tag.RowsAffected() == 0 {
		return tracking.ErrNotFound
	}
	return nil
}

// marshalHistory encodes events for the historial JSONB column.
func marshalHistory(events []tracking.Event) ([]byte, error) {
	docs := make([]historyEvent, len(events))
	for i, e := range events {
		docs[i] = historyEvent{Estado: string(e.Status), Nota: e.Note, En: e.At}
	}
	return json.Marshal(docs)
}

// unmarshalHistory decodes the historial JSONB column.
func unmarshalHistory(raw []byte) ([]tracking.Event, error) {
	var docs []historyEvent
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	events := make([]tracking.Event, len(docs))
	for i, d := range docs {
		events[i] = tracking.Event{Status: tracking.Status(d.Estado), Note: d.Nota, At: d.En}
	}
	return events, nil
}
