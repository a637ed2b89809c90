package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"aerial/internal/config"
	"aerial/internal/media"
)

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.LogDir, "library.db"))
}

// OpenPath opens the catalog database at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AddSeries inserts a new tracked series and returns it with its assigned ID.
func (s *Store) AddSeries(ctx context.Context, series *media.Series) (*media.Series, error) {
	if series == nil {
		return nil, errors.New("series is nil")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO series (
            name, search_string, path, runtime_min, quality, language, paused,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		series.Name,
		nullableString(series.SearchString),
		nullableString(series.Path),
		series.RuntimeMin,
		string(series.Quality),
		nullableString(series.Language),
		boolToInt(series.Paused),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert series: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.SeriesByID(ctx, id)
}

// SeriesByID fetches a series by identifier, or nil when absent.
func (s *Store) SeriesByID(ctx context.Context, id int64) (*media.Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	series, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return series, nil
}

// SeriesByName fetches a series by exact name, or nil when absent.
func (s *Store) SeriesByName(ctx context.Context, name string) (*media.Series, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+seriesColumns+` FROM series WHERE name = ?`, name)
	series, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series by name: %w", err)
	}
	return series, nil
}

// ListSeries returns all tracked series ordered by name.
func (s *Store) ListSeries(ctx context.Context) ([]*media.Series, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+seriesColumns+` FROM series ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list series: %w", err)
	}
	defer rows.Close()

	var out []*media.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, series)
	}
	return out, rows.Err()
}

// UpdateSeries persists changes to an existing series.
func (s *Store) UpdateSeries(ctx context.Context, series *media.Series) error {
	if series == nil {
		return errors.New("series is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE series
         SET name = ?, search_string = ?, path = ?, runtime_min = ?,
             quality = ?, language = ?, paused = ?, updated_at = ?
         WHERE id = ?`,
		series.Name,
		nullableString(series.SearchString),
		nullableString(series.Path),
		series.RuntimeMin,
		string(series.Quality),
		nullableString(series.Language),
		boolToInt(series.Paused),
		time.Now().UTC().Format(time.RFC3339Nano),
		series.ID,
	)
	if err != nil {
		return fmt.Errorf("update series: %w", err)
	}
	return nil
}

// DeleteSeries removes a series and, via cascade, its episodes.
func (s *Store) DeleteSeries(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete series: %w", err)
	}
	return nil
}

// UpsertEpisode inserts an episode or refreshes its title and airdate when
// the (series, season, number) triple already exists. Status and acquisition
// fields of an existing row are left untouched.
func (s *Store) UpsertEpisode(ctx context.Context, ep *media.Episode) (*media.Episode, error) {
	if ep == nil {
		return nil, errors.New("episode is nil")
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO episodes (
            series_id, season, number, title, air_date, status, filename,
            last_candidate, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (series_id, season, number) DO UPDATE
            SET title = excluded.title, air_date = excluded.air_date,
                updated_at = excluded.updated_at`,
		ep.SeriesID,
		ep.Season,
		ep.Number,
		nullableString(ep.Title),
		nullableTime(ep.AirDate),
		ep.Status.String(),
		nullableString(ep.Filename),
		nullableString(ep.LastCandidate),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert episode: %w", err)
	}
	return s.Episode(ctx, ep.SeriesID, ep.Season, ep.Number)
}

// Episode fetches one episode by its natural key, or nil when absent.
func (s *Store) Episode(ctx context.Context, seriesID int64, season, number int) (*media.Episode, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE series_id = ? AND season = ? AND number = ?`,
		seriesID, season, number,
	)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}
	return ep, nil
}

// EpisodeByID fetches one episode by row identifier, or nil when absent.
func (s *Store) EpisodeByID(ctx context.Context, id int64) (*media.Episode, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get episode by id: %w", err)
	}
	return ep, nil
}

// EpisodesBySeries returns every episode of a series ordered by season and
// number.
func (s *Store) EpisodesBySeries(ctx context.Context, seriesID int64) ([]*media.Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE series_id = ? ORDER BY season, number`,
		seriesID,
	)
	if err != nil {
		return nil, fmt.Errorf("episodes by series: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// NeededEpisodes returns every episode whose status requests acquisition,
// across all non-paused series, ordered by airdate with undated rows last.
func (s *Store) NeededEpisodes(ctx context.Context) ([]*media.Episode, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+episodePrefixedColumns+`
         FROM episodes e
         JOIN series s ON s.id = e.series_id
         WHERE e.status IN (?, ?) AND s.paused = 0
         ORDER BY e.air_date IS NULL, e.air_date, e.season, e.number`,
		media.StatusNeed.String(),
		media.StatusNeedForced.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("needed episodes: %w", err)
	}
	defer rows.Close()
	return collectEpisodes(rows)
}

// UpdateEpisode persists acquisition state for an existing episode.
func (s *Store) UpdateEpisode(ctx context.Context, ep *media.Episode) error {
	if ep == nil {
		return errors.New("episode is nil")
	}
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes
         SET title = ?, air_date = ?, status = ?, filename = ?,
             last_candidate = ?, updated_at = ?
         WHERE id = ?`,
		nullableString(ep.Title),
		nullableTime(ep.AirDate),
		ep.Status.String(),
		nullableString(ep.Filename),
		nullableString(ep.LastCandidate),
		time.Now().UTC().Format(time.RFC3339Nano),
		ep.ID,
	)
	if err != nil {
		return fmt.Errorf("update episode: %w", err)
	}
	return nil
}

// SetEpisodeStatus updates only the status of one episode.
func (s *Store) SetEpisodeStatus(ctx context.Context, id int64, status media.Status) error {
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE episodes SET status = ?, updated_at = ? WHERE id = ?`,
		status.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("set episode status: %w", err)
	}
	return nil
}

const seriesColumns = "id, name, search_string, path, runtime_min, quality, language, paused"

const episodeColumns = "id, series_id, season, number, title, air_date, status, filename, last_candidate"

const episodePrefixedColumns = "e.id, e.series_id, e.season, e.number, e.title, e.air_date, e.status, e.filename, e.last_candidate"

func scanSeries(scanner interface{ Scan(dest ...any) error }) (*media.Series, error) {
	var (
		id           int64
		name         string
		searchString sql.NullString
		path         sql.NullString
		runtimeMin   sql.NullInt64
		quality      sql.NullString
		language     sql.NullString
		paused       sql.NullInt64
	)
	if err := scanner.Scan(&id, &name, &searchString, &path, &runtimeMin, &quality, &language, &paused); err != nil {
		return nil, err
	}
	return &media.Series{
		ID:           id,
		Name:         name,
		SearchString: searchString.String,
		Path:         path.String,
		RuntimeMin:   int(runtimeMin.Int64),
		Quality:      media.ParseQuality(quality.String),
		Language:     language.String,
		Paused:       paused.Int64 != 0,
	}, nil
}

func scanEpisode(scanner interface{ Scan(dest ...any) error }) (*media.Episode, error) {
	var (
		id            int64
		seriesID      int64
		season        int64
		number        int64
		title         sql.NullString
		airDateRaw    sql.NullString
		statusStr     string
		filename      sql.NullString
		lastCandidate sql.NullString
	)
	if err := scanner.Scan(&id, &seriesID, &season, &number, &title, &airDateRaw, &statusStr, &filename, &lastCandidate); err != nil {
		return nil, err
	}

	status, err := media.ParseStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("episode %d: %w", id, err)
	}

	ep := &media.Episode{
		ID:            id,
		SeriesID:      seriesID,
		Season:        int(season),
		Number:        int(number),
		Title:         title.String,
		Status:        status,
		Filename:      filename.String,
		LastCandidate: lastCandidate.String,
	}
	if airDateRaw.Valid {
		if airDate, err := parseTimeString(airDateRaw.String); err == nil {
			ep.AirDate = airDate
		}
	}
	return ep, nil
}

func collectEpisodes(rows *sql.Rows) ([]*media.Episode, error) {
	var out []*media.Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
