// Package store implements adapters.SqlStore over SQLite, the teacher's
// own persistence choice, generalized from its matches/users/sessions
// schema to the queue_players/custom_matches/players schema named in the
// external interfaces design. The core consumes and writes these rows
// but owns no migration tooling beyond the CREATE TABLE IF NOT EXISTS
// statements below.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/riftlobby/matchcore/internal/model"
)

// SQLiteStore implements adapters.SqlStore using modernc.org/sqlite, a
// pure-Go driver requiring no cgo toolchain.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS players (
			summoner_name TEXT PRIMARY KEY,
			game_name TEXT NOT NULL,
			tag_line TEXT NOT NULL,
			region TEXT NOT NULL,
			base_mmr INTEGER NOT NULL DEFAULT 1000,
			custom_lp INTEGER NOT NULL DEFAULT 0,
			primary_lane TEXT,
			secondary_lane TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS queue_players (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			summoner_name TEXT NOT NULL UNIQUE,
			region TEXT NOT NULL,
			custom_lp INTEGER NOT NULL DEFAULT 0,
			primary_lane TEXT NOT NULL,
			secondary_lane TEXT NOT NULL,
			acceptance_status INTEGER NOT NULL DEFAULT 0,
			join_time TIMESTAMP NOT NULL,
			queue_position INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_players_join_time ON queue_players(join_time)`,
		`CREATE TABLE IF NOT EXISTS custom_matches (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			team1_players_json TEXT NOT NULL,
			team2_players_json TEXT NOT NULL,
			average_mmr_team1 REAL NOT NULL DEFAULT 0,
			average_mmr_team2 REAL NOT NULL DEFAULT 0,
			pick_ban_data_json TEXT,
			winner_team INTEGER NOT NULL DEFAULT 0,
			actual_winner INTEGER NOT NULL DEFAULT 0,
			actual_duration INTEGER NOT NULL DEFAULT 0,
			lp_changes_json TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_custom_matches_status ON custom_matches(status)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertQueueEntry(ctx context.Context, e model.QueueEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_players
			(player_id, summoner_name, region, custom_lp, primary_lane, secondary_lane, acceptance_status, join_time, queue_position)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(summoner_name) DO UPDATE SET
			region = excluded.region,
			custom_lp = excluded.custom_lp,
			primary_lane = excluded.primary_lane,
			secondary_lane = excluded.secondary_lane,
			acceptance_status = excluded.acceptance_status,
			queue_position = excluded.queue_position`,
		e.PlayerID, model.NormalizeName(e.SummonerName), e.Region, e.CustomLp,
		string(e.PrimaryLane), string(e.SecondaryLane), int(e.AcceptanceStatus),
		e.JoinTime, e.QueuePosition,
	)
	if err != nil {
		return fmt.Errorf("store: upsert queue entry %s: %w", e.SummonerName, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteQueueEntry(ctx context.Context, summonerName string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_players WHERE summoner_name = ?`, model.NormalizeName(summonerName))
	if err != nil {
		return fmt.Errorf("store: delete queue entry %s: %w", summonerName, err)
	}
	return nil
}

func (s *SQLiteStore) ListQueueEntries(ctx context.Context) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT player_id, summoner_name, region, custom_lp, primary_lane, secondary_lane,
			acceptance_status, join_time, queue_position
		 FROM queue_players ORDER BY join_time ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list queue entries: %w", err)
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		var e model.QueueEntry
		var primaryLane, secondaryLane string
		var acceptance int
		if err := rows.Scan(&e.PlayerID, &e.SummonerName, &e.Region, &e.CustomLp,
			&primaryLane, &secondaryLane, &acceptance, &e.JoinTime, &e.QueuePosition); err != nil {
			return nil, fmt.Errorf("store: scan queue entry: %w", err)
		}
		e.PrimaryLane = model.Lane(primaryLane)
		e.SecondaryLane = model.Lane(secondaryLane)
		e.AcceptanceStatus = model.AcceptanceStatus(acceptance)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetQueueEntry(ctx context.Context, summonerName string) (model.QueueEntry, bool, error) {
	var e model.QueueEntry
	var primaryLane, secondaryLane string
	var acceptance int
	err := s.db.QueryRowContext(ctx,
		`SELECT player_id, summoner_name, region, custom_lp, primary_lane, secondary_lane,
			acceptance_status, join_time, queue_position
		 FROM queue_players WHERE summoner_name = ?`, model.NormalizeName(summonerName)).Scan(
		&e.PlayerID, &e.SummonerName, &e.Region, &e.CustomLp,
		&primaryLane, &secondaryLane, &acceptance, &e.JoinTime, &e.QueuePosition,
	)
	if err == sql.ErrNoRows {
		return model.QueueEntry{}, false, nil
	}
	if err != nil {
		return model.QueueEntry{}, false, fmt.Errorf("store: get queue entry %s: %w", summonerName, err)
	}
	e.PrimaryLane = model.Lane(primaryLane)
	e.SecondaryLane = model.Lane(secondaryLane)
	e.AcceptanceStatus = model.AcceptanceStatus(acceptance)
	return e, true, nil
}

func (s *SQLiteStore) CreateMatch(ctx context.Context, m model.Match) error {
	team1, team2, pickBan, lp, err := marshalMatchJSON(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO custom_matches
			(id, status, team1_players_json, team2_players_json, average_mmr_team1, average_mmr_team2,
			 pick_ban_data_json, winner_team, actual_duration, lp_changes_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, string(m.Status), team1, team2, m.AverageMmrTeam1, m.AverageMmrTeam2,
		pickBan, m.WinnerTeam, m.ActualDuration, lp, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create match %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMatch(ctx context.Context, m model.Match) error {
	team1, team2, pickBan, lp, err := marshalMatchJSON(m)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE custom_matches SET
			status = ?, team1_players_json = ?, team2_players_json = ?,
			average_mmr_team1 = ?, average_mmr_team2 = ?, pick_ban_data_json = ?,
			winner_team = ?, actual_duration = ?, lp_changes_json = ?,
			completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		string(m.Status), team1, team2, m.AverageMmrTeam1, m.AverageMmrTeam2, pickBan,
		m.WinnerTeam, m.ActualDuration, lp, m.CompletedAt, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update match %s: %w", m.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetMatch(ctx context.Context, matchID string) (model.Match, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, team1_players_json, team2_players_json, average_mmr_team1, average_mmr_team2,
			pick_ban_data_json, winner_team, actual_duration, lp_changes_json, created_at, updated_at, completed_at
		 FROM custom_matches WHERE id = ?`, matchID)
	m, ok, err := scanMatch(row)
	if err != nil {
		return model.Match{}, false, fmt.Errorf("store: get match %s: %w", matchID, err)
	}
	return m, ok, nil
}

func (s *SQLiteStore) ListMatchesByStatus(ctx context.Context, status model.MatchStatus) ([]model.Match, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, team1_players_json, team2_players_json, average_mmr_team1, average_mmr_team2,
			pick_ban_data_json, winner_team, actual_duration, lp_changes_json, created_at, updated_at, completed_at
		 FROM custom_matches WHERE status = ?`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list matches by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		m, ok, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan match: %w", err)
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteMatch(ctx context.Context, matchID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM custom_matches WHERE id = ?`, matchID)
	if err != nil {
		return fmt.Errorf("store: delete match %s: %w", matchID, err)
	}
	return nil
}

func (s *SQLiteStore) GetPlayer(ctx context.Context, summonerName string) (model.Player, bool, error) {
	var p model.Player
	var primaryLane, secondaryLane string
	err := s.db.QueryRowContext(ctx,
		`SELECT summoner_name, game_name, tag_line, region, base_mmr, custom_lp, primary_lane, secondary_lane
		 FROM players WHERE summoner_name = ?`, model.NormalizeName(summonerName)).Scan(
		&p.SummonerName, &p.GameName, &p.TagLine, &p.Region, &p.BaseMmr, &p.CustomLp,
		&primaryLane, &secondaryLane,
	)
	if err == sql.ErrNoRows {
		return model.Player{}, false, nil
	}
	if err != nil {
		return model.Player{}, false, fmt.Errorf("store: get player %s: %w", summonerName, err)
	}
	p.PrimaryLane = model.Lane(primaryLane)
	p.SecondaryLane = model.Lane(secondaryLane)
	return p, true, nil
}

func (s *SQLiteStore) UpsertPlayer(ctx context.Context, p model.Player) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO players (summoner_name, game_name, tag_line, region, base_mmr, custom_lp, primary_lane, secondary_lane, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(summoner_name) DO UPDATE SET
			game_name = excluded.game_name,
			tag_line = excluded.tag_line,
			region = excluded.region,
			base_mmr = excluded.base_mmr,
			custom_lp = excluded.custom_lp,
			primary_lane = excluded.primary_lane,
			secondary_lane = excluded.secondary_lane,
			updated_at = CURRENT_TIMESTAMP`,
		model.NormalizeName(p.SummonerName), p.GameName, p.TagLine, p.Region, p.BaseMmr, p.CustomLp,
		string(p.PrimaryLane), string(p.SecondaryLane),
	)
	if err != nil {
		return fmt.Errorf("store: upsert player %s: %w", p.SummonerName, err)
	}
	return nil
}

func (s *SQLiteStore) ApplyLPDeltas(ctx context.Context, deltas map[string]int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin lp delta tx: %w", err)
	}
	defer tx.Rollback()

	for name, delta := range deltas {
		if _, err := tx.ExecContext(ctx,
			`UPDATE players SET custom_lp = custom_lp + ?, updated_at = CURRENT_TIMESTAMP WHERE summoner_name = ?`,
			delta, model.NormalizeName(name)); err != nil {
			return fmt.Errorf("store: apply lp delta for %s: %w", name, err)
		}
	}
	return tx.Commit()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row scanner) (model.Match, bool, error) {
	var m model.Match
	var status, team1JSON, team2JSON string
	var pickBanJSON, lpJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&m.ID, &status, &team1JSON, &team2JSON, &m.AverageMmrTeam1, &m.AverageMmrTeam2,
		&pickBanJSON, &m.WinnerTeam, &m.ActualDuration, &lpJSON, &m.CreatedAt, &m.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return model.Match{}, false, nil
	}
	if err != nil {
		return model.Match{}, false, err
	}
	m.Status = model.MatchStatus(status)
	if err := json.Unmarshal([]byte(team1JSON), &m.Team1); err != nil {
		return model.Match{}, false, fmt.Errorf("unmarshal team1: %w", err)
	}
	if err := json.Unmarshal([]byte(team2JSON), &m.Team2); err != nil {
		return model.Match{}, false, fmt.Errorf("unmarshal team2: %w", err)
	}
	if pickBanJSON.Valid && pickBanJSON.String != "" {
		if err := json.Unmarshal([]byte(pickBanJSON.String), &m.PickBanData); err != nil {
			return model.Match{}, false, fmt.Errorf("unmarshal pick_ban_data: %w", err)
		}
	}
	if lpJSON.Valid && lpJSON.String != "" {
		if err := json.Unmarshal([]byte(lpJSON.String), &m.LpChanges); err != nil {
			return model.Match{}, false, fmt.Errorf("unmarshal lp_changes: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		m.CompletedAt = &t
	}
	return m, true, nil
}

func marshalMatchJSON(m model.Match) (team1, team2, pickBan, lp string, err error) {
	t1, err := json.Marshal(m.Team1)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal team1: %w", err)
	}
	t2, err := json.Marshal(m.Team2)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal team2: %w", err)
	}
	pb, err := json.Marshal(m.PickBanData)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal pick_ban_data: %w", err)
	}
	lpj, err := json.Marshal(m.LpChanges)
	if err != nil {
		return "", "", "", "", fmt.Errorf("marshal lp_changes: %w", err)
	}
	return string(t1), string(t2), string(pb), string(lpj), nil
}
