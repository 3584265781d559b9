package devserver

import (
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-chatclient/internal/types"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL,
		username_key  TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		email_key     TEXT UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		is_private    INTEGER NOT NULL DEFAULT 0,
		is_direct     INTEGER NOT NULL DEFAULT 0,
		join_code     TEXT UNIQUE,
		owner_id      TEXT NOT NULL REFERENCES accounts (id),
		created_at    INTEGER NOT NULL,
		last_activity INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS direct_rooms (
		pair_key TEXT PRIMARY KEY,
		room_id  TEXT NOT NULL REFERENCES rooms (id)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		seq       INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id   TEXT NOT NULL REFERENCES rooms (id),
		user_id   TEXT NOT NULL REFERENCES accounts (id),
		role      TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		UNIQUE (room_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq          INTEGER PRIMARY KEY AUTOINCREMENT,
		id           TEXT NOT NULL UNIQUE,
		room_id      TEXT NOT NULL REFERENCES rooms (id),
		user_id      TEXT NOT NULL,
		content      TEXT NOT NULL,
		message_type TEXT NOT NULL,
		file_url     TEXT NOT NULL DEFAULT '',
		created_at   INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_seq ON messages (room_id, seq)`,
	`CREATE TABLE IF NOT EXISTS hidden_messages (
		user_id    TEXT NOT NULL,
		message_id TEXT NOT NULL,
		PRIMARY KEY (user_id, message_id)
	)`,
}

const (
	selectAccount = "SELECT id, username, email, password_hash, created_at FROM accounts "
	selectRoom    = "SELECT id, name, description, is_private, is_direct, join_code, owner_id, created_at, last_activity FROM rooms "
	selectMessage = "SELECT id, room_id, user_id, content, message_type, file_url, created_at FROM messages "
)

// SQLiteRepository persists the development server's data in a SQLite
// database so accounts and history survive restarts.
type SQLiteRepository struct {
	conn *sql.DB

	mu      sync.Mutex
	entropy io.Reader
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens the database at path and creates the schema.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database path is required")
	}

	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	return &SQLiteRepository{
		conn:    db,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}, nil
}

func (db *SQLiteRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

type rowQueryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func exists(q rowQueryer, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

func (db *SQLiteRepository) withTx(fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanAccount(row rowScanner) (User, error) {
	var (
		user      User
		createdAt int64
	)
	err := row.Scan(
		&user.Id,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan account: %w", err)
	}
	user.CreatedAt = fromMillis(createdAt)

	return user, nil
}

func scanRoom(row rowScanner) (Room, error) {
	var (
		room                    Room
		joinCode                sql.NullString
		createdAt, lastActivity int64
	)
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.Description,
		&room.IsPrivate,
		&room.IsDirect,
		&joinCode,
		&room.OwnerId,
		&createdAt,
		&lastActivity,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Room{}, ErrNotFound
	}
	if err != nil {
		return Room{}, fmt.Errorf("scan room: %w", err)
	}
	room.JoinCode = joinCode.String
	room.CreatedAt = fromMillis(createdAt)
	room.LastActivity = fromMillis(lastActivity)

	return room, nil
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg       Message
		createdAt int64
	)
	err := row.Scan(
		&msg.Id,
		&msg.RoomId,
		&msg.UserId,
		&msg.Content,
		&msg.Type,
		&msg.FileUrl,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	msg.CreatedAt = fromMillis(createdAt)

	return msg, nil
}

func (db *SQLiteRepository) CreateAccount(params CreateAccountParams) (User, error) {
	user := User{
		Id:           uuid.NewString(),
		Username:     params.Username,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    now(),
	}

	err := db.withTx(func(tx *sql.Tx) error {
		taken, err := exists(tx,
			"SELECT 1 FROM accounts WHERE username_key = ? OR email_key = ? LIMIT 1",
			loginKey(params.Username),
			loginKey(params.Username),
		)
		if err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if taken {
			return fmt.Errorf("username %q: %w", params.Username, ErrConflict)
		}

		if params.Email != "" {
			taken, err := exists(tx,
				"SELECT 1 FROM accounts WHERE username_key = ? OR email_key = ? LIMIT 1",
				loginKey(params.Email),
				loginKey(params.Email),
			)
			if err != nil {
				return fmt.Errorf("check email: %w", err)
			}
			if taken {
				return fmt.Errorf("email %q: %w", params.Email, ErrConflict)
			}
		}

		_, err = tx.Exec(
			"INSERT INTO accounts (id, username, username_key, email, email_key, password_hash, created_at) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?)",
			user.Id,
			user.Username,
			loginKey(user.Username),
			user.Email,
			nullable(loginKey(user.Email)),
			user.PasswordHash,
			millis(user.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert account: %w", err)
		}

		return nil
	})
	if err != nil {
		return User{}, err
	}

	return user, nil
}

func (db *SQLiteRepository) GetAccountById(id string) (User, error) {
	return scanAccount(db.conn.QueryRow(selectAccount+"WHERE id = ?", id))
}

func (db *SQLiteRepository) GetAccountByLogin(login string) (User, error) {
	return scanAccount(db.conn.QueryRow(
		selectAccount+"WHERE username_key = ? OR email_key = ? LIMIT 1",
		loginKey(login),
		loginKey(login),
	))
}

func insertRoom(tx *sql.Tx, room Room) error {
	_, err := tx.Exec(
		"INSERT INTO rooms (id, name, description, is_private, is_direct, join_code, owner_id, created_at, last_activity) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		room.Id,
		room.Name,
		room.Description,
		room.IsPrivate,
		room.IsDirect,
		nullable(room.JoinCode),
		room.OwnerId,
		millis(room.CreatedAt),
		millis(room.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	return nil
}

func insertMember(tx *sql.Tx, roomId, userId string, role types.MemberRole) error {
	_, err := tx.Exec(
		"INSERT OR IGNORE INTO members (room_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		roomId,
		userId,
		string(role),
		millis(now()),
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}

	return nil
}

func (db *SQLiteRepository) CreateRoom(params CreateRoomParams) (Room, error) {
	ts := now()
	room := Room{
		Id:           uuid.NewString(),
		Name:         params.Name,
		Description:  params.Description,
		IsPrivate:    params.IsPrivate,
		JoinCode:     params.JoinCode,
		OwnerId:      params.OwnerId,
		CreatedAt:    ts,
		LastActivity: ts,
	}

	err := db.withTx(func(tx *sql.Tx) error {
		ok, err := exists(tx, "SELECT 1 FROM accounts WHERE id = ?", params.OwnerId)
		if err != nil {
			return fmt.Errorf("check owner: %w", err)
		}
		if !ok {
			return fmt.Errorf("owner %s: %w", params.OwnerId, ErrNotFound)
		}

		if params.JoinCode != "" {
			taken, err := exists(tx, "SELECT 1 FROM rooms WHERE join_code = ?", params.JoinCode)
			if err != nil {
				return fmt.Errorf("check join code: %w", err)
			}
			if taken {
				return fmt.Errorf("join code %s: %w", params.JoinCode, ErrConflict)
			}
		}

		if err := insertRoom(tx, room); err != nil {
			return err
		}

		return insertMember(tx, room.Id, room.OwnerId, types.RoleOwner)
	})
	if err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *SQLiteRepository) GetRoom(id string) (Room, error) {
	return scanRoom(db.conn.QueryRow(selectRoom+"WHERE id = ?", id))
}

func (db *SQLiteRepository) GetRoomByJoinCode(code string) (Room, error) {
	if code == "" {
		return Room{}, ErrNotFound
	}

	return scanRoom(db.conn.QueryRow(selectRoom+"WHERE join_code = ?", code))
}

func (db *SQLiteRepository) GetOrCreateDM(userId, targetId string) (Room, error) {
	var room Room
	err := db.withTx(func(tx *sql.Tx) error {
		user, err := scanAccount(tx.QueryRow(selectAccount+"WHERE id = ?", userId))
		if err != nil {
			return fmt.Errorf("user %s: %w", userId, err)
		}
		target, err := scanAccount(tx.QueryRow(selectAccount+"WHERE id = ?", targetId))
		if err != nil {
			return fmt.Errorf("user %s: %w", targetId, err)
		}

		key := dmKey(userId, targetId)
		room, err = scanRoom(tx.QueryRow(
			selectRoom+"WHERE id = (SELECT room_id FROM direct_rooms WHERE pair_key = ?)",
			key,
		))
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}

		ts := now()
		room = Room{
			Id:           uuid.NewString(),
			Name:         user.Username + ", " + target.Username,
			IsPrivate:    true,
			IsDirect:     true,
			OwnerId:      userId,
			CreatedAt:    ts,
			LastActivity: ts,
		}
		if err := insertRoom(tx, room); err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO direct_rooms (pair_key, room_id) VALUES (?, ?)", key, room.Id); err != nil {
			return fmt.Errorf("insert direct room: %w", err)
		}
		if err := insertMember(tx, room.Id, userId, types.RoleMember); err != nil {
			return err
		}

		return insertMember(tx, room.Id, targetId, types.RoleMember)
	})
	if err != nil {
		return Room{}, err
	}

	return room, nil
}

func (db *SQLiteRepository) ListRoomsForUser(userId string) ([]Room, error) {
	rows, err := db.conn.Query(
		"SELECT r.id, r.name, r.description, r.is_private, r.is_direct, r.join_code, r.owner_id, r.created_at, r.last_activity "+
			"FROM rooms r JOIN members m ON m.room_id = r.id "+
			"WHERE m.user_id = ? ORDER BY r.last_activity DESC, r.id ASC",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := []Room{}
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rooms, nil
}

func (db *SQLiteRepository) AddMember(roomId, userId string, role types.MemberRole) error {
	return db.withTx(func(tx *sql.Tx) error {
		ok, err := exists(tx, "SELECT 1 FROM rooms WHERE id = ?", roomId)
		if err != nil {
			return fmt.Errorf("check room: %w", err)
		}
		if !ok {
			return fmt.Errorf("room %s: %w", roomId, ErrNotFound)
		}

		ok, err = exists(tx, "SELECT 1 FROM accounts WHERE id = ?", userId)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return fmt.Errorf("user %s: %w", userId, ErrNotFound)
		}

		return insertMember(tx, roomId, userId, role)
	})
}

func (db *SQLiteRepository) IsMember(roomId, userId string) bool {
	ok, err := exists(db.conn,
		"SELECT 1 FROM members WHERE room_id = ? AND user_id = ?",
		roomId,
		userId,
	)
	return err == nil && ok
}

func (db *SQLiteRepository) ListMembers(roomId string) ([]Member, error) {
	ok, err := exists(db.conn, "SELECT 1 FROM rooms WHERE id = ?", roomId)
	if err != nil {
		return nil, fmt.Errorf("check room: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	rows, err := db.conn.Query(
		"SELECT seq, room_id, user_id, role, joined_at FROM members WHERE room_id = ? ORDER BY seq",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var (
			mem      Member
			seq      int64
			joinedAt int64
		)
		if err := rows.Scan(&seq, &mem.RoomId, &mem.UserId, &mem.Role, &joinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		mem.seq = uint64(seq)
		mem.JoinedAt = fromMillis(joinedAt)
		members = append(members, mem)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return members, nil
}

func (db *SQLiteRepository) newMessageId(ts time.Time) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(ts), db.entropy)
	if err != nil {
		return "", err
	}

	return id.String(), nil
}

func (db *SQLiteRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	mt := params.Type
	if mt == "" {
		mt = types.MessageTypeText
	}

	var msg Message
	err := db.withTx(func(tx *sql.Tx) error {
		var last int64
		err := tx.QueryRow(
			"SELECT COALESCE((SELECT MAX(created_at) FROM messages WHERE room_id = ?), 0) FROM rooms WHERE id = ?",
			params.RoomId,
			params.RoomId,
		).Scan(&last)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("room %s: %w", params.RoomId, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check room: %w", err)
		}

		ts := now()
		if prev := fromMillis(last); ts.Before(prev) {
			ts = prev
		}

		id, err := db.newMessageId(ts)
		if err != nil {
			return fmt.Errorf("new message id: %w", err)
		}

		msg = Message{
			Id:        id,
			RoomId:    params.RoomId,
			UserId:    params.UserId,
			Content:   params.Content,
			Type:      mt,
			FileUrl:   params.FileUrl,
			CreatedAt: ts,
		}
		_, err = tx.Exec(
			"INSERT INTO messages (id, room_id, user_id, content, message_type, file_url, created_at) "+
				"VALUES (?, ?, ?, ?, ?, ?, ?)",
			msg.Id,
			msg.RoomId,
			msg.UserId,
			msg.Content,
			string(msg.Type),
			msg.FileUrl,
			millis(msg.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		_, err = tx.Exec("UPDATE rooms SET last_activity = ? WHERE id = ?", millis(ts), msg.RoomId)
		if err != nil {
			return fmt.Errorf("update room activity: %w", err)
		}

		return nil
	})
	if err != nil {
		return Message{}, err
	}

	return msg, nil
}

func (db *SQLiteRepository) GetMessage(id string) (Message, error) {
	return scanMessage(db.conn.QueryRow(selectMessage+"WHERE id = ?", id))
}

func (db *SQLiteRepository) GetMessages(roomId, userId string, limit int) ([]Message, error) {
	ok, err := exists(db.conn, "SELECT 1 FROM rooms WHERE id = ?", roomId)
	if err != nil {
		return nil, fmt.Errorf("check room: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	rows, err := db.conn.Query(
		selectMessage+
			"WHERE room_id = ? AND NOT EXISTS "+
			"(SELECT 1 FROM hidden_messages h WHERE h.user_id = ? AND h.message_id = messages.id) "+
			"ORDER BY seq DESC LIMIT ?",
		roomId,
		userId,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return msgs, nil
}

func (db *SQLiteRepository) DeleteMessage(id string) error {
	return db.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM messages WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}

		if _, err := tx.Exec("DELETE FROM hidden_messages WHERE message_id = ?", id); err != nil {
			return fmt.Errorf("delete hidden entries: %w", err)
		}

		return nil
	})
}

func (db *SQLiteRepository) HideMessage(userId, messageId string) error {
	return db.withTx(func(tx *sql.Tx) error {
		ok, err := exists(tx, "SELECT 1 FROM messages WHERE id = ?", messageId)
		if err != nil {
			return fmt.Errorf("check message: %w", err)
		}
		if !ok {
			return ErrNotFound
		}

		_, err = tx.Exec(
			"INSERT OR IGNORE INTO hidden_messages (user_id, message_id) VALUES (?, ?)",
			userId,
			messageId,
		)
		if err != nil {
			return fmt.Errorf("hide message: %w", err)
		}

		return nil
	})
}

// ClearRoom hides every current message of roomId from userId.
func (db *SQLiteRepository) ClearRoom(userId, roomId string) error {
	return db.withTx(func(tx *sql.Tx) error {
		ok, err := exists(tx, "SELECT 1 FROM rooms WHERE id = ?", roomId)
		if err != nil {
			return fmt.Errorf("check room: %w", err)
		}
		if !ok {
			return ErrNotFound
		}

		_, err = tx.Exec(
			"INSERT OR IGNORE INTO hidden_messages (user_id, message_id) SELECT ?, id FROM messages WHERE room_id = ?",
			userId,
			roomId,
		)
		if err != nil {
			return fmt.Errorf("clear room: %w", err)
		}

		return nil
	})
}
