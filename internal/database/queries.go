package database

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

const messageColumns = "id, from_id, to_id, content, delivered, read, created_at"

func (db *PgChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	res := db.conn.QueryRow(
		"INSERT INTO accounts (name, email, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, email, created_at",
		params.Name,
		params.EmailAddress,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var u User
	err := res.Scan(
		&u.Id,
		&u.Name,
		&u.EmailAddress,
		&u.CreatedAt,
	)

	return u, err
}

func (db *PgChatRepository) GetAccountById(id int) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, created_at FROM accounts "+
			"WHERE id = $1 LIMIT 1",
		id,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgChatRepository) GetAccountByEmail(email string) (User, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, email, password_hash, created_at FROM accounts "+
			"WHERE email = $1 LIMIT 1",
		email,
	)

	var user User
	err := row.Scan(
		&user.Id,
		&user.Name,
		&user.EmailAddress,
		&user.PasswordHash,
		&user.CreatedAt,
	)

	return user, err
}

func (db *PgChatRepository) ListAccounts() ([]User, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, email, created_at FROM accounts ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Id, &u.Name, &u.EmailAddress, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *PgChatRepository) CreateMessage(fromId, toId int, content string) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (from_id, to_id, content, delivered, read, created_at) "+
			"VALUES ($1, $2, $3, FALSE, FALSE, $4) RETURNING "+messageColumns,
		fromId,
		toId,
		content,
		time.Now().UTC(),
	)

	return scanMessage(res)
}

func (db *PgChatRepository) MarkDelivered(id int) (Message, error) {
	res := db.conn.QueryRow(
		"UPDATE messages SET delivered = TRUE WHERE id = $1 RETURNING "+messageColumns,
		id,
	)

	return scanMessage(res)
}

// MarkReadBatch sets read on the given messages. Reading implies delivery,
// so the delivered flag is raised in the same statement. Unknown ids match
// no rows and are simply absent from the result.
func (db *PgChatRepository) MarkReadBatch(ids []int) ([]Message, error) {
	rows, err := db.conn.Query(
		"UPDATE messages SET read = TRUE, delivered = TRUE "+
			"WHERE id = ANY($1) RETURNING "+messageColumns,
		pq.Array(ids),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.FromId, &m.ToId, &m.Content, &m.Delivered, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (db *PgChatRepository) GetConversation(userA, userB int) ([]Message, error) {
	rows, err := db.conn.Query(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1) "+
			"ORDER BY created_at ASC",
		userA,
		userB,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Id, &m.FromId, &m.ToId, &m.Content, &m.Delivered, &m.Read, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}

	return msgs, rows.Err()
}

func (db *PgChatRepository) GetMessageById(id int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		id,
	)

	return scanMessage(row)
}

func (db *PgChatRepository) GetLastMessage(userA, userB int) (Message, error) {
	row := db.conn.QueryRow(
		"SELECT "+messageColumns+" FROM messages "+
			"WHERE (from_id = $1 AND to_id = $2) OR (from_id = $2 AND to_id = $1) "+
			"ORDER BY created_at DESC LIMIT 1",
		userA,
		userB,
	)

	return scanMessage(row)
}

func scanMessage(row *sql.Row) (Message, error) {
	var m Message
	err := row.Scan(
		&m.Id,
		&m.FromId,
		&m.ToId,
		&m.Content,
		&m.Delivered,
		&m.Read,
		&m.CreatedAt,
	)

	return m, err
}
