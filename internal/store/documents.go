package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// queryer is the part of *sql.DB and *sql.Tx the document primitives need.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ops implements the document primitives over a queryer. Store and Tx both
// embed it.
type ops struct {
	q queryer
}

// Document is one stored JSON body.
type Document struct {
	Collection string
	Key        string
	Body       json.RawMessage
}

// Decode unmarshals the body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Body, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.Key, err)
	}
	return nil
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// jsonPath returns the JSON path of a top-level attribute. Field names are
// interpolated into SQL, so only identifiers are accepted.
func jsonPath(field string) (string, error) {
	if !fieldName.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return "$." + field, nil
}

func marshalFields(fields map[string]any) (string, error) {
	if fields == nil {
		return "{}", nil
	}
	for k, v := range fields {
		if v == nil {
			return "", fmt.Errorf("field %q: null values are not allowed in merges", k)
		}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(b), nil
}

// Get returns the document stored at (collection, key). The boolean is
// false when there is none.
func (o ops) Get(ctx context.Context, collection, key string) (Document, bool, error) {
	var body string
	err := o.q.QueryRowContext(ctx, `
		SELECT body FROM documents
		WHERE collection = ? AND key = ?
	`, collection, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, fmt.Errorf("get %s/%s: %w", collection, key, classify(err))
	}
	return Document{Collection: collection, Key: key, Body: json.RawMessage(body)}, true, nil
}

// SetMerge creates the document from fields, or merges fields into the
// existing one. Attributes not named in fields are left untouched.
func (o ops) SetMerge(ctx context.Context, collection, key string, fields map[string]any) error {
	body, err := marshalFields(fields)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, err)
	}

	_, err = o.q.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body)
		VALUES (?, ?, json(?))
		ON CONFLICT(collection, key) DO UPDATE
		SET body = json_patch(documents.body, excluded.body)
	`, collection, key, body)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, key, classify(err))
	}
	return nil
}

// UpdateIfExists merges fields into an existing document. It reports false,
// and writes nothing, when the document does not exist.
func (o ops) UpdateIfExists(ctx context.Context, collection, key string, fields map[string]any) (bool, error) {
	body, err := marshalFields(fields)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}

	res, err := o.q.ExecContext(ctx, `
		UPDATE documents SET body = json_patch(body, json(?))
		WHERE collection = ? AND key = ?
	`, body, collection, key)
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, key, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update %s/%s: %w", collection, key, err)
	}
	return n > 0, nil
}

// CreateIfAbsent stores fields as a new document. An existing document is
// left as it is and false is returned.
func (o ops) CreateIfAbsent(ctx context.Context, collection, key string, fields map[string]any) (bool, error) {
	body, err := marshalFields(fields)
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, key, err)
	}

	res, err := o.q.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body)
		VALUES (?, ?, json(?))
		ON CONFLICT(collection, key) DO NOTHING
	`, collection, key, body)
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, key, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", collection, key, err)
	}
	return n > 0, nil
}

// QueryByField returns the documents of collection whose top-level
// attribute field equals value, ordered by key.
func (o ops) QueryByField(ctx context.Context, collection, field string, value any) ([]Document, error) {
	path, err := jsonPath(field)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	// The path is a literal so the planner can use expression indexes.
	query := fmt.Sprintf(`
		SELECT key, body FROM documents
		WHERE collection = ? AND json_extract(body, '%s') = ?
		ORDER BY key COLLATE BINARY ASC
	`, path)
	return o.queryDocs(ctx, collection, query, collection, value)
}

// List returns every document of collection, ordered by key.
func (o ops) List(ctx context.Context, collection string) ([]Document, error) {
	return o.queryDocs(ctx, collection, `
		SELECT key, body FROM documents
		WHERE collection = ?
		ORDER BY key COLLATE BINARY ASC
	`, collection)
}

func (o ops) queryDocs(ctx context.Context, collection, query string, args ...any) ([]Document, error) {
	rows, err := o.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, classify(err))
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		docs = append(docs, Document{Collection: collection, Key: key, Body: json.RawMessage(body)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", collection, classify(err))
	}
	return docs, nil
}

// ArrayUnion appends to the string array attribute field every value it
// does not already hold, preserving the order of first insertion. Applying
// the same values again changes nothing. It reports false, and writes
// nothing, when the document does not exist.
func (o ops) ArrayUnion(ctx context.Context, collection, key, field string, values ...string) (bool, error) {
	path, err := jsonPath(field)
	if err != nil {
		return false, fmt.Errorf("array union %s/%s: %w", collection, key, err)
	}

	doc, ok, err := o.Get(ctx, collection, key)
	if err != nil || !ok {
		return false, err
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(doc.Body, &body); err != nil {
		return false, fmt.Errorf("array union %s/%s: %w", collection, key, err)
	}
	var existing []string
	if raw, ok := body[field]; ok {
		if err := json.Unmarshal(raw, &existing); err != nil {
			return false, fmt.Errorf("array union %s/%s: field %s is not a string array: %w", collection, key, field, err)
		}
	}

	merged := existing
	seen := make(map[string]struct{}, len(existing)+len(values))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	if len(merged) == len(existing) {
		return true, nil
	}

	arr, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("array union %s/%s: %w", collection, key, err)
	}
	query := fmt.Sprintf(`
		UPDATE documents SET body = json_set(body, '%s', json(?))
		WHERE collection = ? AND key = ?
	`, path)
	if _, err := o.q.ExecContext(ctx, query, string(arr), collection, key); err != nil {
		return false, fmt.Errorf("array union %s/%s: %w", collection, key, classify(err))
	}
	return true, nil
}
