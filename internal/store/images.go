package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/codec"
	"github.com/roach88/svm/internal/kit"
)

// ErrNotFound is returned when no image matches a lookup.
var ErrNotFound = errors.New("image not found")

// IDGenerator produces image ids.
type IDGenerator interface {
	NewID() string
}

// UUIDv7Generator generates time-sortable UUIDv7 image ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// NewID creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Image describes one saved revision of an application.
type Image struct {
	ID       string `json:"id"`
	App      string `json:"app"`
	Revision int64  `json:"revision"`
	Digest   string `json:"digest"` // hex SHA-256 of the image bytes
	Size     int    `json:"size"`
	Kits     string `json:"kits"` // "name@checksum" list from the image schema
}

// SaveImage stores data as the next revision of appName. Saving bytes
// identical to the latest revision returns that revision unchanged.
func (s *Store) SaveImage(ctx context.Context, appName string, kits string, data []byte) (Image, error) {
	sum := sha256.Sum256(data)
	img := Image{
		App:    appName,
		Digest: hex.EncodeToString(sum[:]),
		Size:   len(data),
		Kits:   kits,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Image{}, fmt.Errorf("save image: %w", err)
	}
	defer tx.Rollback()

	var (
		latestID     string
		latestRev    int64
		latestDigest string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, revision, digest FROM images
		WHERE app_name = ?
		ORDER BY revision DESC
		LIMIT 1
	`, appName).Scan(&latestID, &latestRev, &latestDigest)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Image{}, fmt.Errorf("save image: %w", err)
	case latestDigest == img.Digest:
		img.ID = latestID
		img.Revision = latestRev
		return img, nil
	}

	img.ID = s.ids.NewID()
	img.Revision = latestRev + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO images (id, app_name, revision, digest, size, kits, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, img.ID, img.App, img.Revision, img.Digest, img.Size, img.Kits, data)
	if err != nil {
		return Image{}, fmt.Errorf("save image: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Image{}, fmt.Errorf("save image: %w", err)
	}
	return img, nil
}

// ReadImage returns the image with the given id and its bytes.
func (s *Store) ReadImage(ctx context.Context, id string) (Image, []byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_name, revision, digest, size, kits, data
		FROM images WHERE id = ?
	`, id)
	return scanImage(row, id)
}

// LatestImage returns the highest revision saved for appName.
func (s *Store) LatestImage(ctx context.Context, appName string) (Image, []byte, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, app_name, revision, digest, size, kits, data
		FROM images WHERE app_name = ?
		ORDER BY revision DESC
		LIMIT 1
	`, appName)
	return scanImage(row, appName)
}

func scanImage(row *sql.Row, key string) (Image, []byte, error) {
	var (
		img  Image
		data []byte
	)
	err := row.Scan(&img.ID, &img.App, &img.Revision, &img.Digest, &img.Size, &img.Kits, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return Image{}, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return Image{}, nil, fmt.Errorf("read image: %w", err)
	}
	return img, data, nil
}

// ListImages returns image metadata ordered by app name then revision.
// An empty appName lists every app.
func (s *Store) ListImages(ctx context.Context, appName string) ([]Image, error) {
	query := `SELECT id, app_name, revision, digest, size, kits FROM images`
	var args []any
	if appName != "" {
		query += ` WHERE app_name = ?`
		args = append(args, appName)
	}
	query += ` ORDER BY app_name COLLATE BINARY ASC, revision ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query images: %w", err)
	}
	defer rows.Close()

	images := []Image{}
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.App, &img.Revision, &img.Digest, &img.Size, &img.Kits); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate images: %w", err)
	}
	return images, nil
}

// PruneImages deletes all but the newest keep revisions of appName and
// returns how many were removed.
func (s *Store) PruneImages(ctx context.Context, appName string, keep int) (int64, error) {
	if keep < 1 {
		return 0, fmt.Errorf("prune images: keep must be at least 1, got %d", keep)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM images
		WHERE app_name = ? AND revision <= (
			SELECT revision FROM images WHERE app_name = ?
			ORDER BY revision DESC
			LIMIT 1 OFFSET ?
		)
	`, appName, appName, keep)
	if err != nil {
		return 0, fmt.Errorf("prune images: %w", err)
	}
	return res.RowsAffected()
}

// PutApp encodes a and saves it under the root component's name.
func (s *Store) PutApp(ctx context.Context, a *app.App) (Image, error) {
	data, err := codec.Encode(a)
	if err != nil {
		return Image{}, err
	}
	return s.SaveImage(ctx, a.Root().Name(), kitList(a.Catalog()), data)
}

// SaveApp stores a new revision of a. It lets a Store serve as the
// scheduler's saver.
func (s *Store) SaveApp(ctx context.Context, a *app.App) error {
	_, err := s.PutApp(ctx, a)
	return err
}

// LoadApp decodes the latest image of appName.
func (s *Store) LoadApp(ctx context.Context, appName string, catalog *kit.Catalog, opts ...codec.Option) (*app.App, Image, error) {
	img, data, err := s.LatestImage(ctx, appName)
	if err != nil {
		return nil, Image{}, err
	}
	a, err := codec.Decode(data, catalog, opts...)
	if err != nil {
		return nil, img, fmt.Errorf("image %s: %w", img.ID, err)
	}
	return a, img, nil
}

func kitList(catalog *kit.Catalog) string {
	var parts []string
	for _, k := range catalog.Kits() {
		parts = append(parts, fmt.Sprintf("%s@%08x", k.Name, k.Checksum()))
	}
	return strings.Join(parts, ",")
}
