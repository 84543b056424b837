package notes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ainotebook/notebase/database"
	"github.com/ainotebook/notebase/database/record"
	"github.com/ainotebook/notebase/log"
)

// TimeFormat is the format of note timestamps in JSON.
const TimeFormat = "2006-01-02 15:04:05"

// ErrNotFound is returned for operations on missing notes.
var ErrNotFound = errors.New("note not found")

// untitled is the record name of notes with an empty title.
const untitled = "untitled"

// Record data attributes.
const (
	attrTitle      = "title"
	attrUserID     = "user_id"
	attrContent    = "content"
	attrImage      = "image"
	attrCreateTime = "create_time"
	attrUpdateTime = "update_time"
)

// Note is a note of a user. The title is also used as the record name, so
// that notes can be found by title.
type Note struct {
	ID         uint64
	UserID     uint64
	Title      string
	Content    string
	Image      string
	CreateTime time.Time
	UpdateTime time.Time
}

type noteJSON struct {
	ID         uint64 `json:"id"`
	UserID     uint64 `json:"user_id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Image      string `json:"image"`
	CreateTime string `json:"create_time"`
	UpdateTime string `json:"update_time"`
}

// MarshalJSON formats the timestamps with TimeFormat.
func (n *Note) MarshalJSON() ([]byte, error) {
	return json.Marshal(&noteJSON{
		ID:         n.ID,
		UserID:     n.UserID,
		Title:      n.Title,
		Content:    n.Content,
		Image:      n.Image,
		CreateTime: n.CreateTime.UTC().Format(TimeFormat),
		UpdateTime: n.UpdateTime.UTC().Format(TimeFormat),
	})
}

func (n *Note) String() string {
	return fmt.Sprintf("<Note %d: %s>", n.ID, n.Title)
}

func recordName(title string) string {
	if title == "" {
		return untitled
	}
	return title
}

func (n *Note) toRecord() *record.Record {
	return &record.Record{
		ID:   n.ID,
		Name: recordName(n.Title),
		Data: map[string]interface{}{
			attrTitle:      n.Title,
			attrUserID:     n.UserID,
			attrContent:    n.Content,
			attrImage:      n.Image,
			attrCreateTime: n.CreateTime.UTC().Format(time.RFC3339Nano),
			attrUpdateTime: n.UpdateTime.UTC().Format(time.RFC3339Nano),
		},
	}
}

func fromRecord(r *record.Record) (*Note, error) {
	acc, err := r.Accessor()
	if err != nil {
		return nil, err
	}

	n := &Note{
		ID:    r.ID,
		Title: r.Name,
	}
	if acc.Exists("data." + attrTitle) {
		n.Title, _ = acc.GetString("data." + attrTitle)
	}
	userID, ok := acc.GetInt("data." + attrUserID)
	if !ok || userID < 0 {
		raw, _ := acc.GetRaw("data." + attrUserID)
		return nil, fmt.Errorf("record %d has invalid %s %q", r.ID, attrUserID, raw)
	}
	n.UserID = uint64(userID)
	n.Content, _ = acc.GetString("data." + attrContent)
	n.Image, _ = acc.GetString("data." + attrImage)

	for attr, target := range map[string]*time.Time{
		attrCreateTime: &n.CreateTime,
		attrUpdateTime: &n.UpdateTime,
	} {
		value, ok := acc.GetString("data." + attr)
		if !ok {
			continue
		}
		*target, err = time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("record %d has invalid %s: %w", r.ID, attr, err)
		}
	}
	return n, nil
}

// Changes holds the fields of a note to update. Nil fields are kept.
type Changes struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Image   *string `json:"image"`
}

// Service manages notes in a store.
type Service struct {
	store *database.Store
	now   func() time.Time
}

// NewService returns a note service on top of the given store.
func NewService(store *database.Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Create stores a new note. Empty values are valid.
func (s *Service) Create(ctx context.Context, userID uint64, title, content, image string) (*Note, error) {
	now := s.now().UTC()
	n := &Note{
		UserID:     userID,
		Title:      title,
		Content:    content,
		Image:      image,
		CreateTime: now,
		UpdateTime: now,
	}
	id, err := s.store.Add(ctx, n.toRecord())
	if err != nil {
		return nil, err
	}
	n.ID = id

	log.Debugf("notes: user %d created %s", userID, n)
	return n, nil
}

// Get returns the note with the given ID.
func (s *Service) Get(ctx context.Context, id uint64) (*Note, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	return fromRecord(r)
}

func (s *Service) filter(records []*record.Record, userID uint64) ([]*Note, error) {
	notes := make([]*Note, 0, len(records))
	for _, r := range records {
		n, err := fromRecord(r)
		if err != nil {
			log.Warningf("notes: skipping invalid record: %s", err)
			continue
		}
		if n.UserID == userID {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

// ListByUser returns all notes of the user in the order they were created.
func (s *Service) ListByUser(ctx context.Context, userID uint64) ([]*Note, error) {
	records, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	return s.filter(records, userID)
}

// List returns all notes of the user, the most recently updated first.
func (s *Service) List(ctx context.Context, userID uint64) ([]*Note, error) {
	notes, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(notes, func(i, j int) bool {
		if notes[i].UpdateTime.Equal(notes[j].UpdateTime) {
			return notes[i].ID > notes[j].ID
		}
		return notes[i].UpdateTime.After(notes[j].UpdateTime)
	})
	return notes, nil
}

// FindByTitle returns all notes with the given title.
func (s *Service) FindByTitle(ctx context.Context, title string) ([]*Note, error) {
	records, err := s.store.GetAllByName(ctx, recordName(title))
	if err != nil {
		return nil, err
	}

	notes := make([]*Note, 0, len(records))
	for _, r := range records {
		n, err := fromRecord(r)
		if err != nil {
			log.Warningf("notes: skipping invalid record: %s", err)
			continue
		}
		if n.Title == title {
			notes = append(notes, n)
		}
	}
	return notes, nil
}

// Update applies the changes to the note and bumps its update time.
func (s *Service) Update(ctx context.Context, id uint64, changes *Changes) (*Note, error) {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}

	acc, err := r.Accessor()
	if err != nil {
		return nil, err
	}
	if changes.Title != nil {
		if err := acc.Set("name", recordName(*changes.Title)); err != nil {
			return nil, err
		}
		if err := acc.Set("data."+attrTitle, *changes.Title); err != nil {
			return nil, err
		}
	}
	if changes.Content != nil {
		if err := acc.Set("data."+attrContent, *changes.Content); err != nil {
			return nil, err
		}
	}
	if changes.Image != nil {
		if err := acc.Set("data."+attrImage, *changes.Image); err != nil {
			return nil, err
		}
	}
	err = acc.Set("data."+attrUpdateTime, s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	if err := r.Apply(acc); err != nil {
		return nil, err
	}

	_, err = s.store.Update(ctx, r)
	if err != nil {
		return nil, err
	}
	return fromRecord(r)
}

// Delete deletes the note with the given ID.
func (s *Service) Delete(ctx context.Context, id uint64) error {
	r, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if r == nil {
		return ErrNotFound
	}

	return s.store.Delete(ctx, id)
}

// Ping checks that the note database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}
