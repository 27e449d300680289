package answer

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"caex-inspector-backend/internal/apperr"
	"caex-inspector-backend/internal/model"
	"caex-inspector-backend/internal/watch"
)

// StoredFile is where the photo storage put an image.
type StoredFile struct {
	Path      string
	Thumbnail string
}

// PhotoStorage produces stable paths for captured images.
type PhotoStorage interface {
	Save(r io.Reader, ext string) (StoredFile, error)
	Remove(paths ...string) error
}

// AddPhoto stores an evidence image for a negative answer.
func (s *Service) AddPhoto(ctx context.Context, answerID int64, r io.Reader, ext, description string) (*model.Photo, error) {
	if s.photos == nil {
		return nil, apperr.InvalidState("photo storage is not configured")
	}
	a, err := s.store.GetAnswerByID(ctx, answerID)
	if err != nil {
		return nil, err
	}
	if !a.State.IsNegative() {
		return nil, apperr.InvalidState("answer %d is %s, photos attach to negative answers", a.ID, a.State)
	}

	f, err := s.photos.Save(r, ext)
	if err != nil {
		return nil, err
	}
	p := &model.Photo{
		AnswerID:    a.ID,
		Path:        f.Path,
		Thumbnail:   f.Thumbnail,
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now(),
	}
	if err := s.store.CreatePhoto(ctx, p); err != nil {
		if rmErr := s.photos.Remove(f.Path, f.Thumbnail); rmErr != nil {
			s.log.WithError(rmErr).WithField("path", f.Path).Warn("failed to remove orphaned photo")
		}
		return nil, err
	}

	s.hub.Publish(watch.AnswersTopic(a.InspectionID), "photo", a.ID)
	s.log.WithFields(logrus.Fields{
		"module":    "answer",
		"answer_id": a.ID,
		"photo_id":  p.ID,
	}).Info("photo added")
	return p, nil
}

func (s *Service) ListPhotos(ctx context.Context, answerID int64) ([]model.Photo, error) {
	if _, err := s.store.GetAnswerByID(ctx, answerID); err != nil {
		return nil, err
	}
	return s.store.ListPhotos(ctx, answerID)
}

func (s *Service) CountPhotos(ctx context.Context, answerID int64) (int64, error) {
	return s.store.CountPhotos(ctx, answerID)
}

// DeletePhoto removes the photo row and then its files.
func (s *Service) DeletePhoto(ctx context.Context, id int64) error {
	p, err := s.store.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeletePhoto(ctx, id); err != nil {
		return err
	}
	if s.photos != nil {
		if err := s.photos.Remove(p.Path, p.Thumbnail); err != nil {
			s.log.WithError(err).WithField("path", p.Path).Warn("failed to remove photo file")
		}
	}
	if a, err := s.store.GetAnswerByID(ctx, p.AnswerID); err == nil {
		s.hub.Publish(watch.AnswersTopic(a.InspectionID), "photo", a.ID)
	}
	return nil
}
