package allocation

import (
	"context"
	"errors"
	"strings"

	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/haunted-house-queue/internal/model"
	"github.com/iliyamo/haunted-house-queue/internal/repository"
)

// HouseInput carries the fields of a new haunted house.
type HouseInput struct {
	Name              string `json:"name" validate:"required,max=100"`
	Duration          uint32 `json:"duration" validate:"required,min=1,max=600"`
	BreakTimePerQueue uint32 `json:"break_time_per_queue" validate:"max=600"`
}

// HouseUpdate carries optional house changes.  The name is fixed once
// queues reference it.
type HouseUpdate struct {
	Duration          *uint32 `json:"duration" validate:"omitempty,min=1,max=600"`
	BreakTimePerQueue *uint32 `json:"break_time_per_queue" validate:"omitempty,max=600"`
}

// CreateHouse registers a house under a slug derived from its name.
func (e *Engine) CreateHouse(ctx context.Context, in HouseInput) (*model.HauntedHouse, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := checkInput(in); err != nil {
		return nil, err
	}
	h := &model.HauntedHouse{
		Name:              in.Name,
		Slug:              slug.Make(in.Name),
		Duration:          in.Duration,
		BreakTimePerQueue: in.BreakTimePerQueue,
	}
	if h.Slug == "" {
		return nil, reject(CodeInvalidInput, "name must contain letters or digits")
	}
	err := e.run(ctx, func(tx Tx) error {
		if err := tx.Houses().Create(ctx, h); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return reject(CodeConflict, "house %q already exists", in.Name)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.WithFields(logrus.Fields{"house": h.Name, "slug": h.Slug}).Info("house created")
	return h, nil
}

// UpdateHouse applies upd to the house identified by slug.
func (e *Engine) UpdateHouse(ctx context.Context, houseSlug string, upd HouseUpdate) (*model.HauntedHouse, error) {
	if err := checkInput(upd); err != nil {
		return nil, err
	}
	var out *model.HauntedHouse
	err := e.run(ctx, func(tx Tx) error {
		h, err := tx.Houses().GetBySlug(ctx, houseSlug)
		if errors.Is(err, repository.ErrNotFound) {
			return reject(CodeNotFound, "house %s not found", houseSlug)
		}
		if err != nil {
			return err
		}
		if upd.Duration != nil {
			h.Duration = *upd.Duration
		}
		if upd.BreakTimePerQueue != nil {
			h.BreakTimePerQueue = *upd.BreakTimePerQueue
		}
		h.UpdatedAt = e.now()
		if err := tx.Houses().Update(ctx, h); err != nil {
			return err
		}
		out = h
		return nil
	})
	return out, err
}
