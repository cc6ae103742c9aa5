package api

import (
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/api"
	"github.com/parallaxml/parallax/pkg/errors"
)

type submitReq struct {
	model.Update `json:",inline"`
}

func (r *submitReq) validate() error {
	if r.WorkerID == "" {
		return errors.ErrEmptyKey
	}
	if len(r.Delta) == 0 {
		return errors.ErrInvalidData
	}

	return nil
}

type cohortReq struct {
	workerID string
}

func (r *cohortReq) validate() error {
	if r.workerID == "" {
		return errors.ErrEmptyKey
	}

	return nil
}

type listCheckpointsReq struct {
	offset uint64
	limit  uint64
}

func (r *listCheckpointsReq) validate() error {
	if r.limit == 0 || r.limit > api.MaxLimitSize {
		return errors.ErrInvalidData
	}

	return nil
}

type getCheckpointReq struct {
	version uint64
}
