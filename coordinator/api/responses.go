package api

import (
	"net/http"

	"github.com/parallaxml/parallax/coordinator"
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/api"
)

var (
	_ api.Response = (*snapshotResponse)(nil)
	_ api.Response = (*statusResponse)(nil)
	_ api.Response = (*submitResponse)(nil)
	_ api.Response = (*cohortResponse)(nil)
	_ api.Response = (*checkpointsPageResponse)(nil)
)

type snapshotResponse struct {
	model.Snapshot
}

func (r snapshotResponse) Code() int {
	return http.StatusOK
}

func (r snapshotResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r snapshotResponse) Empty() bool {
	return false
}

type statusResponse struct {
	coordinator.Status
}

func (r statusResponse) Code() int {
	return http.StatusOK
}

func (r statusResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r statusResponse) Empty() bool {
	return false
}

type submitResponse struct {
	model.ApplyResult
}

func (r submitResponse) Code() int {
	return http.StatusOK
}

func (r submitResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r submitResponse) Empty() bool {
	return false
}

type checkpointsPageResponse struct {
	Checkpoints []model.Snapshot `json:"checkpoints"`
	Total       uint64           `json:"total"`
	Offset      uint64           `json:"offset"`
	Limit       uint64           `json:"limit"`
}

func (r checkpointsPageResponse) Code() int {
	return http.StatusOK
}

func (r checkpointsPageResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r checkpointsPageResponse) Empty() bool {
	return false
}

type cohortResponse struct {
	joined bool
}

func (r cohortResponse) Code() int {
	if r.joined {
		return http.StatusCreated
	}

	return http.StatusNoContent
}

func (r cohortResponse) Headers() map[string]string {
	return map[string]string{}
}

func (r cohortResponse) Empty() bool {
	return true
}
